package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const pdfRenderTimeout = 45 * time.Second

// A4 in inches, the paper size inspection reports are filed on.
const (
	pdfPaperWidth  = 8.27
	pdfPaperHeight = 11.69
	pdfMargin      = 0.6
)

const pdfFooterTemplate = `<div style="font-size:8px;width:100%;text-align:center;color:#666;">` +
	`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`

// reportDataURL wraps rendered report HTML in a data: URL for Chromium to
// navigate to. Spaces must come out as %20; url.QueryEscape emits +, which
// Chromium reads literally inside a data URL.
func reportDataURL(html string) string {
	var b strings.Builder
	b.WriteString("data:text/html;charset=utf-8,")
	for _, r := range html {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			b.WriteRune(r)
		case r == ' ':
			b.WriteString("%20")
		default:
			for _, octet := range []byte(string(r)) {
				fmt.Fprintf(&b, "%%%02X", octet)
			}
		}
	}
	return b.String()
}

func findChromium() (string, error) {
	for _, name := range []string{"chromium-browser", "chromium", "google-chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no chromium binary on PATH", ErrPDFDependencyMissing)
}

// exportPDF prints report HTML to an A4 PDF through headless Chromium.
func exportPDF(html string, title string) (*Result, error) {
	browser, err := findChromium()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pdfRenderTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(browser),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var pdfData []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(reportDataURL(html)),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(pdfPaperWidth).
				WithPaperHeight(pdfPaperHeight).
				WithMarginTop(pdfMargin).
				WithMarginBottom(pdfMargin).
				WithMarginLeft(pdfMargin).
				WithMarginRight(pdfMargin).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<span></span>`).
				WithFooterTemplate(pdfFooterTemplate).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print report pdf: %w", err)
	}

	return &Result{
		Data:     pdfData,
		Filename: sanitizeFilename(title) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}

// sanitizeFilename reduces a response title to a safe attachment name.
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	name := b.String()
	if len(name) > 50 {
		name = name[:50]
	}
	if name == "" {
		return "inspection"
	}
	return name
}
