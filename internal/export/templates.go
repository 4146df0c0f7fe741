package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/report.html")
	if err != nil {
		// Fallback to built-in template if file not found
		reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for report template rendering
type TemplateData struct {
	Title          string
	CompanyID      string
	Notes          string
	InspectionType string
	Inspector      string
	UpdatedAt      time.Time
	Questions      []TemplateQuestion
	Team           []TemplateTeamMember
	IncludeImages  bool
}

// TemplateQuestion holds one answered item for the template
type TemplateQuestion struct {
	Index       int
	Prompt      string
	Answer      string
	Explanation string
	ImageURL    string
}

// TemplateTeamMember holds one roster row for the template
type TemplateTeamMember struct {
	Role         string
	Organization string
	FullName     string
}

// RenderReportHTML renders the report template with provided data
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #ccc; padding: 0.5rem; text-align: left; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.CompanyID}} | {{.Inspector}} | {{.UpdatedAt.Format "Jan 2, 2006"}}</div>
  {{if .Notes}}<p>{{.Notes}}</p>{{end}}
  <table>
    <tr><th>#</th><th>Question</th><th>Answer</th><th>Explanation</th></tr>
    {{range .Questions}}<tr><td>{{.Index}}</td><td>{{.Prompt}}</td><td>{{.Answer}}</td><td>{{.Explanation}}</td></tr>{{end}}
  </table>
  {{if .Team}}
  <h2>Team</h2>
  <table>
    <tr><th>Role</th><th>Organization</th><th>Name</th></tr>
    {{range .Team}}<tr><td>{{.Role}}</td><td>{{.Organization}}</td><td>{{.FullName}}</td></tr>{{end}}
  </table>
  {{end}}
</body>
</html>`
