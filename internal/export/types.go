// Package export renders saved inspection responses as shareable report
// documents in PDF and DOCX formats.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request contains parameters for an export operation
type Request struct {
	ResponseID    string
	Format        Format
	IncludeImages bool
	IncludeTeam   bool
}

// Report represents the inspection data assembled for export
type Report struct {
	ResponseID     string
	Title          string
	CompanyID      string
	Notes          string
	InspectionType string
	Inspector      string
	UpdatedAt      time.Time
	Questions      []Question
	Team           []TeamMember
}

// Question is one answered template item in the report
type Question struct {
	Index       int
	Prompt      string
	Answer      string
	Explanation string
	ImageURL    string
}

// TeamMember is one roster entry in the report
type TeamMember struct {
	Role         string
	Organization string
	FullName     string
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrReportUnavailable indicates response data could not be loaded for export.
	ErrReportUnavailable = errors.New("export report unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
