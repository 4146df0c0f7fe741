package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Template struct {
	ID             string
	Name           string
	InspectionType string
	CreatedAt      time.Time
}

type TemplateItem struct {
	ID            string
	TemplateID    string
	Category      string
	QuestionIndex int
	Prompt        string
	AnswerKind    string
	// Options is the allowed answer set for closed kinds, stored as a
	// comma-joined text column; empty for free text.
	Options []string
}

type Response struct {
	ID             string
	TemplateID     string
	Title          string
	CompanyID      string
	Notes          string
	InspectionType string
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ResponseItem struct {
	ID            string
	ResponseID    string
	ItemID        string
	QuestionIndex int
	Answer        string
	Explanation   string
	ImageURL      string
	UpdatedAt     time.Time
}

type TeamMember struct {
	ID           string
	ResponseID   string
	Role         string
	Organization string
	FullName     string
	SortOrder    int
}
