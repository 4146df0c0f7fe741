package export

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// ReportStore defines the interface for data access
type ReportStore interface {
	GetResponseInfo(ctx context.Context, id string) (ResponseInfo, error)
	ListQuestionInfo(ctx context.Context, templateID string) ([]QuestionInfo, error)
	ListAnswerInfo(ctx context.Context, responseID string) ([]AnswerInfo, error)
	ListTeamInfo(ctx context.Context, responseID string) ([]TeamInfo, error)
}

// ResponseInfo holds basic response metadata
type ResponseInfo struct {
	ID             string
	TemplateID     string
	Title          string
	CompanyID      string
	Notes          string
	InspectionType string
	UpdatedBy      string
	UpdatedAt      time.Time
}

// QuestionInfo holds one template item
type QuestionInfo struct {
	ItemID        string
	QuestionIndex int
	Prompt        string
}

// AnswerInfo holds one saved answer row
type AnswerInfo struct {
	ItemID      string
	Answer      string
	Explanation string
	ImageURL    string
}

// TeamInfo holds one roster row
type TeamInfo struct {
	Role         string
	Organization string
	FullName     string
	SortOrder    int
}

// Service provides inspection report export functionality
type Service struct {
	store ReportStore
}

// NewService creates a new export service
func NewService(store ReportStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	report, err := s.BuildReport(ctx, req.ResponseID, req.IncludeTeam)
	if err != nil {
		return nil, err
	}

	data := TemplateData{
		Title:          report.Title,
		CompanyID:      report.CompanyID,
		Notes:          report.Notes,
		InspectionType: report.InspectionType,
		Inspector:      report.Inspector,
		UpdatedAt:      report.UpdatedAt,
		IncludeImages:  req.IncludeImages,
	}
	for _, q := range report.Questions {
		data.Questions = append(data.Questions, TemplateQuestion(q))
	}
	for _, m := range report.Team {
		data.Team = append(data.Team, TemplateTeamMember(m))
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, report.Title)
	case FormatDOCX:
		return exportDOCX(html, report.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

// BuildReport assembles the report rows for a response. Questions follow the
// template order; items the inspector never answered are left out.
func (s *Service) BuildReport(ctx context.Context, responseID string, includeTeam bool) (Report, error) {
	info, err := s.store.GetResponseInfo(ctx, responseID)
	if err != nil {
		return Report{}, fmt.Errorf("%w: get response: %v", ErrReportUnavailable, err)
	}
	questions, err := s.store.ListQuestionInfo(ctx, info.TemplateID)
	if err != nil {
		return Report{}, fmt.Errorf("%w: list questions: %v", ErrReportUnavailable, err)
	}
	answers, err := s.store.ListAnswerInfo(ctx, responseID)
	if err != nil {
		return Report{}, fmt.Errorf("%w: list answers: %v", ErrReportUnavailable, err)
	}

	byItem := make(map[string]AnswerInfo, len(answers))
	for _, a := range answers {
		byItem[a.ItemID] = a
	}

	sort.Slice(questions, func(i, j int) bool {
		return questions[i].QuestionIndex < questions[j].QuestionIndex
	})

	report := Report{
		ResponseID:     info.ID,
		Title:          info.Title,
		CompanyID:      info.CompanyID,
		Notes:          info.Notes,
		InspectionType: info.InspectionType,
		Inspector:      info.UpdatedBy,
		UpdatedAt:      info.UpdatedAt,
	}
	for _, q := range questions {
		answer, ok := byItem[q.ItemID]
		if !ok {
			continue
		}
		report.Questions = append(report.Questions, Question{
			Index:       q.QuestionIndex,
			Prompt:      q.Prompt,
			Answer:      answer.Answer,
			Explanation: answer.Explanation,
			ImageURL:    answer.ImageURL,
		})
	}

	if includeTeam {
		team, err := s.store.ListTeamInfo(ctx, responseID)
		if err != nil {
			return Report{}, fmt.Errorf("%w: list team: %v", ErrReportUnavailable, err)
		}
		sort.Slice(team, func(i, j int) bool { return team[i].SortOrder < team[j].SortOrder })
		for _, m := range team {
			report.Team = append(report.Team, TeamMember{
				Role:         m.Role,
				Organization: m.Organization,
				FullName:     m.FullName,
			})
		}
	}
	return report, nil
}
