package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"sitecheck/api/internal/auth"
	"sitecheck/api/internal/authpw"
	"sitecheck/api/internal/config"
	"sitecheck/api/internal/email"
	"sitecheck/api/internal/export"
	"sitecheck/api/internal/history"
	"sitecheck/api/internal/imagestore"
	"sitecheck/api/internal/search"
	"sitecheck/api/internal/store"
	"sitecheck/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	UserEmail    string
	JTI          string
	ExpiresAt    time.Time
}

type TemplateItemInput struct {
	Category      string   `json:"category"`
	QuestionIndex int      `json:"questionIndex"`
	Prompt        string   `json:"prompt"`
	AnswerKind    string   `json:"answerKind"`
	Options       []string `json:"options"`
}

type ResponseInput struct {
	TemplateID     string `json:"templateId"`
	Title          string `json:"title"`
	CompanyID      string `json:"companyId"`
	Notes          string `json:"notes"`
	InspectionType string `json:"inspectionType"`
}

type ResponseItemInput struct {
	ItemID        string `json:"itemId"`
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
	Explanation   string `json:"explanation"`
	ImageURL      string `json:"imageUrl"`
}

type TeamMemberInput struct {
	Role         string `json:"role"`
	Organization string `json:"organization"`
	FullName     string `json:"fullName"`
	SortOrder    int    `json:"sortOrder"`
}

type SaveSummary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

var allowedInspectionTypes = map[string]struct{}{
	"closed": {},
	"open":   {},
}

var allowedAnswerKinds = map[string]struct{}{
	"free_text":       {},
	"single_choice":   {},
	"multiple_choice": {},
}

type dataStore interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user store.User) error
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)

	InsertTemplate(ctx context.Context, template store.Template, items []store.TemplateItem) error
	ListTemplates(ctx context.Context) ([]store.Template, error)
	ListTemplateItems(ctx context.Context, templateID string) ([]store.TemplateItem, error)

	InsertResponse(ctx context.Context, response store.Response) error
	UpdateResponse(ctx context.Context, response store.Response) error
	GetResponse(ctx context.Context, responseID string) (store.Response, error)
	ListResponses(ctx context.Context, createdBy string) ([]store.Response, error)

	InsertResponseItem(ctx context.Context, item store.ResponseItem) error
	UpdateResponseItem(ctx context.Context, itemRowID, answer, explanation, imageURL string) error
	GetResponseItem(ctx context.Context, itemRowID string) (store.ResponseItem, error)
	DeleteResponseItem(ctx context.Context, itemRowID string) error
	ListResponseItems(ctx context.Context, responseID string) ([]store.ResponseItem, error)

	InsertTeamMember(ctx context.Context, member store.TeamMember) error
	UpdateTeamMember(ctx context.Context, member store.TeamMember) error
	DeleteTeamMember(ctx context.Context, memberID string) error
	ListTeamMembers(ctx context.Context, responseID string) ([]store.TeamMember, error)
}

// sessionStore holds refresh sessions. Backed by Redis when configured,
// otherwise by the refresh_sessions table.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// blobStore deletes stored question images, for orphan cleanup when an
// answer row is removed.
type blobStore interface {
	Delete(ctx context.Context, imageURL string) error
}

type historyService interface {
	Record(snapshot history.Snapshot, author string) (history.Version, error)
	History(responseID string, limit int) ([]history.Version, error)
	SnapshotAt(responseID, hash string) (history.Snapshot, error)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	passwords *authpw.Service
	search    *search.Service
	history   historyService
	images    blobStore
	exporter  *export.Service
	mailer    *email.Service
}

func New(cfg config.Config, data *store.PostgresStore, sessions sessionStore, searcher *search.Service, hist *history.Service, images *imagestore.Client, mailer *email.Service) *Service {
	svc := &Service{
		cfg:       cfg,
		store:     data,
		sessions:  sessions,
		passwords: authpw.NewService(data),
		search:    searcher,
		mailer:    mailer,
	}
	if hist != nil {
		svc.history = hist
	}
	if images != nil {
		svc.images = images
	}
	svc.exporter = export.NewService(&reportStore{data: svc.store})
	return svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ---- auth & sessions ----

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		UserEmail:    user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		UserEmail: user.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// ---- templates ----

func (s *Service) CreateTemplate(ctx context.Context, name, inspectionType string, items []TemplateItemInput) (store.Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Template{}, invalidInput("name is required")
	}
	if _, ok := allowedInspectionTypes[inspectionType]; !ok {
		return store.Template{}, invalidInput("inspectionType must be 'closed' or 'open'")
	}
	if len(items) == 0 {
		return store.Template{}, invalidInput("at least one item is required")
	}

	template := store.Template{
		ID:             util.NewID("tpl"),
		Name:           name,
		InspectionType: inspectionType,
	}
	rows := make([]store.TemplateItem, 0, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.Prompt) == "" {
			return store.Template{}, invalidInput("item %d: prompt is required", i)
		}
		if _, ok := allowedAnswerKinds[item.AnswerKind]; !ok {
			return store.Template{}, invalidInput("item %d: unknown answer kind %q", i, item.AnswerKind)
		}
		index := item.QuestionIndex
		if index == 0 {
			index = i + 1
		}
		rows = append(rows, store.TemplateItem{
			ID:            util.NewID("itm"),
			TemplateID:    template.ID,
			Category:      item.Category,
			QuestionIndex: index,
			Prompt:        item.Prompt,
			AnswerKind:    item.AnswerKind,
			Options:       item.Options,
		})
	}

	if err := s.store.InsertTemplate(ctx, template, rows); err != nil {
		return store.Template{}, fmt.Errorf("insert template: %w", err)
	}
	return template, nil
}

func (s *Service) ListTemplates(ctx context.Context) ([]store.Template, error) {
	return s.store.ListTemplates(ctx)
}

func (s *Service) ListTemplateItems(ctx context.Context, templateID string) ([]store.TemplateItem, error) {
	return s.store.ListTemplateItems(ctx, templateID)
}

// ---- responses ----

func (s *Service) CreateResponse(ctx context.Context, session Session, input ResponseInput) (store.Response, error) {
	if err := validateResponseInput(input); err != nil {
		return store.Response{}, err
	}
	if _, err := s.store.ListTemplateItems(ctx, input.TemplateID); err != nil {
		return store.Response{}, fmt.Errorf("check template: %w", err)
	}

	response := store.Response{
		ID:             util.NewID("rsp"),
		TemplateID:     input.TemplateID,
		Title:          strings.TrimSpace(input.Title),
		CompanyID:      strings.TrimSpace(input.CompanyID),
		Notes:          input.Notes,
		InspectionType: input.InspectionType,
		CreatedBy:      session.UserID,
	}
	if err := s.store.InsertResponse(ctx, response); err != nil {
		return store.Response{}, fmt.Errorf("insert response: %w", err)
	}
	return response, nil
}

func (s *Service) UpdateResponse(ctx context.Context, responseID string, input ResponseInput) (store.Response, error) {
	if err := validateResponseInput(input); err != nil {
		return store.Response{}, err
	}
	existing, err := s.store.GetResponse(ctx, responseID)
	if err != nil {
		return store.Response{}, err
	}

	existing.Title = strings.TrimSpace(input.Title)
	existing.CompanyID = strings.TrimSpace(input.CompanyID)
	existing.Notes = input.Notes
	existing.InspectionType = input.InspectionType
	if err := s.store.UpdateResponse(ctx, existing); err != nil {
		return store.Response{}, err
	}
	return existing, nil
}

func validateResponseInput(input ResponseInput) error {
	if strings.TrimSpace(input.TemplateID) == "" {
		return invalidInput("templateId is required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return invalidInput("title is required")
	}
	if strings.TrimSpace(input.CompanyID) == "" {
		return invalidInput("companyId is required")
	}
	if _, ok := allowedInspectionTypes[input.InspectionType]; !ok {
		return invalidInput("inspectionType must be 'closed' or 'open'")
	}
	return nil
}

func (s *Service) GetResponse(ctx context.Context, responseID string) (store.Response, error) {
	return s.store.GetResponse(ctx, responseID)
}

func (s *Service) ListResponses(ctx context.Context, session Session) ([]store.Response, error) {
	return s.store.ListResponses(ctx, session.UserID)
}

// ---- response items ----

func (s *Service) CreateResponseItem(ctx context.Context, responseID string, input ResponseItemInput) (store.ResponseItem, error) {
	if strings.TrimSpace(input.ItemID) == "" {
		return store.ResponseItem{}, invalidInput("itemId is required")
	}
	if strings.TrimSpace(input.Answer) == "" {
		return store.ResponseItem{}, invalidInput("answer is required")
	}
	if _, err := s.store.GetResponse(ctx, responseID); err != nil {
		return store.ResponseItem{}, err
	}

	item := store.ResponseItem{
		ID:            util.NewID("ritm"),
		ResponseID:    responseID,
		ItemID:        input.ItemID,
		QuestionIndex: input.QuestionIndex,
		Answer:        input.Answer,
		Explanation:   input.Explanation,
		ImageURL:      input.ImageURL,
	}
	if err := s.store.InsertResponseItem(ctx, item); err != nil {
		return store.ResponseItem{}, fmt.Errorf("insert response item: %w", err)
	}
	return item, nil
}

func (s *Service) UpdateResponseItem(ctx context.Context, itemRowID string, input ResponseItemInput) (store.ResponseItem, error) {
	if strings.TrimSpace(input.Answer) == "" {
		return store.ResponseItem{}, invalidInput("answer is required")
	}
	if err := s.store.UpdateResponseItem(ctx, itemRowID, input.Answer, input.Explanation, input.ImageURL); err != nil {
		return store.ResponseItem{}, err
	}
	return s.store.GetResponseItem(ctx, itemRowID)
}

func (s *Service) DeleteResponseItem(ctx context.Context, itemRowID string) error {
	item, err := s.store.GetResponseItem(ctx, itemRowID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteResponseItem(ctx, itemRowID); err != nil {
		return err
	}
	if s.images != nil && item.ImageURL != "" {
		if err := s.images.Delete(ctx, item.ImageURL); err != nil {
			log.Printf("delete orphaned image %s: %v", item.ImageURL, err)
		}
	}
	return nil
}

func (s *Service) ListResponseItems(ctx context.Context, responseID string) ([]store.ResponseItem, error) {
	return s.store.ListResponseItems(ctx, responseID)
}

// ---- team members ----

func (s *Service) CreateTeamMember(ctx context.Context, responseID string, input TeamMemberInput) (store.TeamMember, error) {
	if err := validateTeamMemberInput(input); err != nil {
		return store.TeamMember{}, err
	}
	if _, err := s.store.GetResponse(ctx, responseID); err != nil {
		return store.TeamMember{}, err
	}

	member := store.TeamMember{
		ID:           util.NewID("mbr"),
		ResponseID:   responseID,
		Role:         strings.TrimSpace(input.Role),
		Organization: strings.TrimSpace(input.Organization),
		FullName:     strings.TrimSpace(input.FullName),
		SortOrder:    input.SortOrder,
	}
	if err := s.store.InsertTeamMember(ctx, member); err != nil {
		return store.TeamMember{}, fmt.Errorf("insert team member: %w", err)
	}
	return member, nil
}

func (s *Service) UpdateTeamMember(ctx context.Context, memberID string, input TeamMemberInput) (store.TeamMember, error) {
	if err := validateTeamMemberInput(input); err != nil {
		return store.TeamMember{}, err
	}
	member := store.TeamMember{
		ID:           memberID,
		Role:         strings.TrimSpace(input.Role),
		Organization: strings.TrimSpace(input.Organization),
		FullName:     strings.TrimSpace(input.FullName),
		SortOrder:    input.SortOrder,
	}
	if err := s.store.UpdateTeamMember(ctx, member); err != nil {
		return store.TeamMember{}, err
	}
	return member, nil
}

func (s *Service) DeleteTeamMember(ctx context.Context, memberID string) error {
	return s.store.DeleteTeamMember(ctx, memberID)
}

func (s *Service) ListTeamMembers(ctx context.Context, responseID string) ([]store.TeamMember, error) {
	return s.store.ListTeamMembers(ctx, responseID)
}

func validateTeamMemberInput(input TeamMemberInput) error {
	if strings.TrimSpace(input.Role) == "" ||
		strings.TrimSpace(input.Organization) == "" ||
		strings.TrimSpace(input.FullName) == "" {
		return invalidInput("role, organization and fullName are required")
	}
	return nil
}

// ---- save finalization ----

// FinalizeSave runs the post-save bookkeeping after a client finishes
// syncing a response: re-index for search, record an audit version, and
// notify the inspector by email when SMTP is configured. Indexing and email
// are best effort; a failed audit commit is reported.
func (s *Service) FinalizeSave(ctx context.Context, session Session, responseID string, summary SaveSummary) (history.Version, error) {
	response, err := s.store.GetResponse(ctx, responseID)
	if err != nil {
		return history.Version{}, err
	}
	items, err := s.store.ListResponseItems(ctx, responseID)
	if err != nil {
		return history.Version{}, err
	}
	team, err := s.store.ListTeamMembers(ctx, responseID)
	if err != nil {
		return history.Version{}, err
	}

	if s.search != nil {
		var answers strings.Builder
		for _, item := range items {
			if answers.Len() > 0 {
				answers.WriteString(" ")
			}
			answers.WriteString(item.Answer)
			if item.Explanation != "" {
				answers.WriteString(" ")
				answers.WriteString(item.Explanation)
			}
		}
		s.search.IndexResponse(search.ResponseRecord{
			ID:        response.ID,
			Title:     response.Title,
			CompanyID: response.CompanyID,
			Notes:     response.Notes,
			Answers:   answers.String(),
		})
	}

	var version history.Version
	if s.history != nil {
		snapshot := history.Snapshot{
			ResponseID:     response.ID,
			TemplateID:     response.TemplateID,
			Title:          response.Title,
			CompanyID:      response.CompanyID,
			Notes:          response.Notes,
			InspectionType: response.InspectionType,
		}
		for _, item := range items {
			snapshot.Items = append(snapshot.Items, history.SnapshotItem{
				ItemID:      item.ItemID,
				Answer:      item.Answer,
				Explanation: item.Explanation,
				ImageURL:    item.ImageURL,
			})
		}
		for _, member := range team {
			snapshot.Team = append(snapshot.Team, history.SnapshotTeam{
				Role:         member.Role,
				Organization: member.Organization,
				FullName:     member.FullName,
			})
		}
		version, err = s.history.Record(snapshot, session.UserName)
		if err != nil {
			return history.Version{}, fmt.Errorf("record save version: %w", err)
		}
	}

	if s.mailer != nil && s.mailer.IsConfigured() && session.UserEmail != "" {
		if err := s.mailer.SendSaveNotice(session.UserEmail, session.UserName, response.Title, response.CompanyID,
			summary.Created, summary.Updated, summary.Deleted, ""); err != nil {
			log.Printf("save notice email failed: %v", err)
		}
	}

	return version, nil
}

// ---- search ----

func (s *Service) Search(q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(503, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return s.search.Search(q), nil
}

// ---- export ----

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	return s.exporter.Export(ctx, req)
}

// ---- history ----

func (s *Service) ResponseHistory(responseID string, limit int) ([]history.Version, error) {
	if s.history == nil {
		return []history.Version{}, nil
	}
	return s.history.History(responseID, limit)
}

func (s *Service) ResponseSnapshotAt(responseID, hash string) (history.Snapshot, error) {
	if s.history == nil {
		return history.Snapshot{}, domainError(404, "NOT_FOUND", "No history for this response", nil)
	}
	return s.history.SnapshotAt(responseID, hash)
}

// reportStore adapts dataStore to the export package's view of the data.
type reportStore struct {
	data dataStore
}

func (r *reportStore) GetResponseInfo(ctx context.Context, id string) (export.ResponseInfo, error) {
	response, err := r.data.GetResponse(ctx, id)
	if err != nil {
		return export.ResponseInfo{}, err
	}
	info := export.ResponseInfo{
		ID:             response.ID,
		TemplateID:     response.TemplateID,
		Title:          response.Title,
		CompanyID:      response.CompanyID,
		Notes:          response.Notes,
		InspectionType: response.InspectionType,
		UpdatedAt:      response.UpdatedAt,
	}
	if user, err := r.data.GetUserByID(ctx, response.CreatedBy); err == nil {
		info.UpdatedBy = user.DisplayName
	}
	return info, nil
}

func (r *reportStore) ListQuestionInfo(ctx context.Context, templateID string) ([]export.QuestionInfo, error) {
	items, err := r.data.ListTemplateItems(ctx, templateID)
	if err != nil {
		return nil, err
	}
	infos := make([]export.QuestionInfo, 0, len(items))
	for _, item := range items {
		infos = append(infos, export.QuestionInfo{
			ItemID:        item.ID,
			QuestionIndex: item.QuestionIndex,
			Prompt:        item.Prompt,
		})
	}
	return infos, nil
}

func (r *reportStore) ListAnswerInfo(ctx context.Context, responseID string) ([]export.AnswerInfo, error) {
	items, err := r.data.ListResponseItems(ctx, responseID)
	if err != nil {
		return nil, err
	}
	infos := make([]export.AnswerInfo, 0, len(items))
	for _, item := range items {
		infos = append(infos, export.AnswerInfo{
			ItemID:      item.ItemID,
			Answer:      item.Answer,
			Explanation: item.Explanation,
			ImageURL:    item.ImageURL,
		})
	}
	return infos, nil
}

func (r *reportStore) ListTeamInfo(ctx context.Context, responseID string) ([]export.TeamInfo, error) {
	members, err := r.data.ListTeamMembers(ctx, responseID)
	if err != nil {
		return nil, err
	}
	infos := make([]export.TeamInfo, 0, len(members))
	for _, member := range members {
		infos = append(infos, export.TeamInfo{
			Role:         member.Role,
			Organization: member.Organization,
			FullName:     member.FullName,
			SortOrder:    member.SortOrder,
		})
	}
	return infos, nil
}

// PGSessionStore serves refresh sessions from the refresh_sessions table
// when Redis is not configured.
type PGSessionStore struct {
	pg *store.PostgresStore
}

func NewPGSessionStore(pg *store.PostgresStore) *PGSessionStore {
	return &PGSessionStore{pg: pg}
}

func (s *PGSessionStore) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return s.pg.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (s *PGSessionStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return s.pg.LookupRefreshSession(ctx, tokenHash)
}

func (s *PGSessionStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return s.pg.RevokeRefreshSession(ctx, tokenHash)
}
