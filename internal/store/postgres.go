package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a row the caller addressed does not exist.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at
		FROM users WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at
		FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// --- templates ---

func (s *PostgresStore) InsertTemplate(ctx context.Context, template Template, items []TemplateItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin template tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO templates (id, name, inspection_type)
		VALUES ($1, $2, $3)
	`, template.ID, template.Name, template.InspectionType); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert template: %w", err)
	}
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO template_items (id, template_id, category, question_index, prompt, answer_kind, options)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, item.ID, template.ID, item.Category, item.QuestionIndex, item.Prompt, item.AnswerKind, strings.Join(item.Options, ",")); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert template item %s: %w", item.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit template tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTemplates(ctx context.Context) ([]Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, inspection_type, created_at FROM templates ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.Name, &t.InspectionType, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *PostgresStore) ListTemplateItems(ctx context.Context, templateID string) ([]TemplateItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, template_id, category, question_index, prompt, answer_kind, options
		FROM template_items
		WHERE template_id = $1
		ORDER BY question_index
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("list template items: %w", err)
	}
	defer rows.Close()

	var items []TemplateItem
	for rows.Next() {
		var item TemplateItem
		var options string
		if err := rows.Scan(&item.ID, &item.TemplateID, &item.Category, &item.QuestionIndex, &item.Prompt, &item.AnswerKind, &options); err != nil {
			return nil, fmt.Errorf("scan template item: %w", err)
		}
		if options != "" {
			item.Options = strings.Split(options, ",")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- responses ---

func (s *PostgresStore) InsertResponse(ctx context.Context, response Response) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO responses (id, template_id, title, company_id, notes, inspection_type, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, response.ID, response.TemplateID, response.Title, response.CompanyID, response.Notes, response.InspectionType, response.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	return nil
}

// UpdateResponse overwrites the header fields. The overwrite is idempotent;
// clients re-send it on every save.
func (s *PostgresStore) UpdateResponse(ctx context.Context, response Response) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE responses
		SET title = $2, company_id = $3, notes = $4, inspection_type = $5, updated_at = NOW()
		WHERE id = $1
	`, response.ID, response.Title, response.CompanyID, response.Notes, response.InspectionType)
	if err != nil {
		return fmt.Errorf("update response: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update response rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetResponse(ctx context.Context, responseID string) (Response, error) {
	var r Response
	err := s.db.QueryRowContext(ctx, `
		SELECT id, template_id, title, company_id, notes, inspection_type, created_by, created_at, updated_at
		FROM responses WHERE id = $1
	`, responseID).Scan(&r.ID, &r.TemplateID, &r.Title, &r.CompanyID, &r.Notes, &r.InspectionType, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Response{}, ErrNotFound
	}
	if err != nil {
		return Response{}, fmt.Errorf("get response: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListResponses(ctx context.Context, createdBy string) ([]Response, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, template_id, title, company_id, notes, inspection_type, created_by, created_at, updated_at
		FROM responses
		WHERE created_by = $1
		ORDER BY updated_at DESC
	`, createdBy)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var responses []Response
	for rows.Next() {
		var r Response
		if err := rows.Scan(&r.ID, &r.TemplateID, &r.Title, &r.CompanyID, &r.Notes, &r.InspectionType, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// --- response items ---

func (s *PostgresStore) InsertResponseItem(ctx context.Context, item ResponseItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO response_items (id, response_id, item_id, question_index, answer, explanation, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.ResponseID, item.ItemID, item.QuestionIndex, item.Answer, item.Explanation, item.ImageURL)
	if err != nil {
		return fmt.Errorf("insert response item: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateResponseItem(ctx context.Context, itemRowID, answer, explanation, imageURL string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE response_items
		SET answer = $2, explanation = $3, image_url = $4, updated_at = NOW()
		WHERE id = $1
	`, itemRowID, answer, explanation, imageURL)
	if err != nil {
		return fmt.Errorf("update response item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update response item rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetResponseItem(ctx context.Context, itemRowID string) (ResponseItem, error) {
	var item ResponseItem
	err := s.db.QueryRowContext(ctx, `
		SELECT id, response_id, item_id, question_index, answer, explanation, image_url, updated_at
		FROM response_items WHERE id = $1
	`, itemRowID).Scan(&item.ID, &item.ResponseID, &item.ItemID, &item.QuestionIndex, &item.Answer, &item.Explanation, &item.ImageURL, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ResponseItem{}, ErrNotFound
	}
	if err != nil {
		return ResponseItem{}, fmt.Errorf("get response item: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteResponseItem(ctx context.Context, itemRowID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM response_items WHERE id = $1`, itemRowID)
	if err != nil {
		return fmt.Errorf("delete response item: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListResponseItems(ctx context.Context, responseID string) ([]ResponseItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, response_id, item_id, question_index, answer, explanation, image_url, updated_at
		FROM response_items
		WHERE response_id = $1
		ORDER BY question_index
	`, responseID)
	if err != nil {
		return nil, fmt.Errorf("list response items: %w", err)
	}
	defer rows.Close()

	var items []ResponseItem
	for rows.Next() {
		var item ResponseItem
		if err := rows.Scan(&item.ID, &item.ResponseID, &item.ItemID, &item.QuestionIndex, &item.Answer, &item.Explanation, &item.ImageURL, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan response item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- team members ---

func (s *PostgresStore) InsertTeamMember(ctx context.Context, member TeamMember) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_members (id, response_id, role, organization, full_name, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, member.ID, member.ResponseID, member.Role, member.Organization, member.FullName, member.SortOrder)
	if err != nil {
		return fmt.Errorf("insert team member: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTeamMember(ctx context.Context, member TeamMember) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE team_members
		SET role = $2, organization = $3, full_name = $4, sort_order = $5
		WHERE id = $1
	`, member.ID, member.Role, member.Organization, member.FullName, member.SortOrder)
	if err != nil {
		return fmt.Errorf("update team member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update team member rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteTeamMember(ctx context.Context, memberID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM team_members WHERE id = $1`, memberID)
	if err != nil {
		return fmt.Errorf("delete team member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTeamMembers(ctx context.Context, responseID string) ([]TeamMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, response_id, role, organization, full_name, sort_order
		FROM team_members
		WHERE response_id = $1
		ORDER BY sort_order
	`, responseID)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()

	var members []TeamMember
	for rows.Next() {
		var m TeamMember
		if err := rows.Scan(&m.ID, &m.ResponseID, &m.Role, &m.Organization, &m.FullName, &m.SortOrder); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// --- refresh sessions (fallback when Redis is not configured) ---

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.password_hash, u.created_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}
