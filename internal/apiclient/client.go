// Package apiclient implements the engine's remote interfaces over the
// Sitecheck HTTP API. It is the transport used by the field client; tests
// and other frontends can substitute their own implementations.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sitecheck/api/internal/engine"
)

// Client talks to a Sitecheck API server. It implements engine.ResponseAPI.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SetToken replaces the bearer token, typically after a refresh.
func (c *Client) SetToken(token string) {
	c.token = token
}

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return engine.ErrUnauthenticated
	}
	if resp.StatusCode >= 400 {
		var payload struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return &apiError{Status: resp.StatusCode, Code: payload.Code, Message: payload.Error}
	}

	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// wire types, matching the server's JSON field names

type templateItemDTO struct {
	ID            string   `json:"id"`
	Category      string   `json:"category"`
	QuestionIndex int      `json:"questionIndex"`
	Prompt        string   `json:"prompt"`
	AnswerKind    string   `json:"answerKind"`
	Options       []string `json:"options"`
}

type responseDTO struct {
	ID             string `json:"id"`
	TemplateID     string `json:"templateId"`
	Title          string `json:"title"`
	CompanyID      string `json:"companyId"`
	Notes          string `json:"notes"`
	InspectionType string `json:"inspectionType"`
}

type responseItemDTO struct {
	ID            string `json:"id"`
	ItemID        string `json:"itemId"`
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
	Explanation   string `json:"explanation"`
	ImageURL      string `json:"imageUrl"`
}

type teamMemberDTO struct {
	ID           string `json:"id"`
	Role         string `json:"role"`
	Organization string `json:"organization"`
	FullName     string `json:"fullName"`
	SortOrder    int    `json:"sortOrder"`
}

func (c *Client) FetchTemplateItems(ctx context.Context, templateID string) ([]engine.TemplateItem, error) {
	var payload struct {
		Items []templateItemDTO `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/templates/"+templateID+"/items", nil, &payload); err != nil {
		return nil, err
	}
	items := make([]engine.TemplateItem, 0, len(payload.Items))
	for _, dto := range payload.Items {
		items = append(items, engine.TemplateItem{
			ID:            engine.ItemID(dto.ID),
			Category:      dto.Category,
			QuestionIndex: dto.QuestionIndex,
			Prompt:        dto.Prompt,
			Kind:          engine.AnswerKind(dto.AnswerKind),
			Options:       dto.Options,
		})
	}
	return items, nil
}

func (c *Client) FetchResponse(ctx context.Context, responseID string) (engine.ResponseHeader, error) {
	var dto responseDTO
	if err := c.do(ctx, http.MethodGet, "/api/responses/"+responseID, nil, &dto); err != nil {
		return engine.ResponseHeader{}, err
	}
	return engine.ResponseHeader{
		ID:         dto.ID,
		TemplateID: dto.TemplateID,
		Title:      dto.Title,
		CompanyID:  dto.CompanyID,
		Notes:      dto.Notes,
		Type:       engine.InspectionType(dto.InspectionType),
	}, nil
}

func (c *Client) FetchResponseItems(ctx context.Context, responseID string) ([]engine.AnswerRecord, error) {
	var payload struct {
		Items []responseItemDTO `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/responses/"+responseID+"/items", nil, &payload); err != nil {
		return nil, err
	}
	records := make([]engine.AnswerRecord, 0, len(payload.Items))
	for _, dto := range payload.Items {
		records = append(records, engine.AnswerRecord{
			ItemID:        engine.ItemID(dto.ItemID),
			QuestionIndex: dto.QuestionIndex,
			Answer:        dto.Answer,
			Explanation:   dto.Explanation,
			Image:         engine.StoredImage(dto.ImageURL),
			RemoteID:      dto.ID,
		})
	}
	return records, nil
}

func (c *Client) FetchTeamMembers(ctx context.Context, responseID string) ([]engine.TeamMember, error) {
	var payload struct {
		Members []teamMemberDTO `json:"members"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/responses/"+responseID+"/members", nil, &payload); err != nil {
		return nil, err
	}
	members := make([]engine.TeamMember, 0, len(payload.Members))
	for _, dto := range payload.Members {
		members = append(members, engine.TeamMember{
			ID:           dto.ID,
			Role:         dto.Role,
			Organization: dto.Organization,
			FullName:     dto.FullName,
			SortOrder:    dto.SortOrder,
		})
	}
	return members, nil
}

func (c *Client) CreateResponse(ctx context.Context, header engine.ResponseHeader) (string, error) {
	body := map[string]any{
		"templateId":     header.TemplateID,
		"title":          header.Title,
		"companyId":      header.CompanyID,
		"notes":          header.Notes,
		"inspectionType": string(header.Type),
	}
	var dto responseDTO
	if err := c.do(ctx, http.MethodPost, "/api/responses", body, &dto); err != nil {
		return "", err
	}
	return dto.ID, nil
}

func (c *Client) UpdateResponse(ctx context.Context, responseID string, header engine.ResponseHeader) error {
	body := map[string]any{
		"templateId":     header.TemplateID,
		"title":          header.Title,
		"companyId":      header.CompanyID,
		"notes":          header.Notes,
		"inspectionType": string(header.Type),
	}
	return c.do(ctx, http.MethodPut, "/api/responses/"+responseID, body, nil)
}

func (c *Client) CreateAnswerItem(ctx context.Context, responseID string, itemID engine.ItemID, questionIndex int, fields engine.AnswerFields) (string, error) {
	body := map[string]any{
		"itemId":        string(itemID),
		"questionIndex": questionIndex,
		"answer":        fields.Answer,
		"explanation":   fields.Explanation,
		"imageUrl":      fields.ImageURL,
	}
	var dto responseItemDTO
	if err := c.do(ctx, http.MethodPost, "/api/responses/"+responseID+"/items", body, &dto); err != nil {
		return "", err
	}
	return dto.ID, nil
}

func (c *Client) UpdateAnswerItem(ctx context.Context, remoteID string, fields engine.AnswerFields) error {
	body := map[string]any{
		"answer":      fields.Answer,
		"explanation": fields.Explanation,
		"imageUrl":    fields.ImageURL,
	}
	return c.do(ctx, http.MethodPut, "/api/items/"+remoteID, body, nil)
}

func (c *Client) DeleteAnswerItem(ctx context.Context, remoteID string) error {
	return c.do(ctx, http.MethodDelete, "/api/items/"+remoteID, nil, nil)
}

func (c *Client) CreateTeamMember(ctx context.Context, responseID string, member engine.TeamMember) (string, error) {
	body := map[string]any{
		"role":         member.Role,
		"organization": member.Organization,
		"fullName":     member.FullName,
		"sortOrder":    member.SortOrder,
	}
	var dto teamMemberDTO
	if err := c.do(ctx, http.MethodPost, "/api/responses/"+responseID+"/members", body, &dto); err != nil {
		return "", err
	}
	return dto.ID, nil
}

func (c *Client) UpdateTeamMember(ctx context.Context, memberID string, member engine.TeamMember) error {
	body := map[string]any{
		"role":         member.Role,
		"organization": member.Organization,
		"fullName":     member.FullName,
		"sortOrder":    member.SortOrder,
	}
	return c.do(ctx, http.MethodPut, "/api/members/"+memberID, body, nil)
}

func (c *Client) DeleteTeamMember(ctx context.Context, memberID string) error {
	return c.do(ctx, http.MethodDelete, "/api/members/"+memberID, nil, nil)
}

// Finalize reports a completed save session so the server can run its
// post-save bookkeeping.
func (c *Client) Finalize(ctx context.Context, responseID string, created, updated, deleted int) error {
	body := map[string]any{
		"created": created,
		"updated": updated,
		"deleted": deleted,
	}
	return c.do(ctx, http.MethodPost, "/api/responses/"+responseID+"/finalize", body, nil)
}
