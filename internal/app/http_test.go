package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"sitecheck/api/internal/authpw"
	"sitecheck/api/internal/config"
	"sitecheck/api/internal/export"
	"sitecheck/api/internal/history"
	"sitecheck/api/internal/store"
)

// fakeStore is an in-memory dataStore. Error injection goes through the
// optional function fields.
type fakeStore struct {
	mu        sync.Mutex
	users     map[string]store.User
	emails    map[string]string
	templates map[string]store.Template
	tplItems  map[string][]store.TemplateItem
	responses map[string]store.Response
	items     map[string]store.ResponseItem
	members   map[string]store.TeamMember

	pingFn           func(context.Context) error
	getResponseFn    func(context.Context, string) (store.Response, error)
	insertResponseFn func(context.Context, store.Response) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]store.User),
		emails:    make(map[string]string),
		templates: make(map[string]store.Template),
		tplItems:  make(map[string][]store.TemplateItem),
		responses: make(map[string]store.Response),
		items:     make(map[string]store.ResponseItem),
		members:   make(map[string]store.TeamMember),
	}
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	f.emails[user.Email] = user.ID
	return nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.emails[email]; ok {
		return f.users[id], nil
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[userID]; ok {
		return user, nil
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) InsertTemplate(ctx context.Context, template store.Template, items []store.TemplateItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates[template.ID] = template
	f.tplItems[template.ID] = items
	return nil
}

func (f *fakeStore) ListTemplates(ctx context.Context) ([]store.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Template, 0, len(f.templates))
	for _, template := range f.templates {
		out = append(out, template)
	}
	return out, nil
}

func (f *fakeStore) ListTemplateItems(ctx context.Context, templateID string) ([]store.TemplateItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items, ok := f.tplItems[templateID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return items, nil
}

func (f *fakeStore) InsertResponse(ctx context.Context, response store.Response) error {
	if f.insertResponseFn != nil {
		return f.insertResponseFn(ctx, response)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[response.ID] = response
	return nil
}

func (f *fakeStore) UpdateResponse(ctx context.Context, response store.Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.responses[response.ID]; !ok {
		return store.ErrNotFound
	}
	f.responses[response.ID] = response
	return nil
}

func (f *fakeStore) GetResponse(ctx context.Context, responseID string) (store.Response, error) {
	if f.getResponseFn != nil {
		return f.getResponseFn(ctx, responseID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if response, ok := f.responses[responseID]; ok {
		return response, nil
	}
	return store.Response{}, store.ErrNotFound
}

func (f *fakeStore) ListResponses(ctx context.Context, createdBy string) ([]store.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Response, 0)
	for _, response := range f.responses {
		if response.CreatedBy == createdBy {
			out = append(out, response)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertResponseItem(ctx context.Context, item store.ResponseItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[item.ID] = item
	return nil
}

func (f *fakeStore) UpdateResponseItem(ctx context.Context, itemRowID, answer, explanation, imageURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemRowID]
	if !ok {
		return store.ErrNotFound
	}
	item.Answer = answer
	item.Explanation = explanation
	item.ImageURL = imageURL
	f.items[itemRowID] = item
	return nil
}

func (f *fakeStore) GetResponseItem(ctx context.Context, itemRowID string) (store.ResponseItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item, ok := f.items[itemRowID]; ok {
		return item, nil
	}
	return store.ResponseItem{}, store.ErrNotFound
}

func (f *fakeStore) DeleteResponseItem(ctx context.Context, itemRowID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[itemRowID]; !ok {
		return store.ErrNotFound
	}
	delete(f.items, itemRowID)
	return nil
}

func (f *fakeStore) ListResponseItems(ctx context.Context, responseID string) ([]store.ResponseItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.ResponseItem, 0)
	for _, item := range f.items {
		if item.ResponseID == responseID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertTeamMember(ctx context.Context, member store.TeamMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[member.ID] = member
	return nil
}

func (f *fakeStore) UpdateTeamMember(ctx context.Context, member store.TeamMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.members[member.ID]
	if !ok {
		return store.ErrNotFound
	}
	member.ResponseID = existing.ResponseID
	f.members[member.ID] = member
	return nil
}

func (f *fakeStore) DeleteTeamMember(ctx context.Context, memberID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[memberID]; !ok {
		return store.ErrNotFound
	}
	delete(f.members, memberID)
	return nil
}

func (f *fakeStore) ListTeamMembers(ctx context.Context, responseID string) ([]store.TeamMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.TeamMember, 0)
	for _, member := range f.members {
		if member.ResponseID == responseID {
			out = append(out, member)
		}
	}
	return out, nil
}

// fakeSessions keeps refresh sessions in memory.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]store.User
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]store.User)}
}

func (f *fakeSessions) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[tokenHash] = user
	return nil
}

func (f *fakeSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.sessions[tokenHash]; ok {
		return user, nil
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeSessions) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, tokenHash)
	return nil
}

type fakeHistory struct {
	recorded []history.Snapshot
}

func (f *fakeHistory) Record(snapshot history.Snapshot, author string) (history.Version, error) {
	f.recorded = append(f.recorded, snapshot)
	return history.Version{Hash: "abc1234", Author: author}, nil
}

func (f *fakeHistory) History(responseID string, limit int) ([]history.Version, error) {
	return []history.Version{}, nil
}

func (f *fakeHistory) SnapshotAt(responseID, hash string) (history.Snapshot, error) {
	return history.Snapshot{}, errors.New("not found")
}

func newTestService(fs *fakeStore) *Service {
	svc := &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
		},
		store:     fs,
		sessions:  newFakeSessions(),
		passwords: authpw.NewService(fs),
		history:   &fakeHistory{},
	}
	svc.exporter = export.NewService(&reportStore{data: fs})
	return svc
}

func newTestServer(t *testing.T, fs *fakeStore) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(NewHTTPServer(newTestService(fs), "*").Handler())
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func getJSON(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func signUp(t *testing.T, server *httptest.Server) string {
	t.Helper()
	resp := postJSON(t, server.URL+"/api/auth/signup", "", map[string]string{
		"email":       "dana@example.com",
		"password":    "correct-horse",
		"displayName": "Dana Field",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status %d", resp.StatusCode)
	}
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	decode(t, resp, &body)
	if body.AccessToken == "" {
		t.Fatal("signup returned no access token")
	}
	return body.AccessToken
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, newFakeStore())

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}
	var body struct {
		OK bool `json:"ok"`
	}
	decode(t, resp, &body)
	if !body.OK {
		t.Fatal("expected ok: true")
	}
}

func TestReadyReportsDatabaseFailure(t *testing.T) {
	fs := newFakeStore()
	fs.pingFn = func(context.Context) error { return errors.New("connection refused") }
	server := newTestServer(t, fs)

	resp, err := http.Get(server.URL + "/api/ready")
	if err != nil {
		t.Fatalf("get ready: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("ready status %d, expected 503", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRequiresAuth(t *testing.T) {
	server := newTestServer(t, newFakeStore())

	resp, err := http.Get(server.URL + "/api/responses")
	if err != nil {
		t.Fatalf("get responses: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, expected 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSignUpSignInRefresh(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	signUp(t, server)

	resp := postJSON(t, server.URL+"/api/auth/signin", "", map[string]string{
		"email":    "dana@example.com",
		"password": "correct-horse",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signin status %d", resp.StatusCode)
	}
	var session struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	decode(t, resp, &session)

	resp = postJSON(t, server.URL+"/api/auth/refresh", "", map[string]string{
		"refreshToken": session.RefreshToken,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status %d", resp.StatusCode)
	}
	var refreshed struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	decode(t, resp, &refreshed)
	if refreshed.RefreshToken == session.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	// The old refresh token is single use.
	resp = postJSON(t, server.URL+"/api/auth/refresh", "", map[string]string{
		"refreshToken": session.RefreshToken,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("reused refresh token status %d, expected 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSignInWrongPassword(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	signUp(t, server)

	resp := postJSON(t, server.URL+"/api/auth/signin", "", map[string]string{
		"email":    "dana@example.com",
		"password": "battery-staple",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, expected 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func createTemplate(t *testing.T, server *httptest.Server, token string) string {
	t.Helper()
	resp := postJSON(t, server.URL+"/api/templates", token, map[string]any{
		"name":           "Weekly safety walkthrough",
		"inspectionType": "closed",
		"items": []map[string]any{
			{"prompt": "Hard hats worn?", "answerKind": "single_choice", "options": []string{"C", "CP", "NC", "NA"}},
			{"prompt": "Observations", "answerKind": "free_text"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create template status %d", resp.StatusCode)
	}
	var body struct {
		ID string `json:"id"`
	}
	decode(t, resp, &body)
	return body.ID
}

func TestResponseLifecycle(t *testing.T) {
	fs := newFakeStore()
	server := newTestServer(t, fs)
	token := signUp(t, server)
	templateID := createTemplate(t, server, token)

	// Create the response header.
	resp := postJSON(t, server.URL+"/api/responses", token, map[string]any{
		"templateId":     templateID,
		"title":          "North wing walkthrough",
		"companyId":      "Acme Corp",
		"inspectionType": "closed",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create response status %d", resp.StatusCode)
	}
	var created struct {
		ID string `json:"id"`
	}
	decode(t, resp, &created)
	if created.ID == "" {
		t.Fatal("response id missing")
	}

	// Validation: missing title.
	resp = postJSON(t, server.URL+"/api/responses", token, map[string]any{
		"templateId":     templateID,
		"companyId":      "Acme Corp",
		"inspectionType": "closed",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("missing title status %d, expected 422", resp.StatusCode)
	}
	resp.Body.Close()

	// Answer item create, update, delete.
	resp = postJSON(t, fmt.Sprintf("%s/api/responses/%s/items", server.URL, created.ID), token, map[string]any{
		"itemId":        "itm_q1",
		"questionIndex": 1,
		"answer":        "C",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create item status %d", resp.StatusCode)
	}
	var item struct {
		ID string `json:"id"`
	}
	decode(t, resp, &item)

	raw, _ := json.Marshal(map[string]any{"answer": "NC", "explanation": "Missing on scaffold crew"})
	req, _ := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/items/%s", server.URL, item.ID), bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+token)
	putResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if putResp.StatusCode != http.StatusOK {
		t.Fatalf("update item status %d", putResp.StatusCode)
	}
	var updated struct {
		Answer      string `json:"answer"`
		Explanation string `json:"explanation"`
	}
	decode(t, putResp, &updated)
	if updated.Answer != "NC" || updated.Explanation != "Missing on scaffold crew" {
		t.Fatalf("unexpected updated item: %+v", updated)
	}

	req, _ = http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/items/%s", server.URL, item.ID), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete item: %v", err)
	}
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("delete item status %d", delResp.StatusCode)
	}
	delResp.Body.Close()

	req, _ = http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/items/%s", server.URL, item.ID), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	delResp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete item again: %v", err)
	}
	if delResp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleting missing item status %d, expected 404", delResp.StatusCode)
	}
	delResp.Body.Close()
}

func TestTeamMemberEndpoints(t *testing.T) {
	fs := newFakeStore()
	server := newTestServer(t, fs)
	token := signUp(t, server)
	templateID := createTemplate(t, server, token)

	resp := postJSON(t, server.URL+"/api/responses", token, map[string]any{
		"templateId":     templateID,
		"title":          "Walkthrough",
		"companyId":      "Acme Corp",
		"inspectionType": "closed",
	})
	var created struct {
		ID string `json:"id"`
	}
	decode(t, resp, &created)

	resp = postJSON(t, fmt.Sprintf("%s/api/responses/%s/members", server.URL, created.ID), token, map[string]any{
		"role":         "Inspector",
		"organization": "Acme",
		"fullName":     "Dana Field",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create member status %d", resp.StatusCode)
	}
	var member struct {
		ID string `json:"id"`
	}
	decode(t, resp, &member)

	// Incomplete member rejected.
	resp = postJSON(t, fmt.Sprintf("%s/api/responses/%s/members", server.URL, created.ID), token, map[string]any{
		"role":     "Escort",
		"fullName": "Lee Ramos",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("incomplete member status %d, expected 422", resp.StatusCode)
	}
	resp.Body.Close()

	listResp := getJSON(t, fmt.Sprintf("%s/api/responses/%s/members", server.URL, created.ID), token)
	var list struct {
		Members []map[string]any `json:"members"`
	}
	decode(t, listResp, &list)
	if len(list.Members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(list.Members))
	}
}

func TestFinalizeRecordsHistory(t *testing.T) {
	fs := newFakeStore()
	hist := &fakeHistory{}
	svc := newTestService(fs)
	svc.history = hist
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)

	token := signUp(t, server)
	templateID := createTemplate(t, server, token)
	resp := postJSON(t, server.URL+"/api/responses", token, map[string]any{
		"templateId":     templateID,
		"title":          "Walkthrough",
		"companyId":      "Acme Corp",
		"inspectionType": "closed",
	})
	var created struct {
		ID string `json:"id"`
	}
	decode(t, resp, &created)

	resp = postJSON(t, fmt.Sprintf("%s/api/responses/%s/finalize", server.URL, created.ID), token, map[string]any{
		"created": 2, "updated": 1, "deleted": 0,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finalize status %d", resp.StatusCode)
	}
	resp.Body.Close()

	if len(hist.recorded) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(hist.recorded))
	}
	if hist.recorded[0].ResponseID != created.ID {
		t.Fatalf("history recorded wrong response %q", hist.recorded[0].ResponseID)
	}
}

func TestSearchUnavailableWithoutBackend(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	token := signUp(t, server)

	resp := getJSON(t, server.URL+"/api/search?q=scaffold", token)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("search status %d, expected 503", resp.StatusCode)
	}
	resp.Body.Close()
}
