package authpw

import (
	"context"
	"errors"
	"testing"

	"sitecheck/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string // email -> userID
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return nil
}

func TestSignUpAndSignIn(t *testing.T) {
	svc := NewService(newMockUserStore())
	ctx := context.Background()

	created, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "Dana@Example.com",
		Password:    "correct-horse",
		DisplayName: "Dana Field",
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if created.Email != "dana@example.com" {
		t.Fatalf("email not normalized: %q", created.Email)
	}
	if created.PasswordHash == "correct-horse" {
		t.Fatal("password stored in plain text")
	}

	user, err := svc.SignIn(ctx, SignInRequest{Email: "dana@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("expected user %s, got %s", created.ID, user.ID)
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	svc := NewService(newMockUserStore())
	ctx := context.Background()

	req := SignUpRequest{Email: "dana@example.com", Password: "correct-horse", DisplayName: "Dana"}
	if _, err := svc.SignUp(ctx, req); err != nil {
		t.Fatalf("first sign up: %v", err)
	}
	if _, err := svc.SignUp(ctx, req); err == nil {
		t.Fatal("expected duplicate email to be rejected")
	}
}

func TestSignUpRejectsShortPassword(t *testing.T) {
	svc := NewService(newMockUserStore())

	_, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "dana@example.com",
		Password:    "short",
		DisplayName: "Dana",
	})
	if err == nil {
		t.Fatal("expected short password to be rejected")
	}
}

func TestSignInWrongPassword(t *testing.T) {
	svc := NewService(newMockUserStore())
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "dana@example.com", Password: "correct-horse", DisplayName: "Dana"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "dana@example.com", Password: "battery-staple"}); err == nil {
		t.Fatal("expected wrong password to be rejected")
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "nobody@example.com", Password: "correct-horse"}); err == nil {
		t.Fatal("expected unknown email to be rejected")
	}
}
