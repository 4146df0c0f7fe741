package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"sitecheck/api/internal/store"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	rs, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return rs, s
}

func TestNewRedisStore(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	if err := rs.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	ctx := context.Background()
	user := store.User{ID: "user-123", DisplayName: "Dana Reyes", Email: "dana@example.com"}

	if err := rs.SaveRefreshSession(ctx, "hash-1", user, time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	got, err := rs.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if got.ID != user.ID || got.DisplayName != user.DisplayName || got.Email != user.Email {
		t.Errorf("unexpected user: %+v", got)
	}
}

func TestLookupUnknownToken(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	if _, err := rs.LookupRefreshSession(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	ctx := context.Background()
	user := store.User{ID: "user-123", DisplayName: "Dana Reyes"}
	if err := rs.SaveRefreshSession(ctx, "hash-1", user, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	if err := rs.RevokeRefreshSession(ctx, "hash-1"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}
	if _, err := rs.LookupRefreshSession(ctx, "hash-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after revoke, got %v", err)
	}
}

func TestSessionExpires(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	ctx := context.Background()
	user := store.User{ID: "user-123"}
	if err := rs.SaveRefreshSession(ctx, "hash-1", user, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	s.FastForward(2 * time.Minute)

	if _, err := rs.LookupRefreshSession(ctx, "hash-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after expiry, got %v", err)
	}
}
