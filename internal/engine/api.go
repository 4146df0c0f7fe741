package engine

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnauthenticated is returned by API implementations when the remote
// rejects the session (401/403 equivalent). Callers surface it as a re-login
// prompt instead of a generic save failure.
var ErrUnauthenticated = errors.New("unauthenticated")

// LoadError wraps a failure while assembling the initial edit state. The
// screen must not enter edit mode when one is returned; partial seeding is
// never exposed.
type LoadError struct {
	Stage string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// AnswerFields carries the field values persisted for one answer row. Image
// is the resolved remote URL, empty for no image.
type AnswerFields struct {
	Answer      string
	Explanation string
	ImageURL    string
}

// ResponseAPI is the remote record store as seen by the engine. Implemented
// over HTTP by the apiclient package and by fakes in tests.
type ResponseAPI interface {
	FetchTemplateItems(ctx context.Context, templateID string) ([]TemplateItem, error)
	FetchResponse(ctx context.Context, responseID string) (ResponseHeader, error)
	FetchResponseItems(ctx context.Context, responseID string) ([]AnswerRecord, error)
	FetchTeamMembers(ctx context.Context, responseID string) ([]TeamMember, error)

	CreateResponse(ctx context.Context, header ResponseHeader) (string, error)
	UpdateResponse(ctx context.Context, responseID string, header ResponseHeader) error

	CreateAnswerItem(ctx context.Context, responseID string, itemID ItemID, questionIndex int, fields AnswerFields) (string, error)
	UpdateAnswerItem(ctx context.Context, remoteID string, fields AnswerFields) error
	DeleteAnswerItem(ctx context.Context, remoteID string) error

	CreateTeamMember(ctx context.Context, responseID string, member TeamMember) (string, error)
	UpdateTeamMember(ctx context.Context, memberID string, member TeamMember) error
	DeleteTeamMember(ctx context.Context, memberID string) error
}

// ImageService is the external blob store for question images.
type ImageService interface {
	Upload(ctx context.Context, localRef, responseID, itemID string) (string, error)
	Delete(ctx context.Context, url string) error
}
