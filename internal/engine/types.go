// Package engine implements the response reconciliation engine: it diffs a
// locally edited inspection response against the last server-confirmed
// snapshot, computes the create/update/delete operations needed to converge,
// and applies them one at a time against the remote API while managing the
// lifecycle of externally stored question images.
package engine

import "strings"

// ItemID identifies a template question. It is deliberately opaque so that
// answer state is never addressed by display position.
type ItemID string

type InspectionType string

const (
	InspectionClosed InspectionType = "closed"
	InspectionOpen   InspectionType = "open"
)

// ImageRef is the single image state attached to an answer: no image, a
// blob-store URL confirmed by the server, or a local capture that has not
// been uploaded yet.
type ImageRef struct {
	kind     imageKind
	url      string
	localRef string
}

type imageKind int

const (
	imageNone imageKind = iota
	imageStored
	imagePending
)

func NoImage() ImageRef { return ImageRef{} }

func StoredImage(url string) ImageRef {
	if url == "" {
		return ImageRef{}
	}
	return ImageRef{kind: imageStored, url: url}
}

func PendingImage(localRef string) ImageRef {
	if localRef == "" {
		return ImageRef{}
	}
	return ImageRef{kind: imagePending, localRef: localRef}
}

func (r ImageRef) IsNone() bool    { return r.kind == imageNone }
func (r ImageRef) IsStored() bool  { return r.kind == imageStored }
func (r ImageRef) IsPending() bool { return r.kind == imagePending }

// URL returns the remote URL for a stored image, or "" otherwise.
func (r ImageRef) URL() string {
	if r.kind == imageStored {
		return r.url
	}
	return ""
}

// LocalRef returns the local file reference for a pending capture, or "".
func (r ImageRef) LocalRef() string {
	if r.kind == imagePending {
		return r.localRef
	}
	return ""
}

// sameAs reports whether two refs would persist the same remote value. A
// pending capture is never the same as anything, including a stored URL with
// a coincidentally matching name: it must force a re-save.
func (r ImageRef) sameAs(other ImageRef) bool {
	if r.kind == imagePending || other.kind == imagePending {
		return false
	}
	return r.URL() == other.URL()
}

// AnswerRecord is the unit of reconciliation: one question's answer state
// within a response. RemoteID is empty until the row has been persisted.
type AnswerRecord struct {
	ItemID        ItemID
	QuestionIndex int
	Answer        string
	Explanation   string
	Image         ImageRef
	RemoteID      string
}

// Snapshot is the last server-confirmed answer state, keyed by item id. An
// absent entry means the item was never persisted.
type Snapshot map[ItemID]AnswerRecord

// TeamMember is one roster entry on a response. ID is empty until persisted.
type TeamMember struct {
	ID           string
	Role         string
	Organization string
	FullName     string
	SortOrder    int
}

// complete reports whether every required roster field is filled in.
// Incomplete members are never sent to the server.
func (m TeamMember) complete() bool {
	return strings.TrimSpace(m.Role) != "" &&
		strings.TrimSpace(m.Organization) != "" &&
		strings.TrimSpace(m.FullName) != ""
}

// ResponseHeader is the per-response record. ID is assigned by the server on
// first save and the header is re-upserted on every subsequent save.
type ResponseHeader struct {
	ID         string
	TemplateID string
	Title      string
	CompanyID  string
	Notes      string
	Type       InspectionType
}
