package engine

import (
	"context"
	"fmt"
	"log"
)

// ImageManager wraps the external blob service and tracks per-item upload
// state for one edit session. It guarantees at most one outstanding blob per
// question item: a retried save reuses the URL already uploaded for the same
// local capture instead of pushing a duplicate, and a replaced capture gets
// its superseded blob deleted best-effort before the new upload.
type ImageManager struct {
	svc      ImageService
	state    *EditState
	inflight map[ItemID]bool
	uploaded map[ItemID]uploadResult
}

type uploadResult struct {
	localRef string
	url      string
}

func NewImageManager(svc ImageService, state *EditState) *ImageManager {
	return &ImageManager{
		svc:      svc,
		state:    state,
		inflight: make(map[ItemID]bool),
		uploaded: make(map[ItemID]uploadResult),
	}
}

// Attach records a freshly captured or selected local image for an item. The
// upload itself happens when the save pass resolves the operation. Returns
// false while a previous capture for the same item is still being uploaded;
// the caller keeps the control disabled in that window.
func (m *ImageManager) Attach(id ItemID, localRef string) bool {
	if m.inflight[id] {
		return false
	}
	return m.state.setImage(id, PendingImage(localRef))
}

// Remove clears the image from an item without replacing it. A previously
// stored blob gets a delete call; a failure there is logged and the removal
// proceeds anyway, as does running without a blob service at all. Answer
// fields and the persisted row are untouched.
func (m *ImageManager) Remove(ctx context.Context, id ItemID) {
	image := m.state.currentImage(id)
	if url := image.URL(); url != "" && m.svc != nil {
		if err := m.svc.Delete(ctx, url); err != nil {
			log.Printf("images: delete %s for item %s: %v", url, id, err)
		}
	}
	delete(m.uploaded, id)
	m.state.setImage(id, NoImage())
}

// Resolve returns the remote image URL to persist for one answer row. A
// pending capture is uploaded here, after a best-effort delete of whatever
// blob the server currently references for the item. oldURL is that
// currently referenced blob, empty if none.
func (m *ImageManager) Resolve(ctx context.Context, responseID string, record AnswerRecord, oldURL string) (string, error) {
	image := record.Image
	if !image.IsPending() {
		return image.URL(), nil
	}
	if m.svc == nil {
		return "", fmt.Errorf("upload image for item %s: no blob service configured", record.ItemID)
	}

	if prev, ok := m.uploaded[record.ItemID]; ok {
		if prev.localRef == image.LocalRef() {
			// Same capture already made it to blob storage on an earlier
			// attempt; the row save is what failed. Reuse the blob.
			return prev.url, nil
		}
		// The user re-captured after a failed save. The first blob is now
		// orphaned; try to reclaim it.
		if err := m.svc.Delete(ctx, prev.url); err != nil {
			log.Printf("images: delete superseded upload %s for item %s: %v", prev.url, record.ItemID, err)
		}
		delete(m.uploaded, record.ItemID)
	}

	if oldURL != "" {
		if err := m.svc.Delete(ctx, oldURL); err != nil {
			log.Printf("images: delete old image %s for item %s: %v", oldURL, record.ItemID, err)
		}
	}

	m.inflight[record.ItemID] = true
	url, err := m.svc.Upload(ctx, image.LocalRef(), responseID, string(record.ItemID))
	m.inflight[record.ItemID] = false
	if err != nil {
		return "", fmt.Errorf("upload image for item %s: %w", record.ItemID, err)
	}
	m.uploaded[record.ItemID] = uploadResult{localRef: image.LocalRef(), url: url}
	return url, nil
}

// commit forgets retry bookkeeping for an item once the server has
// confirmed the row that references the uploaded blob.
func (m *ImageManager) commit(id ItemID) {
	delete(m.uploaded, id)
}
