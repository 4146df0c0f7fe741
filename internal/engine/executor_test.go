package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newExecutorForState(state *EditState) (*Executor, *fakeAPI, *fakeImageService) {
	api := &fakeAPI{}
	blobs := &fakeImageService{}
	images := NewImageManager(blobs, state)
	return NewExecutor(api, images, state), api, blobs
}

func TestExecuteNewResponseCreatesHeaderAndAnswer(t *testing.T) {
	state := newSession(nil, nil)
	state.SetAnswer("q1", "C")
	exec, api, _ := newExecutorForState(state)

	counts, err := exec.Execute(context.Background(), state.Plan())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if counts != (Counts{Created: 1}) {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if state.Header().ID == "" {
		t.Fatal("expected server-assigned response id on the header")
	}

	record, _ := state.Record("q1")
	if record.RemoteID == "" {
		t.Fatal("expected remote id written back into edit state")
	}
	original, ok := state.OriginalRecord("q1")
	if !ok || original.RemoteID != record.RemoteID {
		t.Fatalf("expected snapshot advanced to saved row, got %+v", original)
	}
	if _, ok := state.OriginalRecord("q2"); ok {
		t.Fatal("unanswered item must not enter the snapshot")
	}
	if api.calls[0] != "create response" {
		t.Fatalf("header upsert must run first, calls: %v", api.calls)
	}
}

func TestExecuteSecondSaveReportsUnchanged(t *testing.T) {
	state := newSession(nil, nil)
	state.SetAnswer("q1", "C")
	state.SetAnswer("q2", "All clear")
	exec, _, _ := newExecutorForState(state)

	if _, err := exec.Execute(context.Background(), state.Plan()); err != nil {
		t.Fatalf("first Execute() error = %v", err)
	}
	counts, err := exec.Execute(context.Background(), state.Plan())
	if err != nil {
		t.Fatalf("second Execute() error = %v", err)
	}
	if counts != (Counts{Unchanged: 2}) {
		t.Fatalf("second unmodified save should be all unchanged, got %+v", counts)
	}
}

func TestExecuteStopsOnFirstFailureKeepingPrefix(t *testing.T) {
	original := Snapshot{
		"q2": {ItemID: "q2", Answer: "old text", RemoteID: "row-b"},
	}
	state := newSession(original, nil)
	state.SetAnswer("q1", "C")        // create A
	state.SetAnswer("q2", "new text") // update B, will fail
	state.SetAnswer("q3", "helmet")   // create C, never reached

	exec, api, _ := newExecutorForState(state)
	boom := errors.New("boom")
	api.updateAnswerItemFn = func(context.Context, string, AnswerFields) error { return boom }

	counts, err := exec.Execute(context.Background(), state.Plan())
	if !errors.Is(err, boom) {
		t.Fatalf("expected the update failure surfaced, got %v", err)
	}
	if counts != (Counts{Created: 1}) {
		t.Fatalf("expected only the prefix counted, got %+v", counts)
	}

	// A is committed: remote id assigned and present in the snapshot.
	recordA, _ := state.Record("q1")
	if recordA.RemoteID == "" {
		t.Fatal("prefix create must stay committed")
	}
	if _, ok := state.OriginalRecord("q1"); !ok {
		t.Fatal("prefix create must be reflected in the snapshot")
	}

	// B keeps its old snapshot value, C was never attempted.
	originalB, _ := state.OriginalRecord("q2")
	if originalB.Answer != "old text" {
		t.Fatalf("failed update must not advance the snapshot, got %q", originalB.Answer)
	}
	recordC, _ := state.Record("q3")
	if recordC.RemoteID != "" {
		t.Fatal("operation after the failure must not run")
	}
	for _, call := range api.calls {
		if strings.HasPrefix(call, "create item q3") {
			t.Fatalf("create for q3 must not be issued, calls: %v", api.calls)
		}
	}

	// A retry reconciles only the outstanding work.
	api.updateAnswerItemFn = nil
	counts, err = exec.Execute(context.Background(), state.Plan())
	if err != nil {
		t.Fatalf("retry Execute() error = %v", err)
	}
	if counts != (Counts{Created: 1, Updated: 1, Unchanged: 1}) {
		t.Fatalf("unexpected retry counts: %+v", counts)
	}
}

func TestExecuteDeleteRemovesRowTracking(t *testing.T) {
	original := Snapshot{
		"q1": {ItemID: "q1", Answer: "C", RemoteID: "row-1"},
	}
	state := newSession(original, nil)
	state.SetAnswer("q1", "")
	exec, api, _ := newExecutorForState(state)

	counts, err := exec.Execute(context.Background(), state.Plan())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if counts != (Counts{Deleted: 1}) {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if _, ok := state.OriginalRecord("q1"); ok {
		t.Fatal("deleted row must leave the snapshot")
	}
	record, _ := state.Record("q1")
	if record.RemoteID != "" {
		t.Fatal("deleted row must clear remote id tracking")
	}
	found := false
	for _, call := range api.calls {
		if call == "delete item row-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected delete call for row-1, calls: %v", api.calls)
	}
}

func TestExecuteUploadsPendingImageAndDeletesOldBlob(t *testing.T) {
	oldURL := "https://blobs.test/q1/old.jpg"
	original := Snapshot{
		"q1": {ItemID: "q1", Answer: "C", RemoteID: "row-1", Image: StoredImage(oldURL)},
	}
	state := newSession(original, nil)
	exec, _, blobs := newExecutorForState(state)
	images := exec.images
	if !images.Attach("q1", "/tmp/capture.jpg") {
		t.Fatal("attach failed")
	}

	if _, err := exec.Execute(context.Background(), state.Plan()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(blobs.uploads) != 1 {
		t.Fatalf("expected exactly one upload, got %v", blobs.uploads)
	}
	if len(blobs.deletes) != 1 || blobs.deletes[0] != oldURL {
		t.Fatalf("expected old blob deleted first, got %v", blobs.deletes)
	}
	record, _ := state.Record("q1")
	if !record.Image.IsStored() || record.Image.URL() == oldURL {
		t.Fatalf("expected new stored url on the record, got %+v", record.Image)
	}
}

func TestExecuteOldBlobDeleteFailureDoesNotBlockUpload(t *testing.T) {
	original := Snapshot{
		"q1": {ItemID: "q1", Answer: "C", RemoteID: "row-1", Image: StoredImage("https://blobs.test/q1/old.jpg")},
	}
	state := newSession(original, nil)
	exec, _, blobs := newExecutorForState(state)
	blobs.deleteFn = func(context.Context, string) error { return errors.New("blob store down") }
	exec.images.Attach("q1", "/tmp/capture.jpg")

	if _, err := exec.Execute(context.Background(), state.Plan()); err != nil {
		t.Fatalf("old-blob delete failure must be swallowed, got %v", err)
	}
	if len(blobs.uploads) != 1 {
		t.Fatalf("expected upload despite failed delete, got %v", blobs.uploads)
	}
}

func TestExecuteRetryReusesUploadedBlob(t *testing.T) {
	state := newSession(nil, nil)
	state.SetAnswer("q1", "C")
	exec, api, blobs := newExecutorForState(state)
	exec.images.Attach("q1", "/tmp/capture.jpg")

	boom := errors.New("boom")
	api.createAnswerItemFn = func(context.Context, string, ItemID, int, AnswerFields) (string, error) {
		return "", boom
	}
	if _, err := exec.Execute(context.Background(), state.Plan()); !errors.Is(err, boom) {
		t.Fatalf("expected row create failure, got %v", err)
	}
	if len(blobs.uploads) != 1 {
		t.Fatalf("expected one upload before the failure, got %v", blobs.uploads)
	}

	// Retry: the blob is already up; only the row call repeats.
	api.createAnswerItemFn = nil
	if _, err := exec.Execute(context.Background(), state.Plan()); err != nil {
		t.Fatalf("retry Execute() error = %v", err)
	}
	if len(blobs.uploads) != 1 {
		t.Fatalf("retry must not duplicate the blob, uploads: %v", blobs.uploads)
	}
}

func TestRemoveWithoutBlobServiceClearsRef(t *testing.T) {
	original := Snapshot{
		"q1": {ItemID: "q1", Answer: "C", RemoteID: "row-1", Image: StoredImage("https://blobs.test/q1/old.jpg")},
	}
	state := newSession(original, nil)
	images := NewImageManager(nil, state)

	images.Remove(context.Background(), "q1")

	record, _ := state.Record("q1")
	if !record.Image.IsNone() {
		t.Fatalf("expected cleared image ref, got %+v", record.Image)
	}
}

func TestResolveWithoutBlobServiceRejectsPendingImage(t *testing.T) {
	state := newSession(nil, nil)
	state.SetAnswer("q1", "C")
	images := NewImageManager(nil, state)
	if !images.Attach("q1", "/tmp/capture.jpg") {
		t.Fatal("attach failed")
	}

	record, _ := state.Record("q1")
	if _, err := images.Resolve(context.Background(), "rsp_1", record, ""); err == nil {
		t.Fatal("expected error when a pending image has no blob service to upload through")
	}
}

func TestExecuteTeamOperationsAfterItems(t *testing.T) {
	state := newSession(nil, nil)
	state.SetAnswer("q1", "C")
	state.SetTeam([]TeamMember{
		{Role: "Lead", Organization: "Acme", FullName: "Sam Ortiz"},
	})
	exec, api, _ := newExecutorForState(state)

	counts, err := exec.Execute(context.Background(), state.Plan())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if counts != (Counts{Created: 2}) {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	team := state.Team()
	if len(team) != 1 || team[0].ID == "" {
		t.Fatalf("expected member id written back, got %+v", team)
	}

	itemIdx, memberIdx := -1, -1
	for i, call := range api.calls {
		switch {
		case strings.HasPrefix(call, "create item"):
			itemIdx = i
		case strings.HasPrefix(call, "create member"):
			memberIdx = i
		}
	}
	if memberIdx < itemIdx {
		t.Fatalf("roster operations must run after answer items: %v", api.calls)
	}

	// Running the plan again updates the now-persisted member but leaves
	// the answer untouched.
	counts, err = exec.Execute(context.Background(), state.Plan())
	if err != nil {
		t.Fatalf("second Execute() error = %v", err)
	}
	if counts.Created != 0 || counts.Unchanged != 1 {
		t.Fatalf("unexpected second-pass counts: %+v", counts)
	}
}
