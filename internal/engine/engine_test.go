package engine

import (
	"context"
	"fmt"
)

// fakeAPI implements ResponseAPI with overridable behavior per call, the
// zero value acting as an in-memory server with counter ids.
type fakeAPI struct {
	fetchTemplateItemsFn func(context.Context, string) ([]TemplateItem, error)
	fetchResponseFn      func(context.Context, string) (ResponseHeader, error)
	fetchResponseItemsFn func(context.Context, string) ([]AnswerRecord, error)
	fetchTeamMembersFn   func(context.Context, string) ([]TeamMember, error)
	createResponseFn     func(context.Context, ResponseHeader) (string, error)
	updateResponseFn     func(context.Context, string, ResponseHeader) error
	createAnswerItemFn   func(context.Context, string, ItemID, int, AnswerFields) (string, error)
	updateAnswerItemFn   func(context.Context, string, AnswerFields) error
	deleteAnswerItemFn   func(context.Context, string) error
	createTeamMemberFn   func(context.Context, string, TeamMember) (string, error)
	updateTeamMemberFn   func(context.Context, string, TeamMember) error
	deleteTeamMemberFn   func(context.Context, string) error

	nextID int
	calls  []string
}

func (f *fakeAPI) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeAPI) FetchTemplateItems(ctx context.Context, templateID string) ([]TemplateItem, error) {
	if f.fetchTemplateItemsFn != nil {
		return f.fetchTemplateItemsFn(ctx, templateID)
	}
	return nil, nil
}

func (f *fakeAPI) FetchResponse(ctx context.Context, responseID string) (ResponseHeader, error) {
	if f.fetchResponseFn != nil {
		return f.fetchResponseFn(ctx, responseID)
	}
	return ResponseHeader{ID: responseID}, nil
}

func (f *fakeAPI) FetchResponseItems(ctx context.Context, responseID string) ([]AnswerRecord, error) {
	if f.fetchResponseItemsFn != nil {
		return f.fetchResponseItemsFn(ctx, responseID)
	}
	return nil, nil
}

func (f *fakeAPI) FetchTeamMembers(ctx context.Context, responseID string) ([]TeamMember, error) {
	if f.fetchTeamMembersFn != nil {
		return f.fetchTeamMembersFn(ctx, responseID)
	}
	return nil, nil
}

func (f *fakeAPI) CreateResponse(ctx context.Context, header ResponseHeader) (string, error) {
	f.calls = append(f.calls, "create response")
	if f.createResponseFn != nil {
		return f.createResponseFn(ctx, header)
	}
	return f.newID("resp"), nil
}

func (f *fakeAPI) UpdateResponse(ctx context.Context, responseID string, header ResponseHeader) error {
	f.calls = append(f.calls, "update response "+responseID)
	if f.updateResponseFn != nil {
		return f.updateResponseFn(ctx, responseID, header)
	}
	return nil
}

func (f *fakeAPI) CreateAnswerItem(ctx context.Context, responseID string, itemID ItemID, questionIndex int, fields AnswerFields) (string, error) {
	f.calls = append(f.calls, "create item "+string(itemID))
	if f.createAnswerItemFn != nil {
		return f.createAnswerItemFn(ctx, responseID, itemID, questionIndex, fields)
	}
	return f.newID("row"), nil
}

func (f *fakeAPI) UpdateAnswerItem(ctx context.Context, remoteID string, fields AnswerFields) error {
	f.calls = append(f.calls, "update item "+remoteID)
	if f.updateAnswerItemFn != nil {
		return f.updateAnswerItemFn(ctx, remoteID, fields)
	}
	return nil
}

func (f *fakeAPI) DeleteAnswerItem(ctx context.Context, remoteID string) error {
	f.calls = append(f.calls, "delete item "+remoteID)
	if f.deleteAnswerItemFn != nil {
		return f.deleteAnswerItemFn(ctx, remoteID)
	}
	return nil
}

func (f *fakeAPI) CreateTeamMember(ctx context.Context, responseID string, member TeamMember) (string, error) {
	f.calls = append(f.calls, "create member "+member.FullName)
	if f.createTeamMemberFn != nil {
		return f.createTeamMemberFn(ctx, responseID, member)
	}
	return f.newID("member"), nil
}

func (f *fakeAPI) UpdateTeamMember(ctx context.Context, memberID string, member TeamMember) error {
	f.calls = append(f.calls, "update member "+memberID)
	if f.updateTeamMemberFn != nil {
		return f.updateTeamMemberFn(ctx, memberID, member)
	}
	return nil
}

func (f *fakeAPI) DeleteTeamMember(ctx context.Context, memberID string) error {
	f.calls = append(f.calls, "delete member "+memberID)
	if f.deleteTeamMemberFn != nil {
		return f.deleteTeamMemberFn(ctx, memberID)
	}
	return nil
}

// fakeImageService records uploads and deletes.
type fakeImageService struct {
	uploadFn func(context.Context, string, string, string) (string, error)
	deleteFn func(context.Context, string) error

	uploads []string
	deletes []string
	nextID  int
}

func (f *fakeImageService) Upload(ctx context.Context, localRef, responseID, itemID string) (string, error) {
	f.uploads = append(f.uploads, localRef)
	if f.uploadFn != nil {
		return f.uploadFn(ctx, localRef, responseID, itemID)
	}
	f.nextID++
	return fmt.Sprintf("https://blobs.test/%s/%d", itemID, f.nextID), nil
}

func (f *fakeImageService) Delete(ctx context.Context, url string) error {
	f.deletes = append(f.deletes, url)
	if f.deleteFn != nil {
		return f.deleteFn(ctx, url)
	}
	return nil
}

func closedTemplate() []TemplateItem {
	return []TemplateItem{
		{ID: "q1", Category: "General", QuestionIndex: 0, Prompt: "Walkways clear?", Kind: AnswerSingleChoice, Options: []string{"C", "CP", "NC", "NA"}},
		{ID: "q2", Category: "General", QuestionIndex: 1, Prompt: "Observations", Kind: AnswerFreeText},
		{ID: "q3", Category: "PPE", QuestionIndex: 2, Prompt: "Missing equipment", Kind: AnswerMultipleChoice, Options: []string{"helmet", "gloves", "boots"}},
	}
}

func newSession(original Snapshot, roster []TeamMember) *EditState {
	header := ResponseHeader{TemplateID: "tpl-1", Title: "Weekly walk", Type: InspectionClosed}
	if original != nil {
		header.ID = "resp-1"
	}
	return NewEditState(NewCatalog(closedTemplate()), header, original, roster)
}
