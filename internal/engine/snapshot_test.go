package engine

import (
	"context"
	"errors"
	"testing"
)

func loaderAPI() *fakeAPI {
	return &fakeAPI{
		fetchTemplateItemsFn: func(context.Context, string) ([]TemplateItem, error) {
			return closedTemplate(), nil
		},
		fetchResponseFn: func(_ context.Context, responseID string) (ResponseHeader, error) {
			return ResponseHeader{ID: responseID, TemplateID: "tpl-1", Title: "Weekly walk", Type: InspectionClosed}, nil
		},
		fetchResponseItemsFn: func(context.Context, string) ([]AnswerRecord, error) {
			return []AnswerRecord{
				{ItemID: "q1", Answer: "C", RemoteID: "row-1", Image: StoredImage("https://blobs.test/q1/a.jpg")},
			}, nil
		},
		fetchTeamMembersFn: func(context.Context, string) ([]TeamMember, error) {
			return []TeamMember{{ID: "m1", Role: "Lead", Organization: "Acme", FullName: "Sam Ortiz"}}, nil
		},
	}
}

func TestLoadNewSeedsEmptyRecordPerItem(t *testing.T) {
	loader := NewLoader(loaderAPI())
	state, err := loader.LoadNew(context.Background(), "tpl-1", ResponseHeader{Title: "First walk", Type: InspectionClosed})
	if err != nil {
		t.Fatalf("LoadNew() error = %v", err)
	}
	if state.Header().ID != "" {
		t.Fatal("new response must not carry a server id")
	}
	for _, item := range closedTemplate() {
		record, ok := state.Record(item.ID)
		if !ok {
			t.Fatalf("missing seeded record for %s", item.ID)
		}
		if record.Answer != "" || record.RemoteID != "" {
			t.Fatalf("expected empty seed for %s, got %+v", item.ID, record)
		}
	}
	if ops := state.Plan().Items; len(ops) != 0 {
		t.Fatalf("fresh session must reconcile to nothing, got %+v", ops)
	}
}

func TestLoadExistingSeedsPriorValues(t *testing.T) {
	loader := NewLoader(loaderAPI())
	state, err := loader.Load(context.Background(), "tpl-1", "resp-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	record, _ := state.Record("q1")
	if record.Answer != "C" || record.RemoteID != "row-1" {
		t.Fatalf("expected prior values carried into edit state, got %+v", record)
	}
	if record.Image.URL() != "https://blobs.test/q1/a.jpg" {
		t.Fatalf("expected stored image carried over, got %+v", record.Image)
	}

	record2, _ := state.Record("q2")
	if record2.Answer != "" || record2.RemoteID != "" {
		t.Fatalf("never-persisted item must seed empty, got %+v", record2)
	}

	team := state.Team()
	if len(team) != 1 || team[0].ID != "m1" {
		t.Fatalf("expected loaded roster, got %+v", team)
	}
}

func TestLoadIsAllOrNothing(t *testing.T) {
	api := loaderAPI()
	api.fetchResponseItemsFn = func(context.Context, string) ([]AnswerRecord, error) {
		return nil, errors.New("connection reset")
	}
	loader := NewLoader(api)

	state, err := loader.Load(context.Background(), "tpl-1", "resp-1")
	if state != nil {
		t.Fatal("partial load must not return state")
	}
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected LoadError, got %v", err)
	}
}

func TestLoadSurfacesUnauthenticated(t *testing.T) {
	api := loaderAPI()
	api.fetchTemplateItemsFn = func(context.Context, string) ([]TemplateItem, error) {
		return nil, ErrUnauthenticated
	}
	loader := NewLoader(api)

	_, err := loader.Load(context.Background(), "tpl-1", "resp-1")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("unauthenticated condition must stay distinguishable, got %v", err)
	}
}
