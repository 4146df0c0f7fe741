package engine

import "context"

// Loader assembles the initial state for an editing session. Loading is
// all-or-nothing: any fetch or decode failure returns a LoadError and no
// partially seeded state.
type Loader struct {
	api ResponseAPI
}

func NewLoader(api ResponseAPI) *Loader {
	return &Loader{api: api}
}

// LoadNew starts a session for a response that has never been saved. The
// caller fills in the header's title, company and type before the first
// save.
func (l *Loader) LoadNew(ctx context.Context, templateID string, header ResponseHeader) (*EditState, error) {
	catalog, err := l.loadCatalog(ctx, templateID)
	if err != nil {
		return nil, err
	}
	header.ID = ""
	header.TemplateID = templateID
	return NewEditState(catalog, header, nil, nil), nil
}

// Load starts a session for an existing response: it fetches the header,
// the persisted answer rows and the roster, and seeds the edit state with
// one record per template item, prior values where present.
func (l *Loader) Load(ctx context.Context, templateID, responseID string) (*EditState, error) {
	catalog, err := l.loadCatalog(ctx, templateID)
	if err != nil {
		return nil, err
	}

	header, err := l.api.FetchResponse(ctx, responseID)
	if err != nil {
		return nil, &LoadError{Stage: "response", Err: err}
	}
	rows, err := l.api.FetchResponseItems(ctx, responseID)
	if err != nil {
		return nil, &LoadError{Stage: "response items", Err: err}
	}
	roster, err := l.api.FetchTeamMembers(ctx, responseID)
	if err != nil {
		return nil, &LoadError{Stage: "team members", Err: err}
	}

	original := make(Snapshot, len(rows))
	for _, row := range rows {
		// Rows for questions no longer in the template stay in the
		// snapshot untouched; reconciliation never deletes what it
		// cannot attribute to a template item.
		original[row.ItemID] = row
	}
	return NewEditState(catalog, header, original, roster), nil
}

func (l *Loader) loadCatalog(ctx context.Context, templateID string) (*Catalog, error) {
	items, err := l.api.FetchTemplateItems(ctx, templateID)
	if err != nil {
		return nil, &LoadError{Stage: "template items", Err: err}
	}
	return NewCatalog(items), nil
}
