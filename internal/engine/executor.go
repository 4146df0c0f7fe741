package engine

import (
	"context"
	"fmt"
)

// Counts aggregates what one save pass did, for user-visible reporting.
type Counts struct {
	Created   int
	Updated   int
	Deleted   int
	Unchanged int
}

// Executor applies an operation list against the remote API, one call at a
// time in plan order. On each success it advances the edit state and the
// original snapshot in place; on the first failure it stops and returns,
// leaving everything already applied committed. There is no rollback: the
// state after a failed pass reflects exactly the prefix that succeeded, so a
// retry reconciles only what is still outstanding.
type Executor struct {
	api    ResponseAPI
	images *ImageManager
	state  *EditState
}

func NewExecutor(api ResponseAPI, images *ImageManager, state *EditState) *Executor {
	return &Executor{api: api, images: images, state: state}
}

// Execute runs one full save pass: header upsert first (unconditional, the
// overwrite is cheap and idempotent), then answer operations in template
// order, then roster operations.
func (e *Executor) Execute(ctx context.Context, plan OperationList) (Counts, error) {
	var counts Counts

	header := e.state.Header()
	if header.ID == "" {
		responseID, err := e.api.CreateResponse(ctx, header)
		if err != nil {
			return counts, fmt.Errorf("create response: %w", err)
		}
		e.state.commitHeader(responseID)
	} else {
		if err := e.api.UpdateResponse(ctx, header.ID, header); err != nil {
			return counts, fmt.Errorf("update response %s: %w", header.ID, err)
		}
	}
	responseID := e.state.Header().ID

	for _, op := range plan.Items {
		if err := e.applyItem(ctx, responseID, op, &counts); err != nil {
			return counts, err
		}
	}
	for _, op := range plan.Team {
		if err := e.applyTeam(ctx, responseID, op, &counts); err != nil {
			return counts, err
		}
	}
	return counts, nil
}

func (e *Executor) applyItem(ctx context.Context, responseID string, op Operation, counts *Counts) error {
	switch op.Kind {
	case OpCreate, OpUpdate:
		oldURL := ""
		if prior, ok := e.state.OriginalRecord(op.ItemID); ok {
			oldURL = prior.Image.URL()
		}
		imageURL, err := e.images.Resolve(ctx, responseID, op.Record, oldURL)
		if err != nil {
			return err
		}
		fields := AnswerFields{
			Answer:      op.Record.Answer,
			Explanation: op.Record.Explanation,
			ImageURL:    imageURL,
		}
		remoteID := op.RemoteID
		if op.Kind == OpCreate {
			remoteID, err = e.api.CreateAnswerItem(ctx, responseID, op.ItemID, op.Record.QuestionIndex, fields)
			if err != nil {
				return fmt.Errorf("create answer for item %s: %w", op.ItemID, err)
			}
			counts.Created++
		} else {
			if err := e.api.UpdateAnswerItem(ctx, remoteID, fields); err != nil {
				return fmt.Errorf("update answer %s: %w", remoteID, err)
			}
			counts.Updated++
		}
		e.state.commitAnswerSave(op.ItemID, remoteID, fields)
		e.images.commit(op.ItemID)

	case OpDelete:
		if err := e.api.DeleteAnswerItem(ctx, op.RemoteID); err != nil {
			return fmt.Errorf("delete answer %s: %w", op.RemoteID, err)
		}
		e.state.commitAnswerDelete(op.ItemID)
		counts.Deleted++

	case OpUnchanged:
		counts.Unchanged++
	}
	return nil
}

func (e *Executor) applyTeam(ctx context.Context, responseID string, op TeamOperation, counts *Counts) error {
	switch op.Kind {
	case OpCreate:
		memberID, err := e.api.CreateTeamMember(ctx, responseID, op.Member)
		if err != nil {
			return fmt.Errorf("create team member %q: %w", op.Member.FullName, err)
		}
		e.state.commitTeamCreate(op.Index, memberID)
		counts.Created++
	case OpUpdate:
		if err := e.api.UpdateTeamMember(ctx, op.ID, op.Member); err != nil {
			return fmt.Errorf("update team member %s: %w", op.ID, err)
		}
		e.state.commitTeamUpdate(op.Member)
		counts.Updated++
	case OpDelete:
		if err := e.api.DeleteTeamMember(ctx, op.ID); err != nil {
			return fmt.Errorf("delete team member %s: %w", op.ID, err)
		}
		e.state.commitTeamDelete(op.ID)
		counts.Deleted++
	}
	return nil
}
