package engine

import "strings"

// OpKind classifies what the sync executor must do for one answer row.
type OpKind int

const (
	OpCreate OpKind = iota
	OpUpdate
	OpDelete
	// OpUnchanged rows are counted for user feedback, never sent.
	OpUnchanged
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Operation is one reconciled answer-row action. Record carries the full
// current state for create/update so the executor can resolve a pending
// image at apply time; RemoteID is set for update/delete/unchanged.
type Operation struct {
	Kind     OpKind
	ItemID   ItemID
	RemoteID string
	Record   AnswerRecord
}

// TeamOperation is one reconciled roster action. Index addresses the entry
// in the current roster so a created member's id can be written back.
type TeamOperation struct {
	Kind   OpKind
	Index  int
	ID     string
	Member TeamMember
}

// OperationList is the full plan for one save pass.
type OperationList struct {
	Items []Operation
	Team  []TeamOperation
}

// Reconcile diffs the current edit state against the original snapshot and
// returns the operations needed to converge, in template order. It is a pure
// function: no I/O, no mutation of its inputs.
//
// Per item: an empty trimmed answer yields no create/update (and a delete
// when a persisted row exists); an answer that fails option-set validation
// is skipped outright, existing row left untouched; otherwise presence of a
// remote id decides create versus update/unchanged. A pending local image
// always counts as changed, even against an identical stored URL.
func Reconcile(original Snapshot, current map[ItemID]AnswerRecord, items []TemplateItem, typ InspectionType) []Operation {
	ops := make([]Operation, 0, len(items))
	cleared := make([]ItemID, 0)

	for _, item := range items {
		record, ok := current[item.ID]
		if !ok {
			continue
		}
		record.Answer = strings.TrimSpace(record.Answer)
		if typ == InspectionOpen {
			// Explanations belong to closed-type responses only.
			record.Explanation = ""
		}

		if record.Answer == "" {
			if prior, existed := original[item.ID]; existed && prior.RemoteID != "" {
				cleared = append(cleared, item.ID)
			}
			continue
		}
		if !item.AcceptsAnswer(record.Answer) {
			// Stale or template-mismatched answer: never sent, never deleted.
			continue
		}

		if record.RemoteID == "" {
			ops = append(ops, Operation{Kind: OpCreate, ItemID: item.ID, Record: record})
			continue
		}

		prior := original[item.ID]
		if answerChanged(prior, record) {
			ops = append(ops, Operation{Kind: OpUpdate, ItemID: item.ID, RemoteID: record.RemoteID, Record: record})
		} else {
			ops = append(ops, Operation{Kind: OpUnchanged, ItemID: item.ID, RemoteID: record.RemoteID, Record: record})
		}
	}

	for _, id := range cleared {
		prior := original[id]
		ops = append(ops, Operation{Kind: OpDelete, ItemID: id, RemoteID: prior.RemoteID, Record: prior})
	}
	return ops
}

func answerChanged(prior, record AnswerRecord) bool {
	if strings.TrimSpace(prior.Answer) != record.Answer {
		return true
	}
	if prior.Explanation != record.Explanation {
		return true
	}
	return !prior.Image.sameAs(record.Image)
}

// ReconcileTeam diffs the current roster against the previously loaded one.
// Complete members are created or updated by presence of an id; members
// missing a required field are skipped entirely; previously loaded members
// no longer present are deleted.
func ReconcileTeam(previous, current []TeamMember) []TeamOperation {
	ops := make([]TeamOperation, 0, len(current))
	present := make(map[string]struct{}, len(current))

	for i, member := range current {
		if member.ID != "" {
			present[member.ID] = struct{}{}
		}
		if !member.complete() {
			continue
		}
		member.SortOrder = i
		if member.ID == "" {
			ops = append(ops, TeamOperation{Kind: OpCreate, Index: i, Member: member})
		} else {
			ops = append(ops, TeamOperation{Kind: OpUpdate, Index: i, ID: member.ID, Member: member})
		}
	}

	for _, member := range previous {
		if member.ID == "" {
			continue
		}
		if _, ok := present[member.ID]; !ok {
			ops = append(ops, TeamOperation{Kind: OpDelete, ID: member.ID, Member: member, Index: -1})
		}
	}
	return ops
}
