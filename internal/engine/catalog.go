package engine

import (
	"sort"
	"strings"
)

type AnswerKind string

const (
	AnswerFreeText       AnswerKind = "free_text"
	AnswerSingleChoice   AnswerKind = "single_choice"
	AnswerMultipleChoice AnswerKind = "multiple_choice"
)

// TemplateItem is one question definition from a form template. Items are
// immutable once loaded; the engine only ever reads them.
type TemplateItem struct {
	ID            ItemID
	Category      string
	QuestionIndex int
	Prompt        string
	Kind          AnswerKind
	Options       []string
}

// AcceptsAnswer reports whether a trimmed, non-empty answer is valid for
// this question. Closed kinds must match the option set exactly; for
// multiple choice every comma-separated token must match. Stale answers that
// no longer fit the template are treated as invalid, not as errors.
func (it TemplateItem) AcceptsAnswer(answer string) bool {
	if answer == "" {
		return false
	}
	switch it.Kind {
	case AnswerFreeText:
		return true
	case AnswerSingleChoice:
		return it.hasOption(answer)
	case AnswerMultipleChoice:
		tokens := strings.Split(answer, ",")
		for _, token := range tokens {
			if !it.hasOption(strings.TrimSpace(token)) {
				return false
			}
		}
		return len(tokens) > 0
	default:
		return false
	}
}

func (it TemplateItem) hasOption(value string) bool {
	for _, option := range it.Options {
		if option == value {
			return true
		}
	}
	return false
}

// Catalog is the ordered, read-only set of questions for one template.
type Catalog struct {
	items []TemplateItem
	byID  map[ItemID]TemplateItem
}

// NewCatalog copies items into display order (by question index).
func NewCatalog(items []TemplateItem) *Catalog {
	ordered := make([]TemplateItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].QuestionIndex < ordered[j].QuestionIndex
	})
	byID := make(map[ItemID]TemplateItem, len(ordered))
	for _, item := range ordered {
		byID[item.ID] = item
	}
	return &Catalog{items: ordered, byID: byID}
}

// Items returns the questions in template order. Callers must not mutate.
func (c *Catalog) Items() []TemplateItem {
	return c.items
}

func (c *Catalog) Item(id ItemID) (TemplateItem, bool) {
	item, ok := c.byID[id]
	return item, ok
}

func (c *Catalog) Len() int {
	return len(c.items)
}
