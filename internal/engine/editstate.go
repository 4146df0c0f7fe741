package engine

// EditState owns the live state of one editing session: the response header,
// the per-question answer records, the team roster, and the original
// snapshot those are diffed against. It is only ever touched from the single
// UI/event goroutine, so it carries no locking.
type EditState struct {
	catalog  *Catalog
	header   ResponseHeader
	current  map[ItemID]*AnswerRecord
	original Snapshot
	roster   []TeamMember
	previous []TeamMember
}

// NewEditState seeds the session from a template catalog and, when editing
// an existing response, the loaded snapshot and roster. Every template item
// gets a current record, empty when nothing was persisted for it.
func NewEditState(catalog *Catalog, header ResponseHeader, original Snapshot, roster []TeamMember) *EditState {
	if original == nil {
		original = Snapshot{}
	}
	current := make(map[ItemID]*AnswerRecord, catalog.Len())
	for _, item := range catalog.Items() {
		record := AnswerRecord{ItemID: item.ID, QuestionIndex: item.QuestionIndex}
		if prior, ok := original[item.ID]; ok {
			record = prior
		}
		current[item.ID] = &record
	}
	return &EditState{
		catalog:  catalog,
		header:   header,
		current:  current,
		original: original,
		roster:   append([]TeamMember(nil), roster...),
		previous: append([]TeamMember(nil), roster...),
	}
}

func (s *EditState) Catalog() *Catalog { return s.catalog }

func (s *EditState) Header() ResponseHeader { return s.header }

// SetHeader replaces the mutable header fields. The server-assigned id and
// template id survive whatever the caller passes in.
func (s *EditState) SetHeader(header ResponseHeader) {
	header.ID = s.header.ID
	header.TemplateID = s.header.TemplateID
	s.header = header
}

// Record returns a copy of the current answer state for one question.
func (s *EditState) Record(id ItemID) (AnswerRecord, bool) {
	record, ok := s.current[id]
	if !ok {
		return AnswerRecord{}, false
	}
	return *record, true
}

// OriginalRecord returns the server-confirmed state for one question, if any.
func (s *EditState) OriginalRecord(id ItemID) (AnswerRecord, bool) {
	record, ok := s.original[id]
	return record, ok
}

func (s *EditState) SetAnswer(id ItemID, answer string) bool {
	record, ok := s.current[id]
	if !ok {
		return false
	}
	record.Answer = answer
	return true
}

func (s *EditState) SetExplanation(id ItemID, explanation string) bool {
	record, ok := s.current[id]
	if !ok {
		return false
	}
	record.Explanation = explanation
	return true
}

// Team returns a copy of the current roster.
func (s *EditState) Team() []TeamMember {
	return append([]TeamMember(nil), s.roster...)
}

// SetTeam replaces the roster. Sort order follows list position.
func (s *EditState) SetTeam(members []TeamMember) {
	s.roster = make([]TeamMember, len(members))
	for i, member := range members {
		member.SortOrder = i
		s.roster[i] = member
	}
}

// Plan computes the operation list for the session as it stands. It does no
// I/O; the sync executor applies the result.
func (s *EditState) Plan() OperationList {
	current := make(map[ItemID]AnswerRecord, len(s.current))
	for id, record := range s.current {
		current[id] = *record
	}
	return OperationList{
		Items: Reconcile(s.original, current, s.catalog.Items(), s.header.Type),
		Team:  ReconcileTeam(s.previous, s.roster),
	}
}

// currentImage reports the live image ref for an item; used by the image
// manager before replacing a capture.
func (s *EditState) currentImage(id ItemID) ImageRef {
	if record, ok := s.current[id]; ok {
		return record.Image
	}
	return NoImage()
}

func (s *EditState) setImage(id ItemID, image ImageRef) bool {
	record, ok := s.current[id]
	if !ok {
		return false
	}
	record.Image = image
	return true
}

// commitHeader records the server-assigned response id after the first save.
func (s *EditState) commitHeader(responseID string) {
	s.header.ID = responseID
}

// commitAnswerSave advances both the current record and the original
// snapshot to the values the server just confirmed, so an immediately
// repeated save reconciles to unchanged.
func (s *EditState) commitAnswerSave(id ItemID, remoteID string, fields AnswerFields) {
	record, ok := s.current[id]
	if !ok {
		return
	}
	record.RemoteID = remoteID
	record.Answer = fields.Answer
	record.Explanation = fields.Explanation
	record.Image = StoredImage(fields.ImageURL)
	s.original[id] = *record
}

// commitAnswerDelete drops the persisted row from both maps. The cleared
// answer text itself stays as the user left it.
func (s *EditState) commitAnswerDelete(id ItemID) {
	delete(s.original, id)
	if record, ok := s.current[id]; ok {
		record.RemoteID = ""
		record.Image = NoImage()
	}
}

func (s *EditState) commitTeamCreate(index int, memberID string) {
	if index < 0 || index >= len(s.roster) {
		return
	}
	s.roster[index].ID = memberID
	s.previous = append(s.previous, s.roster[index])
}

func (s *EditState) commitTeamUpdate(member TeamMember) {
	for i := range s.previous {
		if s.previous[i].ID == member.ID {
			s.previous[i] = member
			return
		}
	}
	s.previous = append(s.previous, member)
}

func (s *EditState) commitTeamDelete(memberID string) {
	for i := range s.previous {
		if s.previous[i].ID == memberID {
			s.previous = append(s.previous[:i], s.previous[i+1:]...)
			return
		}
	}
}
