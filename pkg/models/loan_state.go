package models

import (
	"sort"
	"time"
)

// LoanEntities holds the five typed entity lists of a proposal.
type LoanEntities struct {
	Borrowers       []EntityRef `json:"borrowers" msgpack:"borrowers"`
	Jobs            []EntityRef `json:"jobs" msgpack:"jobs"`
	Assets          []EntityRef `json:"assets" msgpack:"assets"`
	Liabilities     []EntityRef `json:"liabilities" msgpack:"liabilities"`
	RealEstateOwned []EntityRef `json:"real_estate_owned" msgpack:"real_estate_owned"`
}

// ForLevel returns the entity slots a question at the given level expands
// across. Singleton levels (PROPOSAL, PROPERTY) get a single nil slot.
func (e *LoanEntities) ForLevel(level EntityLevel) []*EntityRef {
	pick := func(refs []EntityRef) []*EntityRef {
		slots := make([]*EntityRef, len(refs))
		for i := range refs {
			slots[i] = &refs[i]
		}
		return slots
	}
	switch level {
	case LevelBorrower:
		return pick(e.Borrowers)
	case LevelJob:
		return pick(e.Jobs)
	case LevelAsset:
		return pick(e.Assets)
	case LevelLiability:
		return pick(e.Liabilities)
	case LevelRealEstateOwned:
		return pick(e.RealEstateOwned)
	default:
		return []*EntityRef{nil}
	}
}

// LoanState is the full per-proposal working set. It is materialized by the
// state loader on first request, owned by the state cache, and mutated only
// through cache update operations. Readers may share it concurrently.
type LoanState struct {
	ProposalPid string
	Version     int64
	LoadedAt    time.Time
	Fields      map[string]Value
	Entities    LoanEntities
	Answered    map[string]struct{}
}

// IsAnswered reports whether the question id is in the answered set.
func (s *LoanState) IsAnswered(questionID string) bool {
	_, ok := s.Answered[questionID]
	return ok
}

// MarkAnswered adds a question id to the answered set.
func (s *LoanState) MarkAnswered(questionID string) {
	if s.Answered == nil {
		s.Answered = make(map[string]struct{})
	}
	s.Answered[questionID] = struct{}{}
}

// AnsweredList returns the answered set as a sorted sequence for transport;
// the binary codec has no native set type.
func (s *LoanState) AnsweredList() []string {
	ids := make([]string, 0, len(s.Answered))
	for id := range s.Answered {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AnsweredSet rebuilds a working-copy set from a transported sequence.
func AnsweredSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
