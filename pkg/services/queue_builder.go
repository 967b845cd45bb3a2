package services

import (
	"sort"

	"github.com/lendvoice/question-engine/pkg/models"
	"github.com/lendvoice/question-engine/pkg/registry"
)

// QueueBuilder turns the evaluator's raw item list into the ordered response:
// globally sorted queue, per-section progress, combinable runs, and the next
// recommended question.
type QueueBuilder struct {
	registry *registry.Registry
}

// NewQueueBuilder creates a QueueBuilder.
func NewQueueBuilder(reg *registry.Registry) *QueueBuilder {
	return &QueueBuilder{registry: reg}
}

// Build assembles a QuestionQueueResponse from the evaluator output and the
// state's answered set and version.
func (b *QueueBuilder) Build(items []models.QueueItem, state *models.LoanState) *models.QuestionQueueResponse {
	b.sortQueue(items)

	resp := &models.QuestionQueueResponse{
		Queue:          items,
		Sections:       b.sectionProgress(state),
		CanAskTogether: b.combinableRuns(items),
		StateVersion:   state.Version,
	}
	if len(items) > 0 {
		resp.NextRecommended = items[0].QuestionID
	}
	return resp
}

// sortQueue orders items by (section sequence, ordinal, entity pid), stably.
func (b *QueueBuilder) sortQueue(items []models.QueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		si, sj := b.sectionSequence(items[i].SectionID), b.sectionSequence(items[j].SectionID)
		if si != sj {
			return si < sj
		}
		oi, oj := b.questionOrdinal(items[i].QuestionID), b.questionOrdinal(items[j].QuestionID)
		if oi != oj {
			return oi < oj
		}
		return items[i].EntityPid < items[j].EntityPid
	})
}

func (b *QueueBuilder) sectionSequence(sectionID string) int {
	if s, ok := b.registry.SectionByID(sectionID); ok {
		return s.Sequence
	}
	return int(^uint(0) >> 1)
}

func (b *QueueBuilder) questionOrdinal(questionID string) int {
	if q, ok := b.registry.ByID(questionID); ok {
		return q.Ordinal
	}
	return int(^uint(0) >> 1)
}

// sectionProgress computes totals and answered counts for every section.
// Totals count question ids, so a section completes once each of its
// questions has been answered.
func (b *QueueBuilder) sectionProgress(state *models.LoanState) []models.SectionProgress {
	answeredBySection := make(map[string]int)
	for id := range state.Answered {
		if q, ok := b.registry.ByID(id); ok {
			answeredBySection[q.Section]++
		}
	}

	sections := b.registry.Sections()
	progress := make([]models.SectionProgress, 0, len(sections))
	for _, s := range sections {
		total := b.registry.QuestionsInSection(s.ID)
		answered := answeredBySection[s.ID]
		status := models.SectionInProgress
		switch {
		// Checked first so a question-less section reports complete, not
		// pending.
		case answered >= total:
			status = models.SectionComplete
		case answered == 0:
			status = models.SectionPending
		}
		progress = append(progress, models.SectionProgress{
			SectionID: s.ID,
			Name:      s.Name,
			Total:     total,
			Answered:  answered,
			Status:    status,
		})
	}
	return progress
}

// combinableRuns scans the ordered queue for consecutive items that share a
// section, entity level, and flexibility where each question lists its
// predecessor in can_combine_with. Runs of length two or more are emitted.
func (b *QueueBuilder) combinableRuns(items []models.QueueItem) []models.QuestionGroup {
	groups := make([]models.QuestionGroup, 0)
	run := make([]string, 0, 4)

	flush := func() {
		if len(run) >= 2 {
			groups = append(groups, models.QuestionGroup{QuestionIDs: append([]string(nil), run...)})
		}
		run = run[:0]
	}

	for i, item := range items {
		if i == 0 {
			run = append(run, item.QuestionID)
			continue
		}
		prev := items[i-1]
		if b.canFollow(item, prev) {
			run = append(run, item.QuestionID)
			continue
		}
		flush()
		run = append(run, item.QuestionID)
	}
	flush()
	return groups
}

func (b *QueueBuilder) canFollow(item, prev models.QueueItem) bool {
	if item.SectionID != prev.SectionID || item.Flexibility != prev.Flexibility {
		return false
	}
	q, ok := b.registry.ByID(item.QuestionID)
	if !ok {
		return false
	}
	prior, ok := b.registry.ByID(prev.QuestionID)
	if !ok || q.Level != prior.Level {
		return false
	}
	return q.CanCombineAfter(prev.QuestionID)
}
