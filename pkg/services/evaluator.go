package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lendvoice/question-engine/pkg/metrics"
	"github.com/lendvoice/question-engine/pkg/models"
	"github.com/lendvoice/question-engine/pkg/registry"
	"github.com/lendvoice/question-engine/pkg/rules"
)

// Evaluator produces the applicable queue items for a LoanState under a soft
// latency budget. Partial results are valid: when the budget trips mid-walk
// the items gathered so far are returned and a counter increments.
type Evaluator struct {
	registry *registry.Registry
	engine   *rules.Engine
	budget   time.Duration

	logger         *zap.Logger
	budgetExceeded *metrics.Counter
}

// NewEvaluator creates an Evaluator with the given soft budget.
func NewEvaluator(reg *registry.Registry, engine *rules.Engine, budget time.Duration, logger *zap.Logger, m *metrics.Registry) *Evaluator {
	return &Evaluator{
		registry:       reg,
		engine:         engine,
		budget:         budget,
		logger:         logger.Named("evaluator"),
		budgetExceeded: m.Counter(metrics.EvaluateBudgetExceeded),
	}
}

// evalSlot pairs a batch job with the question/entity it was built for so
// results can be turned back into queue items in submission order.
type evalSlot struct {
	question *models.Question
	entity   *models.EntityRef
	always   bool
}

// Evaluate walks the fixed entity-level order, expanding each unanswered
// question across its entity slots and batching rule evaluation per level.
func (e *Evaluator) Evaluate(ctx context.Context, state *models.LoanState) []models.QueueItem {
	start := time.Now()
	items := make([]models.QueueItem, 0, 16)

	loanCtx := rules.NormalizeContext(state.Fields)

	for _, level := range models.EntityLevels {
		if time.Since(start) > e.budget {
			e.tripBudget(state.ProposalPid, level, start)
			return items
		}

		questions := e.registry.ByLevel(level)
		if len(questions) == 0 {
			continue
		}
		slotsForLevel := state.Entities.ForLevel(level)

		slots := make([]evalSlot, 0, len(questions)*len(slotsForLevel))
		jobs := make([]rules.BatchJob, 0, cap(slots))
		tripped := false
	expand:
		for _, q := range questions {
			if state.IsAnswered(q.ID) {
				continue
			}
			for _, entity := range slotsForLevel {
				if time.Since(start) > e.budget {
					e.tripBudget(state.ProposalPid, level, start)
					tripped = true
					break expand
				}
				slots = append(slots, evalSlot{question: q, entity: entity, always: q.AlwaysApplicable})
				jobs = append(jobs, rules.BatchJob{
					RuleID:  q.RuleID(),
					Context: mergeContext(loanCtx, entity),
				})
			}
		}

		results := e.engine.EvaluateBatch(ctx, jobs)
		for i, slot := range slots {
			if !slot.always && !results[i] {
				continue
			}
			items = append(items, e.buildItem(state, slot))
		}
		if tripped {
			return items
		}
	}
	return items
}

func (e *Evaluator) tripBudget(proposalPid string, level models.EntityLevel, start time.Time) {
	e.budgetExceeded.Inc()
	e.logger.Warn("evaluation budget exceeded, returning partial queue",
		zap.String("proposal_pid", proposalPid),
		zap.String("level", string(level)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Duration("budget", e.budget))
}

func (e *Evaluator) buildItem(state *models.LoanState, slot evalSlot) models.QueueItem {
	q := slot.question
	item := models.QueueItem{
		QuestionID:   q.ID,
		SectionID:    q.Section,
		RenderedText: interpolate(q.Instructions, slot.entity, state.Fields),
		InputKind:    q.InputKind,
		Options:      q.Options,
		Flexibility:  q.Flexibility,
	}
	if len(q.FormFields) == 1 {
		item.AccessField = q.FormFields[0].AccessField
	}
	if slot.entity != nil {
		item.EntityPid = slot.entity.PID
		item.EntityDisplayName = slot.entity.DisplayName
	}
	return item
}

// mergeContext shallow-merges loan fields with the slot entity's fields,
// entity winning on conflict. The loan side arrives pre-normalized; only
// entity keys are normalized per slot.
func mergeContext(loanCtx map[string]models.Value, entity *models.EntityRef) map[string]models.Value {
	if entity == nil || len(entity.Fields) == 0 {
		return loanCtx
	}
	merged := make(map[string]models.Value, len(loanCtx)+len(entity.Fields))
	for k, v := range loanCtx {
		merged[k] = v
	}
	for k, v := range entity.Fields {
		merged[rules.NormalizeFieldName(k)] = v
	}
	return merged
}

// interpolate resolves {{placeholder}} tokens in instructions. Placeholders
// are normalized like field names; entity fields are checked before loan
// fields, and unresolved tokens are left literal.
func interpolate(text string, entity *models.EntityRef, loanFields map[string]models.Value) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for {
		open := strings.Index(text, "{{")
		if open < 0 {
			b.WriteString(text)
			break
		}
		close := strings.Index(text[open:], "}}")
		if close < 0 {
			b.WriteString(text)
			break
		}
		close += open
		b.WriteString(text[:open])

		token := text[open : close+2]
		name := rules.NormalizeFieldName(text[open+2 : close])
		if v, ok := lookupField(name, entity, loanFields); ok {
			b.WriteString(v.String())
		} else {
			b.WriteString(token)
		}
		text = text[close+2:]
	}
	return b.String()
}

func lookupField(normalized string, entity *models.EntityRef, loanFields map[string]models.Value) (models.Value, bool) {
	if entity != nil {
		for k, v := range entity.Fields {
			if rules.NormalizeFieldName(k) == normalized && !v.IsNull() {
				return v, true
			}
		}
	}
	for k, v := range loanFields {
		if rules.NormalizeFieldName(k) == normalized && !v.IsNull() {
			return v, true
		}
	}
	return models.Value{}, false
}
