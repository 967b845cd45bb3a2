package rules

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lendvoice/question-engine/pkg/apperrors"
	"github.com/lendvoice/question-engine/pkg/metrics"
	"github.com/lendvoice/question-engine/pkg/models"
)

// batchWorkers caps goroutine fan-out per EvaluateBatch call.
const batchWorkers = 8

// Engine holds compiled decision tables by rule id. Compilation is fail-hard
// and happens only during startup; evaluation is fail-soft and re-entrant.
// After Seal the table map is read-only and safe for unguarded concurrent
// reads.
type Engine struct {
	mu     sync.RWMutex
	tables map[string]*DecisionTable
	sealed bool

	logger       *zap.Logger
	evalFailures *metrics.Counter
}

// NewEngine creates an empty rules engine.
func NewEngine(logger *zap.Logger, m *metrics.Registry) *Engine {
	return &Engine{
		tables:       make(map[string]*DecisionTable),
		logger:       logger.Named("rules"),
		evalFailures: m.Counter(metrics.RuleEvalFailures),
	}
}

// Compile installs a decision table under the given rule id, replacing any
// previous table. Installing after Seal is a programming error.
func (e *Engine) Compile(ruleID string, table *DecisionTable) error {
	if ruleID == "" {
		return fmt.Errorf("empty rule id")
	}
	if table == nil {
		return fmt.Errorf("nil decision table for rule %s", ruleID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return fmt.Errorf("install rule %s: %w", ruleID, apperrors.ErrEngineSealed)
	}
	e.tables[ruleID] = table
	return nil
}

// Seal marks the end of the startup phase. The compiled-table map is
// write-once; all further Compile calls fail.
func (e *Engine) Seal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sealed = true
}

// RuleCount returns the number of installed tables. Readiness requires a
// non-zero count.
func (e *Engine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.tables)
}

// Evaluate walks the table's rules in order under the first hit policy. A
// row matches when every condition holds against the context; a missing
// context field reads as null so "is not set" matches. No matching row
// yields false.
func (e *Engine) Evaluate(ruleID string, evalCtx map[string]models.Value) (bool, error) {
	e.mu.RLock()
	table, ok := e.tables[ruleID]
	e.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("rule %s: %w", ruleID, apperrors.ErrNotFound)
	}

	for _, rule := range table.Rules {
		if ruleMatches(rule, evalCtx) {
			return rule.Output, nil
		}
	}
	return false, nil
}

// BatchJob is one (rule, context) evaluation in a batch.
type BatchJob struct {
	RuleID  string
	Context map[string]models.Value
}

// EvaluateBatch evaluates the batch in parallel. The result slice matches
// the input order. Individual evaluation failures degrade to false, are
// logged, and increment the rule_eval_failures counter.
func (e *Engine) EvaluateBatch(ctx context.Context, jobs []BatchJob) []bool {
	results := make([]bool, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(batchWorkers)
	for i, job := range jobs {
		g.Go(func() error {
			ok, err := e.Evaluate(job.RuleID, job.Context)
			if err != nil {
				e.evalFailures.Inc()
				e.logger.Warn("rule evaluation failed",
					zap.String("rule_id", job.RuleID),
					zap.Error(err))
				return nil
			}
			results[i] = ok
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func ruleMatches(rule Rule, evalCtx map[string]models.Value) bool {
	for field, cmp := range rule.Conditions {
		got := evalCtx[field] // missing field is the zero Value, i.e. null
		if !conditionHolds(cmp, got) {
			return false
		}
	}
	return true
}

func conditionHolds(cmp Comparison, got models.Value) bool {
	switch cmp.Operator {
	case "==":
		return got.Equal(cmp.Value)
	case "!=":
		return !got.Equal(cmp.Value)
	case ">", ">=", "<", "<=":
		if got.Kind() != models.KindNumber || cmp.Value.Kind() != models.KindNumber {
			return false
		}
		a, b := got.AsNumber(), cmp.Value.AsNumber()
		switch cmp.Operator {
		case ">":
			return a > b
		case ">=":
			return a >= b
		case "<":
			return a < b
		default:
			return a <= b
		}
	default:
		return false
	}
}
