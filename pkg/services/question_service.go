package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lendvoice/question-engine/pkg/apperrors"
	"github.com/lendvoice/question-engine/pkg/metrics"
	"github.com/lendvoice/question-engine/pkg/models"
	"github.com/lendvoice/question-engine/pkg/queue"
	"github.com/lendvoice/question-engine/pkg/registry"
	"github.com/lendvoice/question-engine/pkg/rules"
)

// StateStore is the slice of the state cache the service consumes.
type StateStore interface {
	Get(ctx context.Context, proposalPid string) (*models.LoanState, error)
	Update(ctx context.Context, proposalPid string, delta map[string]models.Value, answeredQuestionID string) (*models.LoanState, error)
}

// AnswerInput carries one answer submission. Answer is the raw JSON document
// from the conversational layer; its shape depends on the question's form
// fields.
type AnswerInput struct {
	QuestionID string
	EntityPid  string
	Answer     json.RawMessage
	RawInput   string
	Confidence float64
}

// QuestionService is the request-facing facade: it composes the cache,
// evaluator, queue builder, and write-back publisher into the two core
// operations.
type QuestionService struct {
	cache     StateStore
	evaluator *Evaluator
	builder   *QueueBuilder
	registry  *registry.Registry
	publisher queue.Publisher

	logger          *zap.Logger
	publishFailures *metrics.Counter
	answersAccepted *metrics.Counter
}

// NewQuestionService creates a QuestionService.
func NewQuestionService(cache StateStore, evaluator *Evaluator, builder *QueueBuilder, reg *registry.Registry, publisher queue.Publisher, logger *zap.Logger, m *metrics.Registry) *QuestionService {
	return &QuestionService{
		cache:           cache,
		evaluator:       evaluator,
		builder:         builder,
		registry:        reg,
		publisher:       publisher,
		logger:          logger.Named("questions"),
		publishFailures: m.Counter(metrics.QueuePublishFailures),
		answersAccepted: m.Counter(metrics.AnswersAccepted),
	}
}

// GetQuestions returns the proposal's current queue, progress, and grouping
// hints.
func (s *QuestionService) GetQuestions(ctx context.Context, proposalPid string) (*models.QuestionQueueResponse, error) {
	if proposalPid == "" {
		return nil, fmt.Errorf("proposal pid is required: %w", apperrors.ErrInvalidArgument)
	}
	state, err := s.cache.Get(ctx, proposalPid)
	if err != nil {
		return nil, err
	}
	items := s.evaluator.Evaluate(ctx, state)
	return s.builder.Build(items, state), nil
}

// GetState returns the proposal's LoanState snapshot for debugging.
func (s *QuestionService) GetState(ctx context.Context, proposalPid string) (*models.LoanState, error) {
	if proposalPid == "" {
		return nil, fmt.Errorf("proposal pid is required: %w", apperrors.ErrInvalidArgument)
	}
	return s.cache.Get(ctx, proposalPid)
}

// SubmitAnswer applies an answer to the cached state, enqueues the durable
// write-back record, and returns the recomputed queue. A publish failure is
// logged and counted but never fails the response; the hot cache is
// authoritative for the session.
func (s *QuestionService) SubmitAnswer(ctx context.Context, proposalPid string, in AnswerInput) (*models.QuestionQueueResponse, error) {
	if proposalPid == "" {
		return nil, fmt.Errorf("proposal pid is required: %w", apperrors.ErrInvalidArgument)
	}
	if in.QuestionID == "" {
		return nil, fmt.Errorf("question id is required: %w", apperrors.ErrInvalidArgument)
	}
	question, ok := s.registry.ByID(in.QuestionID)
	if !ok {
		return nil, fmt.Errorf("question %s: %w", in.QuestionID, apperrors.ErrNotFound)
	}

	delta, err := answerDelta(question, in.Answer)
	if err != nil {
		return nil, err
	}

	state, err := s.cache.Update(ctx, proposalPid, delta, question.ID)
	if err != nil {
		return nil, err
	}
	s.answersAccepted.Inc()

	if err := s.publisher.Publish(ctx, queue.AnswerRecord{
		ProposalPid:  proposalPid,
		QuestionID:   question.ID,
		EntityPid:    in.EntityPid,
		FieldUpdates: delta,
		Timestamp:    time.Now().UTC(),
		RawInput:     in.RawInput,
		Confidence:   in.Confidence,
	}); err != nil {
		s.publishFailures.Inc()
		s.logger.Warn("answer write-back publish failed",
			zap.String("proposal_pid", proposalPid),
			zap.String("question_id", question.ID),
			zap.Error(err))
	}

	items := s.evaluator.Evaluate(ctx, state)
	return s.builder.Build(items, state), nil
}

// answerDelta maps the raw answer document onto access fields. A question
// with one form field binds the whole answer; multiple form fields require a
// JSON object keyed by form-field label. Access fields are canonicalized so
// the delta merges onto the loader's spelling of the same field instead of
// adding a second one.
func answerDelta(q *models.Question, answer json.RawMessage) (map[string]models.Value, error) {
	if len(q.FormFields) == 0 {
		return nil, fmt.Errorf("question %s has no form fields: %w", q.ID, apperrors.ErrInvalidArgument)
	}
	if len(answer) == 0 {
		return nil, fmt.Errorf("answer is required: %w", apperrors.ErrInvalidArgument)
	}

	if len(q.FormFields) == 1 {
		var v models.Value
		if err := json.Unmarshal(answer, &v); err != nil {
			return nil, fmt.Errorf("answer for %s must be a scalar: %w", q.ID, apperrors.ErrInvalidArgument)
		}
		return map[string]models.Value{rules.NormalizeFieldName(q.FormFields[0].AccessField): v}, nil
	}

	var byLabel map[string]json.RawMessage
	if err := json.Unmarshal(answer, &byLabel); err != nil {
		return nil, fmt.Errorf("answer for %s must be an object keyed by form-field label: %w", q.ID, apperrors.ErrInvalidArgument)
	}

	fieldByLabel := make(map[string]string, len(q.FormFields))
	for _, f := range q.FormFields {
		fieldByLabel[f.Label] = f.AccessField
	}

	delta := make(map[string]models.Value, len(byLabel))
	for label, raw := range byLabel {
		accessField, ok := fieldByLabel[label]
		if !ok {
			return nil, fmt.Errorf("unknown form field label %q for question %s: %w", label, q.ID, apperrors.ErrInvalidArgument)
		}
		var v models.Value
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("value for form field %q must be a scalar: %w", label, apperrors.ErrInvalidArgument)
		}
		delta[rules.NormalizeFieldName(accessField)] = v
	}
	return delta, nil
}
