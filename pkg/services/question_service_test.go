package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lendvoice/question-engine/pkg/apperrors"
	"github.com/lendvoice/question-engine/pkg/metrics"
	"github.com/lendvoice/question-engine/pkg/models"
)

func newTestService(t *testing.T, store *fakeStateStore, pub *fakePublisher, m *metrics.Registry) *QuestionService {
	t.Helper()
	reg, engine := newTestRegistry(t, m)
	e := NewEvaluator(reg, engine, time.Second, zap.NewNop(), m)
	b := NewQueueBuilder(reg)
	return NewQuestionService(store, e, b, reg, pub, zap.NewNop(), m)
}

func TestGetQuestions(t *testing.T) {
	store := &fakeStateStore{state: testState()}
	svc := newTestService(t, store, &fakePublisher{}, metrics.New())

	resp, err := svc.GetQuestions(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Q100", resp.NextRecommended)
	assert.Len(t, resp.Queue, 7)
}

func TestGetQuestionsEmptyPid(t *testing.T) {
	svc := newTestService(t, &fakeStateStore{state: testState()}, &fakePublisher{}, metrics.New())

	_, err := svc.GetQuestions(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
}

func TestSubmitAnswerSingleField(t *testing.T) {
	store := &fakeStateStore{state: testState()}
	pub := &fakePublisher{}
	svc := newTestService(t, store, pub, metrics.New())

	resp, err := svc.SubmitAnswer(context.Background(), "p-1", AnswerInput{
		QuestionID: "Q100",
		EntityPid:  "b-1",
		Answer:     json.RawMessage(`"US_CITIZEN"`),
		RawInput:   "I'm a US citizen",
		Confidence: 0.93,
	})
	require.NoError(t, err)

	assert.Equal(t, models.String("US_CITIZEN"), store.state.Fields["citizenship_type"])
	assert.True(t, store.state.IsAnswered("Q100"))

	// The recomputed queue no longer contains Q100 for either borrower.
	for _, it := range resp.Queue {
		assert.NotEqual(t, "Q100", it.QuestionID)
	}

	require.Len(t, pub.records, 1)
	rec := pub.records[0]
	assert.Equal(t, "p-1", rec.ProposalPid)
	assert.Equal(t, "Q100", rec.QuestionID)
	assert.Equal(t, "b-1", rec.EntityPid)
	assert.Equal(t, "I'm a US citizen", rec.RawInput)
	assert.Equal(t, models.String("US_CITIZEN"), rec.FieldUpdates["citizenship_type"])
}

func TestSubmitAnswerUpdatesExistingFieldDeterministically(t *testing.T) {
	// The answered access field names the same column the loader flattened
	// into the state. The merge must overwrite that key, never add a second
	// spelling, so recomputation always sees the just-submitted value.
	store := &fakeStateStore{state: testState()}
	store.state.Fields["loan_amount"] = models.Number(400000)
	svc := newTestService(t, store, &fakePublisher{}, metrics.New())

	before, err := svc.GetQuestions(context.Background(), "p-1")
	require.NoError(t, err)
	for _, it := range before.Queue {
		assert.NotEqual(t, "Q302", it.QuestionID, "conforming amount must not queue jumbo review")
	}

	resp, err := svc.SubmitAnswer(context.Background(), "p-1", AnswerInput{
		QuestionID: "Q301",
		Answer:     json.RawMessage(`910000`),
	})
	require.NoError(t, err)

	assert.Equal(t, models.Number(910000), store.state.Fields["loan_amount"])
	assert.Len(t, fieldKeysContaining(store.state.Fields, "amount"), 1,
		"exactly one spelling of the field survives the merge")

	var ids []string
	for _, it := range resp.Queue {
		ids = append(ids, it.QuestionID)
	}
	assert.Contains(t, ids, "Q302", "jumbo review unlocks from the submitted amount")
}

func fieldKeysContaining(fields map[string]models.Value, fragment string) []string {
	var keys []string
	for k := range fields {
		if strings.Contains(strings.ToLower(k), fragment) {
			keys = append(keys, k)
		}
	}
	return keys
}

func TestSubmitAnswerMultiField(t *testing.T) {
	m := metrics.New()
	reg, engine := newTestRegistry(t, m)
	q, ok := reg.ByID("Q100")
	require.True(t, ok)
	// Widen the fixture question to two form fields for the mapping path.
	q.FormFields = append(q.FormFields, models.FormField{
		Order: 2, Label: "Visa Type", AccessField: "visa_type",
	})

	store := &fakeStateStore{state: testState()}
	pub := &fakePublisher{}
	e := NewEvaluator(reg, engine, time.Second, zap.NewNop(), m)
	svc := NewQuestionService(store, e, NewQueueBuilder(reg), reg, pub, zap.NewNop(), m)

	_, err := svc.SubmitAnswer(context.Background(), "p-1", AnswerInput{
		QuestionID: "Q100",
		Answer:     json.RawMessage(`{"Citizenship Type": "NON_PERMANENT_RESIDENT", "Visa Type": "H_1B"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, models.String("NON_PERMANENT_RESIDENT"), store.state.Fields["citizenship_type"])
	assert.Equal(t, models.String("H_1B"), store.state.Fields["visa_type"])

	_, err = svc.SubmitAnswer(context.Background(), "p-1", AnswerInput{
		QuestionID: "Q100",
		Answer:     json.RawMessage(`{"Passport Country": "GBR"}`),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
}

func TestSubmitAnswerUnknownQuestion(t *testing.T) {
	svc := newTestService(t, &fakeStateStore{state: testState()}, &fakePublisher{}, metrics.New())

	_, err := svc.SubmitAnswer(context.Background(), "p-1", AnswerInput{
		QuestionID: "Q999",
		Answer:     json.RawMessage(`true`),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestSubmitAnswerNonScalarSingleField(t *testing.T) {
	svc := newTestService(t, &fakeStateStore{state: testState()}, &fakePublisher{}, metrics.New())

	_, err := svc.SubmitAnswer(context.Background(), "p-1", AnswerInput{
		QuestionID: "Q100",
		Answer:     json.RawMessage(`{"nested": true}`),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
}

func TestSubmitAnswerPublishFailureSwallowed(t *testing.T) {
	m := metrics.New()
	store := &fakeStateStore{state: testState()}
	pub := &fakePublisher{err: errors.New("broker unreachable")}
	svc := newTestService(t, store, pub, m)

	resp, err := svc.SubmitAnswer(context.Background(), "p-1", AnswerInput{
		QuestionID: "Q300",
		Answer:     json.RawMessage(`"PURCHASE"`),
	})
	require.NoError(t, err, "durability warning must not fail the response")
	assert.NotNil(t, resp)
	assert.Equal(t, int64(1), m.Counter(metrics.QueuePublishFailures).Value())
	assert.Equal(t, int64(1), m.Counter(metrics.AnswersAccepted).Value())
	assert.True(t, store.state.IsAnswered("Q300"))
}

func TestSubmitAnswerCacheUpdateFailure(t *testing.T) {
	store := &fakeStateStore{state: testState(), updErr: errors.New("redis gone")}
	svc := newTestService(t, store, &fakePublisher{}, metrics.New())

	_, err := svc.SubmitAnswer(context.Background(), "p-1", AnswerInput{
		QuestionID: "Q300",
		Answer:     json.RawMessage(`"PURCHASE"`),
	})
	require.Error(t, err)
}
