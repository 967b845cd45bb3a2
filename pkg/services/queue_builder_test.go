package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lendvoice/question-engine/pkg/metrics"
	"github.com/lendvoice/question-engine/pkg/models"
	"github.com/lendvoice/question-engine/pkg/registry"
	"github.com/lendvoice/question-engine/pkg/rules"
	"github.com/lendvoice/question-engine/pkg/testhelpers"
)

func buildTestResponse(t *testing.T, state *models.LoanState) *models.QuestionQueueResponse {
	t.Helper()
	m := metrics.New()
	reg, engine := newTestRegistry(t, m)
	e := NewEvaluator(reg, engine, time.Second, zap.NewNop(), m)
	items := e.Evaluate(context.Background(), state)
	return NewQueueBuilder(reg).Build(items, state)
}

func TestBuildGlobalOrdering(t *testing.T) {
	resp := buildTestResponse(t, testState())

	ids := make([]string, len(resp.Queue))
	for i, it := range resp.Queue {
		ids[i] = it.QuestionID
	}
	// (section sequence, ordinal, entity pid): applicant before employment
	// before financing regardless of evaluation level order.
	assert.Equal(t, []string{"Q100", "Q100", "Q101", "Q200", "Q300", "Q301", "Q302"}, ids)
	assert.Equal(t, "b-1", resp.Queue[0].EntityPid)
	assert.Equal(t, "b-2", resp.Queue[1].EntityPid)
}

func TestBuildNextRecommendedAndVersion(t *testing.T) {
	state := testState()
	resp := buildTestResponse(t, state)

	assert.Equal(t, "Q100", resp.NextRecommended)
	assert.Equal(t, state.Version, resp.StateVersion)
}

func TestBuildEmptyQueue(t *testing.T) {
	state := testState()
	for _, id := range []string{"Q100", "Q101", "Q200", "Q300", "Q301", "Q302"} {
		state.MarkAnswered(id)
	}
	resp := buildTestResponse(t, state)

	assert.Empty(t, resp.Queue)
	assert.Empty(t, resp.NextRecommended)
	assert.Empty(t, resp.CanAskTogether)
}

func TestBuildSectionProgress(t *testing.T) {
	state := testState()
	state.MarkAnswered("Q100")
	resp := buildTestResponse(t, state)

	require.Len(t, resp.Sections, 3)

	applicant := resp.Sections[0]
	assert.Equal(t, "applicant", applicant.SectionID)
	assert.Equal(t, 2, applicant.Total)
	assert.Equal(t, 1, applicant.Answered)
	assert.Equal(t, models.SectionInProgress, applicant.Status)

	employment := resp.Sections[1]
	assert.Equal(t, "employment", employment.SectionID)
	assert.Equal(t, models.SectionPending, employment.Status)

	financing := resp.Sections[2]
	assert.Equal(t, 3, financing.Total)
	assert.Equal(t, models.SectionPending, financing.Status)
}

func TestBuildSectionComplete(t *testing.T) {
	state := testState()
	state.MarkAnswered("Q100")
	state.MarkAnswered("Q101")
	resp := buildTestResponse(t, state)

	assert.Equal(t, models.SectionComplete, resp.Sections[0].Status)
}

func TestBuildEmptySectionReportsComplete(t *testing.T) {
	m := metrics.New()
	engine := rules.NewEngine(zap.NewNop(), m)
	root := testhelpers.WriteConfigTree(t, map[string]string{
		"sections/intake.yaml": `id: intake
name: Intake
sequence: 1
`,
		"sections/review.yaml": `id: review
name: Review
sequence: 2
`,
		"questions/intake/purpose.yaml": `id: Q1
name: Purpose
section: intake
ordinal: 1
level: PROPOSAL
instructions: Purchase or refinance?
type: choice
form_fields:
  - order: 1
    label: Loan Purpose
    access_field: loan_purpose
    prepopulate: false
criteria: ""
`,
	})
	reg, err := registry.Load(root, engine, zap.NewNop())
	require.NoError(t, err)
	engine.Seal()

	state := &models.LoanState{Answered: make(map[string]struct{})}
	progress := NewQueueBuilder(reg).sectionProgress(state)

	require.Len(t, progress, 2)
	assert.Equal(t, models.SectionPending, progress[0].Status)
	assert.Equal(t, models.SectionComplete, progress[1].Status, "a section with no questions has nothing left to answer")
}

func TestBuildCombinableRuns(t *testing.T) {
	resp := buildTestResponse(t, testState())

	// Q101 lists Q100 and Q301 lists Q300; Q302 breaks the financing run on
	// flexibility. Runs shorter than two are suppressed.
	require.Len(t, resp.CanAskTogether, 2)
	assert.Equal(t, []string{"Q100", "Q101"}, resp.CanAskTogether[0].QuestionIDs)
	assert.Equal(t, []string{"Q300", "Q301"}, resp.CanAskTogether[1].QuestionIDs)
}

func TestBuildRunBrokenByAnsweredPredecessor(t *testing.T) {
	state := testState()
	state.MarkAnswered("Q300")
	resp := buildTestResponse(t, state)

	for _, g := range resp.CanAskTogether {
		assert.NotContains(t, g.QuestionIDs, "Q301", "Q301 has no predecessor left to combine with")
	}
}
