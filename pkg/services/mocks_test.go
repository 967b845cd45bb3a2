package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lendvoice/question-engine/pkg/metrics"
	"github.com/lendvoice/question-engine/pkg/models"
	"github.com/lendvoice/question-engine/pkg/queue"
	"github.com/lendvoice/question-engine/pkg/registry"
	"github.com/lendvoice/question-engine/pkg/rules"
	"github.com/lendvoice/question-engine/pkg/testhelpers"
)

func newTestRegistry(t *testing.T, m *metrics.Registry) (*registry.Registry, *rules.Engine) {
	t.Helper()
	engine := rules.NewEngine(zap.NewNop(), m)
	reg, err := registry.Load(testhelpers.SampleConfigTree(t), engine, zap.NewNop())
	require.NoError(t, err)
	engine.Seal()
	return reg, engine
}

// testState is a proposal with two borrowers (one visa-gated), one job, and
// a jumbo-sized loan amount.
func testState() *models.LoanState {
	return &models.LoanState{
		ProposalPid: "p-1",
		Version:     1000,
		LoadedAt:    time.Now(),
		Fields: map[string]models.Value{
			"loan_purpose": models.String("PURCHASE"),
			"loan_amount":  models.Number(850000),
		},
		Entities: models.LoanEntities{
			Borrowers: []models.EntityRef{
				{
					PID:         "b-1",
					DisplayName: "Ada Lovelace",
					Fields: map[string]models.Value{
						"citizenship_type": models.String("NON_PERMANENT_RESIDENT"),
					},
				},
				{
					PID:         "b-2",
					DisplayName: "Grace Hopper",
					Fields: map[string]models.Value{
						"citizenship_type": models.String("US_CITIZEN"),
					},
				},
			},
			Jobs: []models.EntityRef{
				{
					PID:         "j-1",
					DisplayName: "Acme Corp",
					Fields: map[string]models.Value{
						"employer_name": models.String("Acme Corp"),
						"weekly_hours":  models.Number(40),
					},
				},
			},
		},
		Answered: make(map[string]struct{}),
	}
}

// fakeStateStore is an in-memory StateStore.
type fakeStateStore struct {
	state   *models.LoanState
	getErr  error
	updErr  error
	updates int
}

func (f *fakeStateStore) Get(_ context.Context, pid string) (*models.LoanState, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.state, nil
}

func (f *fakeStateStore) Update(_ context.Context, pid string, delta map[string]models.Value, answeredID string) (*models.LoanState, error) {
	f.updates++
	if f.updErr != nil {
		return nil, f.updErr
	}
	for k, v := range delta {
		f.state.Fields[k] = v
	}
	f.state.MarkAnswered(answeredID)
	f.state.Version++
	return f.state, nil
}

// fakePublisher records published answer records.
type fakePublisher struct {
	records []queue.AnswerRecord
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, rec queue.AnswerRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakePublisher) Close() {}

// fakeLoanRepo backs loader tests with canned rows.
type fakeLoanRepo struct {
	proposal    map[string]models.Value
	proposalErr error
	borrowers   []models.EntityRef
	jobs        []models.EntityRef
	assets      []models.EntityRef
	liabilities []models.EntityRef
	reo         []models.EntityRef
	property    map[string]models.Value
	answered    []string

	borrowerDealPid string
	childPids       [][]string
}

func (f *fakeLoanRepo) GetProposal(_ context.Context, pid string) (map[string]models.Value, error) {
	if f.proposalErr != nil {
		return nil, f.proposalErr
	}
	return f.proposal, nil
}

func (f *fakeLoanRepo) GetBorrowers(_ context.Context, dealPid string) ([]models.EntityRef, error) {
	f.borrowerDealPid = dealPid
	return f.borrowers, nil
}

func (f *fakeLoanRepo) GetJobs(_ context.Context, pids []string) ([]models.EntityRef, error) {
	f.childPids = append(f.childPids, pids)
	return orEmpty(f.jobs), nil
}

func (f *fakeLoanRepo) GetAssets(_ context.Context, pids []string) ([]models.EntityRef, error) {
	return orEmpty(f.assets), nil
}

func (f *fakeLoanRepo) GetLiabilities(_ context.Context, pids []string) ([]models.EntityRef, error) {
	return orEmpty(f.liabilities), nil
}

func (f *fakeLoanRepo) GetRealEstateOwned(_ context.Context, pids []string) ([]models.EntityRef, error) {
	return orEmpty(f.reo), nil
}

func orEmpty(refs []models.EntityRef) []models.EntityRef {
	if refs == nil {
		return []models.EntityRef{}
	}
	return refs
}

func (f *fakeLoanRepo) GetProperty(_ context.Context, dealPid string) (map[string]models.Value, error) {
	return f.property, nil
}

func (f *fakeLoanRepo) GetAnsweredQuestionIDs(_ context.Context, dealPid string) ([]string, error) {
	return f.answered, nil
}
