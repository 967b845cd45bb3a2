package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lendvoice/question-engine/pkg/metrics"
	"github.com/lendvoice/question-engine/pkg/models"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	states   map[string]StateWrite
	readErr  error
	writeErr error
	reads    int
	writes   int
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]StateWrite)}
}

func (m *memStore) ReadState(_ context.Context, pid string) (*StoredState, error) {
	m.reads++
	if m.readErr != nil {
		return nil, m.readErr
	}
	w, ok := m.states[pid]
	if !ok {
		return &StoredState{}, nil
	}
	return &StoredState{Fields: w.Fields, Entities: w.Entities, Meta: w.Meta, Answered: w.Answered}, nil
}

func (m *memStore) WriteState(_ context.Context, pid string, w StateWrite) error {
	m.writes++
	if m.writeErr != nil {
		return m.writeErr
	}
	m.states[pid] = w
	return nil
}

func (m *memStore) Delete(_ context.Context, pid string) error {
	delete(m.states, pid)
	return nil
}

func (m *memStore) Exists(_ context.Context, pid string) (bool, error) {
	_, ok := m.states[pid]
	return ok, nil
}

type stubLoader struct {
	state *models.LoanState
	err   error
	calls int
}

func (l *stubLoader) Load(_ context.Context, pid string) (*models.LoanState, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	s := *l.state
	s.ProposalPid = pid
	return &s, nil
}

func sampleState(pid string) *models.LoanState {
	return &models.LoanState{
		ProposalPid: pid,
		Version:     100,
		LoadedAt:    time.Date(2026, 3, 14, 9, 30, 0, 123456789, time.UTC),
		Fields: map[string]models.Value{
			"loan_purpose": models.String("PURCHASE"),
			"loan_amount":  models.Number(420000),
			"rate_locked":  models.Bool(false),
			"closing_date": models.Null(),
		},
		Entities: models.LoanEntities{
			Borrowers: []models.EntityRef{
				{
					PID:         "b-1",
					DisplayName: "Ada Lovelace",
					Fields: map[string]models.Value{
						"citizenship_type": models.String("US_CITIZEN"),
					},
				},
			},
			Jobs: []models.EntityRef{
				{
					PID:         "j-1",
					DisplayName: "Analytical Engines Ltd",
					Fields: map[string]models.Value{
						"weekly_hours": models.Number(40),
					},
				},
			},
		},
		Answered: map[string]struct{}{"Q100": {}},
	}
}

func newTestCache(t *testing.T, store Store, loader Loader) *StateCache {
	t.Helper()
	return New(store, loader, time.Hour, 50*time.Millisecond, zap.NewNop(), metrics.New())
}

func TestCodecRoundTrip(t *testing.T) {
	orig := sampleState("p-77")

	fields, entities, meta, err := encodeState(orig)
	require.NoError(t, err)

	got, err := decodeState("p-77", fields, entities, meta, orig.AnsweredList())
	require.NoError(t, err)

	assert.Equal(t, orig.ProposalPid, got.ProposalPid)
	assert.Equal(t, orig.Version, got.Version)
	assert.True(t, orig.LoadedAt.Equal(got.LoadedAt))
	assert.Equal(t, orig.Fields, got.Fields)
	assert.Equal(t, orig.Entities, got.Entities)
	assert.Equal(t, orig.Answered, got.Answered)
}

func TestGetMissLoadsAndFills(t *testing.T) {
	store := newMemStore()
	loader := &stubLoader{state: sampleState("p-1")}
	c := newTestCache(t, store, loader)

	got, err := c.Get(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls)
	assert.Equal(t, models.String("PURCHASE"), got.Fields["loan_purpose"])
	assert.Equal(t, 1, store.writes, "miss should fill the cache")

	// Second get is served from the store; the loader is not touched again.
	got2, err := c.Get(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls)
	assert.Equal(t, got.Version, got2.Version)
}

func TestGetStoreErrorFallsThrough(t *testing.T) {
	store := newMemStore()
	store.readErr = errors.New("connection refused")
	loader := &stubLoader{state: sampleState("p-2")}
	c := newTestCache(t, store, loader)

	got, err := c.Get(context.Background(), "p-2")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls)
	assert.Equal(t, "p-2", got.ProposalPid)
}

func TestGetLoaderErrorSurfaces(t *testing.T) {
	loader := &stubLoader{err: errors.New("proposal vanished")}
	c := newTestCache(t, newMemStore(), loader)

	_, err := c.Get(context.Background(), "p-3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proposal vanished")
}

func TestGetFillFailureStillReturnsState(t *testing.T) {
	store := newMemStore()
	store.writeErr = errors.New("OOM")
	loader := &stubLoader{state: sampleState("p-4")}
	c := newTestCache(t, store, loader)

	got, err := c.Get(context.Background(), "p-4")
	require.NoError(t, err)
	assert.Equal(t, "p-4", got.ProposalPid)
}

func TestUpdateMergesAndBumpsVersion(t *testing.T) {
	store := newMemStore()
	loader := &stubLoader{state: sampleState("p-5")}
	c := newTestCache(t, store, loader)

	before, err := c.Get(context.Background(), "p-5")
	require.NoError(t, err)

	after, err := c.Update(context.Background(), "p-5", map[string]models.Value{
		"loan_amount":  models.Number(500000),
		"loan_program": models.String("JUMBO"),
	}, "Q301")
	require.NoError(t, err)

	assert.Equal(t, models.Number(500000), after.Fields["loan_amount"])
	assert.Equal(t, models.String("JUMBO"), after.Fields["loan_program"])
	assert.Equal(t, models.String("PURCHASE"), after.Fields["loan_purpose"], "untouched fields survive")
	assert.True(t, after.IsAnswered("Q301"))
	assert.True(t, after.IsAnswered("Q100"), "prior answers survive")
	assert.Greater(t, after.Version, before.Version)

	// The rewrite is visible to the next read without touching the loader.
	reread, err := c.Get(context.Background(), "p-5")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls)
	assert.Equal(t, after.Version, reread.Version)
	assert.Equal(t, models.Number(500000), reread.Fields["loan_amount"])
	assert.True(t, reread.IsAnswered("Q301"))
}

func TestUpdateNormalizesDeltaKeys(t *testing.T) {
	store := newMemStore()
	loader := &stubLoader{state: sampleState("p-8")}
	c := newTestCache(t, store, loader)

	// A camelCase access field must land on the canonical key, not beside it.
	after, err := c.Update(context.Background(), "p-8", map[string]models.Value{
		"loanAmount": models.Number(910000),
	}, "Q301")
	require.NoError(t, err)

	assert.Equal(t, models.Number(910000), after.Fields["loan_amount"])
	_, dup := after.Fields["loanAmount"]
	assert.False(t, dup, "only one spelling of the field may exist")
}

func TestGetFoldsLegacyFieldSpellings(t *testing.T) {
	// An entry cached before field names were canonical decodes to one key
	// per field.
	legacy := sampleState("p-9")
	legacy.Fields = map[string]models.Value{
		"loanPurpose": models.String("REFINANCE"),
	}
	fields, entities, meta, err := encodeState(legacy)
	require.NoError(t, err)

	store := newMemStore()
	store.states["p-9"] = StateWrite{
		Fields: fields, Entities: entities, Meta: meta, Answered: legacy.AnsweredList(),
	}
	c := newTestCache(t, store, &stubLoader{err: errors.New("must not load")})

	got, err := c.Get(context.Background(), "p-9")
	require.NoError(t, err)
	assert.Equal(t, models.String("REFINANCE"), got.Fields["loan_purpose"])
	_, dup := got.Fields["loanPurpose"]
	assert.False(t, dup)
}

func TestUpdateWriteFailureSurfaces(t *testing.T) {
	store := newMemStore()
	loader := &stubLoader{state: sampleState("p-6")}
	c := newTestCache(t, store, loader)

	_, err := c.Get(context.Background(), "p-6")
	require.NoError(t, err)

	store.writeErr = errors.New("READONLY")
	_, err = c.Update(context.Background(), "p-6", map[string]models.Value{
		"loanAmount": models.Number(1),
	}, "Q301")
	require.Error(t, err)
}

func TestInvalidateThenReload(t *testing.T) {
	store := newMemStore()
	loader := &stubLoader{state: sampleState("p-7")}
	c := newTestCache(t, store, loader)

	_, err := c.Get(context.Background(), "p-7")
	require.NoError(t, err)

	cached, err := c.IsCached(context.Background(), "p-7")
	require.NoError(t, err)
	assert.True(t, cached)

	require.NoError(t, c.Invalidate(context.Background(), "p-7"))

	cached, err = c.IsCached(context.Background(), "p-7")
	require.NoError(t, err)
	assert.False(t, cached)

	_, err = c.Get(context.Background(), "p-7")
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls, "invalidation forces a reload")
}

func TestNextVersionMonotonic(t *testing.T) {
	future := time.Now().Add(time.Hour).UnixNano()
	assert.Equal(t, future+1, nextVersion(future))

	past := time.Now().Add(-time.Hour).UnixNano()
	assert.Greater(t, nextVersion(past), past)
}
