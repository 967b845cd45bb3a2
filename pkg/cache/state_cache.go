package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lendvoice/question-engine/pkg/logging"
	"github.com/lendvoice/question-engine/pkg/metrics"
	"github.com/lendvoice/question-engine/pkg/models"
	"github.com/lendvoice/question-engine/pkg/rules"
)

// Loader materializes a LoanState from the system of record on cache miss.
type Loader interface {
	Load(ctx context.Context, proposalPid string) (*models.LoanState, error)
}

// StateCache is the coherence layer between the remote working set and the
// system of record. It owns LoanState instances: evaluators may read them
// concurrently, but mutation happens only through Update, which rewrites the
// proposal's four split keys atomically.
type StateCache struct {
	store     Store
	loader    Loader
	ttl       time.Duration
	opTimeout time.Duration

	logger *zap.Logger
	misses *metrics.Counter
	errors *metrics.Counter
}

// New creates a StateCache. opTimeout bounds each remote-store round trip;
// a store that cannot answer inside it is treated as unavailable and the
// loader takes over.
func New(store Store, loader Loader, ttl, opTimeout time.Duration, logger *zap.Logger, m *metrics.Registry) *StateCache {
	return &StateCache{
		store:     store,
		loader:    loader,
		ttl:       ttl,
		opTimeout: opTimeout,
		logger:    logger.Named("statecache"),
		misses:    m.Counter(metrics.CacheMisses),
		errors:    m.Counter(metrics.CacheErrors),
	}
}

// Get returns the proposal's LoanState, reading through to the loader when
// the cached entry is absent, incomplete, or the store is unavailable.
func (c *StateCache) Get(ctx context.Context, proposalPid string) (*models.LoanState, error) {
	readCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	stored, err := c.store.ReadState(readCtx, proposalPid)
	cancel()
	if err != nil {
		// Transient dependency failure: the request can still succeed
		// against the system of record.
		c.errors.Inc()
		c.logger.Warn("cache read failed, falling through to loader",
			zap.String("proposal_pid", proposalPid),
			zap.String("error", logging.SanitizeError(err)))
		return c.loadAndFill(ctx, proposalPid)
	}
	if !stored.Complete() {
		c.misses.Inc()
		return c.loadAndFill(ctx, proposalPid)
	}

	state, err := decodeState(proposalPid, stored.Fields, stored.Entities, stored.Meta, stored.Answered)
	if err != nil {
		// A corrupt entry is repaired by reloading.
		c.errors.Inc()
		c.logger.Warn("cache entry undecodable, reloading",
			zap.String("proposal_pid", proposalPid),
			zap.String("error", logging.SanitizeError(err)))
		return c.loadAndFill(ctx, proposalPid)
	}
	return state, nil
}

// Update applies an answer's field delta, marks the question answered, bumps
// the version, and rewrites the proposal's split keys. This is the
// source-of-truth update for the hot path; a store failure here is surfaced.
func (c *StateCache) Update(ctx context.Context, proposalPid string, delta map[string]models.Value, answeredQuestionID string) (*models.LoanState, error) {
	state, err := c.Get(ctx, proposalPid)
	if err != nil {
		return nil, err
	}

	// Delta keys are canonicalized on the way in so an answer always lands
	// on the loader's spelling of the field, never beside it.
	for field, value := range delta {
		state.Fields[rules.NormalizeFieldName(field)] = value
	}
	if answeredQuestionID != "" {
		state.MarkAnswered(answeredQuestionID)
	}
	state.Version = nextVersion(state.Version)

	if err := c.write(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Invalidate drops the proposal's cached entry.
func (c *StateCache) Invalidate(ctx context.Context, proposalPid string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.store.Delete(ctx, proposalPid)
}

// IsCached reports whether the proposal's presence witness key exists.
func (c *StateCache) IsCached(ctx context.Context, proposalPid string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.store.Exists(ctx, proposalPid)
}

func (c *StateCache) loadAndFill(ctx context.Context, proposalPid string) (*models.LoanState, error) {
	state, err := c.loader.Load(ctx, proposalPid)
	if err != nil {
		return nil, err
	}
	if err := c.write(ctx, state); err != nil {
		// The caller still gets a usable state; the next request reloads.
		c.errors.Inc()
		c.logger.Warn("cache fill failed",
			zap.String("proposal_pid", proposalPid),
			zap.String("error", logging.SanitizeError(err)))
	}
	return state, nil
}

func (c *StateCache) write(ctx context.Context, state *models.LoanState) error {
	fields, entities, meta, err := encodeState(state)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.store.WriteState(ctx, state.ProposalPid, StateWrite{
		Fields:   fields,
		Entities: entities,
		Meta:     meta,
		Answered: state.AnsweredList(),
		TTL:      c.ttl,
	})
}

// nextVersion keeps versions strictly increasing per proposal in-process
// even when the wall clock stalls or steps backwards.
func nextVersion(current int64) int64 {
	now := time.Now().UnixNano()
	if now <= current {
		return current + 1
	}
	return now
}
