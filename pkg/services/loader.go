// Package services holds the question-evaluation core: state loading,
// applicability evaluation, queue assembly, and answer handling.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lendvoice/question-engine/pkg/models"
	"github.com/lendvoice/question-engine/pkg/registry"
	"github.com/lendvoice/question-engine/pkg/repositories"
)

// StateLoader assembles a full LoanState from the system of record. It is
// the cold path behind the cache; every hot-path request that misses pays
// one loader round.
type StateLoader struct {
	repo     repositories.LoanRepository
	registry *registry.Registry
	logger   *zap.Logger
}

// NewStateLoader creates a StateLoader.
func NewStateLoader(repo repositories.LoanRepository, reg *registry.Registry, logger *zap.Logger) *StateLoader {
	return &StateLoader{
		repo:     repo,
		registry: reg,
		logger:   logger.Named("loader"),
	}
}

// Load builds the proposal's LoanState: proposal row, borrowers, then the
// per-borrower child collections and the property row fetched in parallel,
// then the answered-question set filtered to known question ids.
func (l *StateLoader) Load(ctx context.Context, proposalPid string) (*models.LoanState, error) {
	start := time.Now()

	fields, err := l.repo.GetProposal(ctx, proposalPid)
	if err != nil {
		return nil, err
	}

	dealPid := proposalPid
	if v, ok := fields["deal_pid"]; ok && !v.IsNull() {
		dealPid = v.String()
	}

	borrowers, err := l.repo.GetBorrowers(ctx, dealPid)
	if err != nil {
		return nil, fmt.Errorf("load borrowers: %w", err)
	}
	for i := range borrowers {
		borrowers[i].DisplayName = borrowerDisplayName(borrowers[i].Fields)
	}
	borrowerPids := make([]string, 0, len(borrowers))
	for _, b := range borrowers {
		if b.PID != "" {
			borrowerPids = append(borrowerPids, b.PID)
		}
	}

	state := &models.LoanState{
		ProposalPid: proposalPid,
		Version:     time.Now().UnixNano(),
		LoadedAt:    time.Now(),
		Fields:      fields,
		Entities:    models.LoanEntities{Borrowers: borrowers},
		Answered:    make(map[string]struct{}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		jobs, err := l.repo.GetJobs(gctx, borrowerPids)
		if err != nil {
			return fmt.Errorf("load jobs: %w", err)
		}
		state.Entities.Jobs = jobs
		return nil
	})
	g.Go(func() error {
		assets, err := l.repo.GetAssets(gctx, borrowerPids)
		if err != nil {
			return fmt.Errorf("load assets: %w", err)
		}
		state.Entities.Assets = assets
		return nil
	})
	g.Go(func() error {
		liabilities, err := l.repo.GetLiabilities(gctx, borrowerPids)
		if err != nil {
			return fmt.Errorf("load liabilities: %w", err)
		}
		state.Entities.Liabilities = liabilities
		return nil
	})
	g.Go(func() error {
		reo, err := l.repo.GetRealEstateOwned(gctx, borrowerPids)
		if err != nil {
			return fmt.Errorf("load real estate owned: %w", err)
		}
		state.Entities.RealEstateOwned = reo
		return nil
	})
	g.Go(func() error {
		property, err := l.repo.GetProperty(gctx, dealPid)
		if err != nil {
			return fmt.Errorf("load property: %w", err)
		}
		// Property columns fold into the flat field map under a prefix so
		// they cannot collide with proposal columns.
		for name, value := range property {
			state.Fields["property_"+name] = value
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	answered, err := l.repo.GetAnsweredQuestionIDs(ctx, dealPid)
	if err != nil {
		return nil, fmt.Errorf("load answered questions: %w", err)
	}
	for _, id := range answered {
		if l.registry.KnownQuestion(id) {
			state.MarkAnswered(id)
		}
	}

	l.logger.Debug("loan state loaded",
		zap.String("proposal_pid", proposalPid),
		zap.Int("borrowers", len(state.Entities.Borrowers)),
		zap.Int("answered", len(state.Answered)),
		zap.Duration("elapsed", time.Since(start)))
	return state, nil
}

// borrowerDisplayName builds "First Last" from the borrower row, falling
// back to a neutral placeholder when both are empty.
func borrowerDisplayName(fields map[string]models.Value) string {
	var first, last string
	if v, ok := fields["first_name"]; ok && !v.IsNull() {
		first = v.String()
	}
	if v, ok := fields["last_name"]; ok && !v.IsNull() {
		last = v.String()
	}
	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		return "Borrower"
	}
	return name
}
