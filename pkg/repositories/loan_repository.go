// Package repositories provides data access against the system of record.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lendvoice/question-engine/pkg/apperrors"
	"github.com/lendvoice/question-engine/pkg/database"
	"github.com/lendvoice/question-engine/pkg/models"
	"github.com/lendvoice/question-engine/pkg/rules"
)

// LoanRepository reads a proposal's entity graph from the system of record.
// The engine never writes through this repository; mutations travel through
// the answer write-back queue.
type LoanRepository interface {
	// GetProposal returns the proposal row's columns keyed by canonical
	// field name. Returns apperrors.ErrNotFound when the pid is unknown.
	GetProposal(ctx context.Context, proposalPid string) (map[string]models.Value, error)

	// GetBorrowers returns the deal's borrowers.
	GetBorrowers(ctx context.Context, dealPid string) ([]models.EntityRef, error)

	// GetJobs returns employment records for the borrower pid set.
	GetJobs(ctx context.Context, borrowerPids []string) ([]models.EntityRef, error)

	// GetAssets returns assets for the borrower pid set.
	GetAssets(ctx context.Context, borrowerPids []string) ([]models.EntityRef, error)

	// GetLiabilities returns liabilities for the borrower pid set.
	GetLiabilities(ctx context.Context, borrowerPids []string) ([]models.EntityRef, error)

	// GetRealEstateOwned returns owned properties for the borrower pid set.
	GetRealEstateOwned(ctx context.Context, borrowerPids []string) ([]models.EntityRef, error)

	// GetProperty returns the subject property row for the deal, or nil when
	// no property has been attached yet.
	GetProperty(ctx context.Context, dealPid string) (map[string]models.Value, error)

	// GetAnsweredQuestionIDs returns the distinct set of question ids already
	// answered for the deal.
	GetAnsweredQuestionIDs(ctx context.Context, dealPid string) ([]string, error)
}

type loanRepository struct {
	db      *database.DB
	timeout time.Duration
}

// NewLoanRepository creates a LoanRepository with a per-query timeout.
func NewLoanRepository(db *database.DB, queryTimeout time.Duration) LoanRepository {
	return &loanRepository{db: db, timeout: queryTimeout}
}

var _ LoanRepository = (*loanRepository)(nil)

func (r *loanRepository) GetProposal(ctx context.Context, proposalPid string) (map[string]models.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT * FROM proposals WHERE proposal_pid = $1`, proposalPid)
	if err != nil {
		return nil, fmt.Errorf("query proposal: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query proposal: %w", err)
		}
		return nil, fmt.Errorf("proposal %s: %w", proposalPid, apperrors.ErrNotFound)
	}
	fields, err := rowFields(rows)
	if err != nil {
		return nil, fmt.Errorf("scan proposal: %w", err)
	}
	return fields, nil
}

func (r *loanRepository) GetBorrowers(ctx context.Context, dealPid string) ([]models.EntityRef, error) {
	return r.entityQuery(ctx, "borrower_pid",
		`SELECT * FROM borrowers WHERE deal_pid = $1 ORDER BY borrower_pid`, dealPid)
}

func (r *loanRepository) GetJobs(ctx context.Context, borrowerPids []string) ([]models.EntityRef, error) {
	if len(borrowerPids) == 0 {
		return []models.EntityRef{}, nil
	}
	return r.entityQuery(ctx, "job_pid",
		`SELECT * FROM jobs WHERE borrower_pid = ANY($1) ORDER BY job_pid`, borrowerPids)
}

func (r *loanRepository) GetAssets(ctx context.Context, borrowerPids []string) ([]models.EntityRef, error) {
	if len(borrowerPids) == 0 {
		return []models.EntityRef{}, nil
	}
	return r.entityQuery(ctx, "asset_pid",
		`SELECT * FROM assets WHERE borrower_pid = ANY($1) ORDER BY asset_pid`, borrowerPids)
}

func (r *loanRepository) GetLiabilities(ctx context.Context, borrowerPids []string) ([]models.EntityRef, error) {
	if len(borrowerPids) == 0 {
		return []models.EntityRef{}, nil
	}
	return r.entityQuery(ctx, "liability_pid",
		`SELECT * FROM liabilities WHERE borrower_pid = ANY($1) ORDER BY liability_pid`, borrowerPids)
}

func (r *loanRepository) GetRealEstateOwned(ctx context.Context, borrowerPids []string) ([]models.EntityRef, error) {
	if len(borrowerPids) == 0 {
		return []models.EntityRef{}, nil
	}
	return r.entityQuery(ctx, "reo_pid",
		`SELECT * FROM real_estate_owned WHERE borrower_pid = ANY($1) ORDER BY reo_pid`, borrowerPids)
}

func (r *loanRepository) GetProperty(ctx context.Context, dealPid string) (map[string]models.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT * FROM properties WHERE deal_pid = $1`, dealPid)
	if err != nil {
		return nil, fmt.Errorf("query property: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query property: %w", err)
		}
		return nil, nil
	}
	fields, err := rowFields(rows)
	if err != nil {
		return nil, fmt.Errorf("scan property: %w", err)
	}
	return fields, nil
}

func (r *loanRepository) GetAnsweredQuestionIDs(ctx context.Context, dealPid string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT question_id FROM question_responses WHERE deal_pid = $1`, dealPid)
	if err != nil {
		return nil, fmt.Errorf("query answered questions: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan question id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answered questions: %w", err)
	}
	return ids, nil
}

func (r *loanRepository) entityQuery(ctx context.Context, pidColumn, query string, arg interface{}) ([]models.EntityRef, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query %s entities: %w", pidColumn, err)
	}
	defer rows.Close()

	refs := make([]models.EntityRef, 0)
	for rows.Next() {
		fields, err := rowFields(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s entity: %w", pidColumn, err)
		}
		ref := models.EntityRef{Fields: fields}
		if pid, ok := fields[pidColumn]; ok {
			ref.PID = pid.String()
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s entities: %w", pidColumn, err)
	}
	return refs, nil
}

// rowFields converts the current row into a field map keyed by the canonical
// form of each column name. Canonicalizing here means criteria-derived keys,
// answer deltas, and loader-derived keys all join on one spelling, so a field
// can never appear in the map twice.
func rowFields(rows pgx.Rows) (map[string]models.Value, error) {
	values, err := rows.Values()
	if err != nil {
		return nil, err
	}
	descs := rows.FieldDescriptions()

	fields := make(map[string]models.Value, len(values))
	for i, desc := range descs {
		v, err := columnValue(values[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", desc.Name, err)
		}
		fields[rules.NormalizeFieldName(desc.Name)] = v
	}
	return fields, nil
}

// columnValue converts a pgx-decoded column into the engine's tagged
// variant. Timestamps transport as ISO-8601 strings.
func columnValue(raw interface{}) (models.Value, error) {
	switch t := raw.(type) {
	case nil:
		return models.Null(), nil
	case time.Time:
		return models.String(t.UTC().Format(time.RFC3339)), nil
	case pgtype.Numeric:
		f, err := t.Float64Value()
		if err != nil {
			return models.Null(), err
		}
		if !f.Valid {
			return models.Null(), nil
		}
		return models.Number(f.Float64), nil
	case []byte:
		return models.String(string(t)), nil
	default:
		v, err := models.FromAny(raw)
		if err != nil {
			// Drivers can surface exotic types; render them rather than
			// failing the whole load.
			return models.String(fmt.Sprint(raw)), nil
		}
		return v, nil
	}
}
