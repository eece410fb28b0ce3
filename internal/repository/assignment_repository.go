package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/InverskProperty/propsk-sub012/internal/database"
	"github.com/InverskProperty/propsk-sub012/internal/models"
)

const assignmentColumns = `
	id, property_id, portfolio_id, block_id, assignment_type, is_active,
	sync_status, last_synced_at, notes, created_by, updated_by, created_at, updated_at`

// assignmentRepository is the PostgreSQL implementation of AssignmentRepository.
type assignmentRepository struct {
	db *database.Database
}

func scanAssignment(row pgx.Row) (*models.Assignment, error) {
	var a models.Assignment
	err := row.Scan(
		&a.ID,
		&a.PropertyID,
		&a.PortfolioID,
		&a.BlockID,
		&a.Kind,
		&a.IsActive,
		&a.SyncStatus,
		&a.LastSyncedAt,
		&a.Notes,
		&a.CreatedBy,
		&a.UpdatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *assignmentRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Assignment, error) {
	a, err := scanAssignment(r.db.Pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query assignment: %w", err)
	}
	return a, nil
}

func (r *assignmentRepository) findMany(ctx context.Context, where string, args ...interface{}) ([]models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM property_portfolio_assignments
		WHERE ` + where + ` ORDER BY id`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	results := []models.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment row: %w", err)
		}
		results = append(results, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignment rows: %w", err)
	}
	return results, nil
}

func (r *assignmentRepository) FindByID(ctx context.Context, id int64) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM property_portfolio_assignments WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *assignmentRepository) FindActive(ctx context.Context, propertyID, portfolioID int64, kind models.AssignmentKind) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM property_portfolio_assignments
		WHERE property_id = $1 AND portfolio_id = $2 AND assignment_type = $3 AND is_active`
	return r.findOne(ctx, query, propertyID, portfolioID, kind)
}

func (r *assignmentRepository) FindLatestInactive(ctx context.Context, propertyID, portfolioID int64, kind models.AssignmentKind) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM property_portfolio_assignments
		WHERE property_id = $1 AND portfolio_id = $2 AND assignment_type = $3 AND NOT is_active
		ORDER BY updated_at DESC, id DESC
		LIMIT 1`
	return r.findOne(ctx, query, propertyID, portfolioID, kind)
}

func (r *assignmentRepository) FindActiveByBlock(ctx context.Context, blockID int64) ([]models.Assignment, error) {
	return r.findMany(ctx, `block_id = $1 AND is_active`, blockID)
}

func (r *assignmentRepository) FindActiveByPortfolio(ctx context.Context, portfolioID int64) ([]models.Assignment, error) {
	return r.findMany(ctx, `portfolio_id = $1 AND is_active`, portfolioID)
}

func (r *assignmentRepository) FindActiveByProperty(ctx context.Context, propertyID int64) ([]models.Assignment, error) {
	return r.findMany(ctx, `property_id = $1 AND is_active`, propertyID)
}

func (r *assignmentRepository) FindNeedingSync(ctx context.Context) ([]models.Assignment, error) {
	return r.findMany(ctx, `is_active AND assignment_type = $1 AND sync_status IN ('pending', 'failed')`,
		models.AssignmentKindPrimary)
}

func (r *assignmentRepository) CountActiveInBlock(ctx context.Context, blockID int64) (int, error) {
	query := `SELECT COUNT(*) FROM property_portfolio_assignments WHERE block_id = $1 AND is_active`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, blockID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count block assignments: %w", err)
	}
	return count, nil
}

func (r *assignmentRepository) Create(ctx context.Context, a *models.Assignment) error {
	if a.SyncStatus == "" {
		a.SyncStatus = models.SyncStatusPending
	}
	query := `
		INSERT INTO property_portfolio_assignments (
			property_id, portfolio_id, block_id, assignment_type, is_active,
			sync_status, last_synced_at, notes, created_by, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	err := r.db.Pool.QueryRow(ctx, query,
		a.PropertyID, a.PortfolioID, a.BlockID, a.Kind, a.IsActive,
		a.SyncStatus, a.LastSyncedAt, a.Notes, a.CreatedBy, a.UpdatedBy,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if mapped := mapWriteError(err); mapped == ErrDuplicateAssignment {
			return mapped
		}
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

func (r *assignmentRepository) Update(ctx context.Context, a *models.Assignment) error {
	return updateAssignment(ctx, r.db.Pool, a)
}

func updateAssignment(ctx context.Context, q querier, a *models.Assignment) error {
	query := `
		UPDATE property_portfolio_assignments SET
			block_id = $2, is_active = $3, sync_status = $4, last_synced_at = $5,
			notes = $6, updated_by = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := q.QueryRow(ctx, query,
		a.ID, a.BlockID, a.IsActive, a.SyncStatus, a.LastSyncedAt, a.Notes, a.UpdatedBy,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		if mapped := mapWriteError(err); mapped == ErrDuplicateAssignment {
			return mapped
		}
		return fmt.Errorf("failed to update assignment %d: %w", a.ID, err)
	}
	return nil
}

func (r *assignmentRepository) DeleteByPortfolio(ctx context.Context, portfolioID int64) error {
	query := `DELETE FROM property_portfolio_assignments WHERE portfolio_id = $1`
	if _, err := r.db.Pool.Exec(ctx, query, portfolioID); err != nil {
		return fmt.Errorf("failed to delete assignments of portfolio %d: %w", portfolioID, err)
	}
	return nil
}

func (r *assignmentRepository) Stats(ctx context.Context, portfolioID *int64) (*models.AssignmentStats, error) {
	query := `
		WITH active AS (
			SELECT * FROM property_portfolio_assignments WHERE is_active
		), scoped AS (
			SELECT * FROM active WHERE $1::BIGINT IS NULL OR portfolio_id = $1
		)
		SELECT
			(SELECT COUNT(*) FROM scoped),
			(SELECT COUNT(*) FROM scoped WHERE sync_status = 'pending'),
			(SELECT COUNT(*) FROM scoped WHERE sync_status = 'synced'),
			(SELECT COUNT(*) FROM scoped WHERE sync_status = 'failed'),
			(SELECT COUNT(*) FROM scoped WHERE block_id IS NOT NULL),
			(SELECT COUNT(*) FROM (
				SELECT property_id FROM active
				WHERE property_id IN (SELECT property_id FROM scoped)
				GROUP BY property_id
				HAVING COUNT(DISTINCT portfolio_id) > 1
			) multi),
			(SELECT COUNT(*) FROM blocks WHERE is_active AND ($1::BIGINT IS NULL OR portfolio_id = $1))`

	stats := &models.AssignmentStats{ComputedAt: time.Now().UTC(), PortfolioID: portfolioID}
	err := r.db.Pool.QueryRow(ctx, query, portfolioID).Scan(
		&stats.TotalActive,
		&stats.Pending,
		&stats.Synced,
		&stats.Failed,
		&stats.InBlocks,
		&stats.MultiPortfolioProperties,
		&stats.ActiveBlocks,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute assignment stats: %w", err)
	}
	return stats, nil
}
