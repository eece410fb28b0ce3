package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/InverskProperty/propsk-sub012/internal/database"
	"github.com/InverskProperty/propsk-sub012/internal/models"
)

const propertyColumns = `id, name, external_ref, portfolio_id, created_at, updated_at`

type propertyRepository struct {
	db *database.Database
}

func scanProperty(row pgx.Row) (*models.Property, error) {
	var p models.Property
	if err := row.Scan(&p.ID, &p.Name, &p.ExternalRef, &p.PortfolioID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *propertyRepository) findOne(ctx context.Context, where string, arg interface{}) (*models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE ` + where

	p, err := scanProperty(r.db.Pool.QueryRow(ctx, query, arg))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query property: %w", err)
	}
	return p, nil
}

func (r *propertyRepository) FindByID(ctx context.Context, id int64) (*models.Property, error) {
	return r.findOne(ctx, `id = $1`, id)
}

func (r *propertyRepository) FindByExternalRef(ctx context.Context, ref string) (*models.Property, error) {
	return r.findOne(ctx, `external_ref = $1`, ref)
}

func (r *propertyRepository) FindWithLegacyPortfolio(ctx context.Context) ([]models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE portfolio_id IS NOT NULL ORDER BY id`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	defer rows.Close()

	results := []models.Property{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property row: %w", err)
		}
		results = append(results, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating property rows: %w", err)
	}
	return results, nil
}

func (r *propertyRepository) Create(ctx context.Context, p *models.Property) error {
	query := `
		INSERT INTO properties (name, external_ref, portfolio_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	err := r.db.Pool.QueryRow(ctx, query, p.Name, p.ExternalRef, p.PortfolioID).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert property: %w", err)
	}
	return nil
}

func (r *propertyRepository) SetLegacyPortfolio(ctx context.Context, propertyID int64, portfolioID *int64) error {
	query := `UPDATE properties SET portfolio_id = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, propertyID, portfolioID)
	if err != nil {
		return fmt.Errorf("failed to update property %d: %w", propertyID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// syncLogRepository is the PostgreSQL implementation of SyncLogRepository.
type syncLogRepository struct {
	db *database.Database
}

func (r *syncLogRepository) Create(ctx context.Context, entry *models.SyncLog) error {
	query := `
		INSERT INTO tag_sync_log (
			portfolio_id, block_id, property_id, operation, status, tag_id,
			error_message, actor_id, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	err := r.db.Pool.QueryRow(ctx, query,
		entry.PortfolioID, entry.BlockID, entry.PropertyID, entry.Operation, entry.Status,
		entry.TagID, entry.ErrorMessage, entry.ActorID, entry.StartedAt, entry.CompletedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert sync log: %w", err)
	}
	return nil
}

func (r *syncLogRepository) FindRecent(ctx context.Context, limit int) ([]models.SyncLog, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, portfolio_id, block_id, property_id, operation, status, tag_id,
		       error_message, actor_id, started_at, completed_at
		FROM tag_sync_log
		ORDER BY started_at DESC, id DESC
		LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer rows.Close()

	results := []models.SyncLog{}
	for rows.Next() {
		var e models.SyncLog
		err := rows.Scan(&e.ID, &e.PortfolioID, &e.BlockID, &e.PropertyID, &e.Operation, &e.Status,
			&e.TagID, &e.ErrorMessage, &e.ActorID, &e.StartedAt, &e.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log row: %w", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync log rows: %w", err)
	}
	return results, nil
}

// analyticsRepository is the PostgreSQL implementation of AnalyticsRepository.
type analyticsRepository struct {
	db *database.Database
}

func (r *analyticsRepository) Save(ctx context.Context, s *models.AssignmentStats) error {
	if s.PortfolioID == nil {
		return fmt.Errorf("analytics snapshot requires a portfolio")
	}
	query := `
		INSERT INTO portfolio_analytics (
			portfolio_id, total_active, pending, synced, failed, in_blocks,
			multi_portfolio_properties, active_blocks, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Pool.Exec(ctx, query,
		*s.PortfolioID, s.TotalActive, s.Pending, s.Synced, s.Failed, s.InBlocks,
		s.MultiPortfolioProperties, s.ActiveBlocks, s.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save analytics for portfolio %d: %w", *s.PortfolioID, err)
	}
	return nil
}

func (r *analyticsRepository) Latest(ctx context.Context, portfolioID int64) (*models.AssignmentStats, error) {
	query := `
		SELECT portfolio_id, total_active, pending, synced, failed, in_blocks,
		       multi_portfolio_properties, active_blocks, computed_at
		FROM portfolio_analytics
		WHERE portfolio_id = $1
		ORDER BY computed_at DESC, id DESC
		LIMIT 1`

	var s models.AssignmentStats
	err := r.db.Pool.QueryRow(ctx, query, portfolioID).Scan(
		&s.PortfolioID, &s.TotalActive, &s.Pending, &s.Synced, &s.Failed, &s.InBlocks,
		&s.MultiPortfolioProperties, &s.ActiveBlocks, &s.ComputedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query analytics for portfolio %d: %w", portfolioID, err)
	}
	return &s, nil
}
