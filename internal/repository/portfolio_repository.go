package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/InverskProperty/propsk-sub012/internal/database"
	"github.com/InverskProperty/propsk-sub012/internal/models"
)

const portfolioColumns = `
	id, name, description, owner_id, external_tag_id, external_tag_name,
	sync_status, last_synced_at, is_active, created_by, updated_by, created_at, updated_at`

// portfolioRepository is the PostgreSQL implementation of PortfolioRepository.
type portfolioRepository struct {
	db *database.Database
}

func scanPortfolio(row pgx.Row) (*models.Portfolio, error) {
	var p models.Portfolio
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.OwnerID,
		&p.ExternalTagID,
		&p.ExternalTagName,
		&p.SyncStatus,
		&p.LastSyncedAt,
		&p.IsActive,
		&p.CreatedBy,
		&p.UpdatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *portfolioRepository) findOne(ctx context.Context, where string, args ...interface{}) (*models.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE ` + where + ` LIMIT 1`

	p, err := scanPortfolio(r.db.Pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query portfolio: %w", err)
	}
	return p, nil
}

func (r *portfolioRepository) findMany(ctx context.Context, where string, args ...interface{}) ([]models.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE ` + where + ` ORDER BY id`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	results := []models.Portfolio{}
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio row: %w", err)
		}
		results = append(results, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio rows: %w", err)
	}
	return results, nil
}

func (r *portfolioRepository) FindByID(ctx context.Context, id int64) (*models.Portfolio, error) {
	return r.findOne(ctx, `id = $1`, id)
}

func (r *portfolioRepository) FindByExternalTagID(ctx context.Context, tagID string) (*models.Portfolio, error) {
	return r.findOne(ctx, `external_tag_id = $1`, tagID)
}

func (r *portfolioRepository) FindAllActive(ctx context.Context) ([]models.Portfolio, error) {
	return r.findMany(ctx, `is_active`)
}

// FindNeedingSync mirrors tagsync.IsOpaqueID: every namespace prefix contains
// a hyphen, so the character class alone rules prefixed names out.
func (r *portfolioRepository) FindNeedingSync(ctx context.Context) ([]models.Portfolio, error) {
	return r.findMany(ctx, `is_active AND (
		external_tag_id = ''
		OR external_tag_id !~ '^[a-zA-Z0-9]{10,32}$'
		OR sync_status IN ('pending', 'failed'))`)
}

func (r *portfolioRepository) Create(ctx context.Context, p *models.Portfolio) error {
	if p.SyncStatus == "" {
		p.SyncStatus = models.SyncStatusPending
	}
	query := `
		INSERT INTO portfolios (
			name, description, owner_id, external_tag_id, external_tag_name,
			sync_status, last_synced_at, is_active, created_by, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	err := r.db.Pool.QueryRow(ctx, query,
		p.Name, p.Description, p.OwnerID, p.ExternalTagID, p.ExternalTagName,
		p.SyncStatus, p.LastSyncedAt, p.IsActive, p.CreatedBy, p.UpdatedBy,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert portfolio: %w", mapWriteError(err))
	}
	return nil
}

func (r *portfolioRepository) Update(ctx context.Context, p *models.Portfolio) error {
	query := `
		UPDATE portfolios SET
			name = $2, description = $3, owner_id = $4, external_tag_id = $5,
			external_tag_name = $6, sync_status = $7, last_synced_at = $8,
			is_active = $9, updated_by = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.Pool.QueryRow(ctx, query,
		p.ID, p.Name, p.Description, p.OwnerID, p.ExternalTagID,
		p.ExternalTagName, p.SyncStatus, p.LastSyncedAt, p.IsActive, p.UpdatedBy,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update portfolio %d: %w", p.ID, mapWriteError(err))
	}
	return nil
}

func (r *portfolioRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM portfolios WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete portfolio %d: %w", id, err)
	}
	return nil
}
