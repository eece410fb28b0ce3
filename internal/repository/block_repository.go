package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/InverskProperty/propsk-sub012/internal/database"
	"github.com/InverskProperty/propsk-sub012/internal/models"
)

const blockColumns = `
	id, portfolio_id, name, description, kind, capacity, display_order,
	external_tag_id, external_tag_name, sync_status, last_synced_at,
	is_active, created_by, updated_by, created_at, updated_at`

// blockRepository is the PostgreSQL implementation of BlockRepository.
type blockRepository struct {
	db *database.Database
}

func scanBlock(row pgx.Row) (*models.Block, error) {
	var b models.Block
	err := row.Scan(
		&b.ID,
		&b.PortfolioID,
		&b.Name,
		&b.Description,
		&b.Kind,
		&b.Capacity,
		&b.DisplayOrder,
		&b.ExternalTagID,
		&b.ExternalTagName,
		&b.SyncStatus,
		&b.LastSyncedAt,
		&b.IsActive,
		&b.CreatedBy,
		&b.UpdatedBy,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *blockRepository) findMany(ctx context.Context, query string, args ...interface{}) ([]models.Block, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	results := []models.Block{}
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan block row: %w", err)
		}
		results = append(results, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating block rows: %w", err)
	}
	return results, nil
}

func (r *blockRepository) FindByID(ctx context.Context, id int64) (*models.Block, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks WHERE id = $1`

	b, err := scanBlock(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query block %d: %w", id, err)
	}
	return b, nil
}

func (r *blockRepository) FindActiveByPortfolio(ctx context.Context, portfolioID int64) ([]models.Block, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks
		WHERE portfolio_id = $1 AND is_active
		ORDER BY display_order, id`
	return r.findMany(ctx, query, portfolioID)
}

func (r *blockRepository) ExistsByNameInPortfolio(ctx context.Context, portfolioID int64, name string, excludeID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM blocks
			WHERE portfolio_id = $1 AND is_active AND id <> $3
			  AND lower(btrim(name)) = lower(btrim($2))
		)`

	var exists bool
	if err := r.db.Pool.QueryRow(ctx, query, portfolioID, name, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check block name: %w", err)
	}
	return exists, nil
}

func (r *blockRepository) NextDisplayOrder(ctx context.Context, portfolioID int64) (int, error) {
	query := `SELECT COALESCE(MAX(display_order), 0) + 1 FROM blocks WHERE portfolio_id = $1 AND is_active`

	var next int
	if err := r.db.Pool.QueryRow(ctx, query, portfolioID).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to compute next display order: %w", err)
	}
	return next, nil
}

func (r *blockRepository) FindNeedingSync(ctx context.Context) ([]models.Block, error) {
	query := `SELECT ` + prefixed("b", blockColumns) + ` FROM blocks b
		JOIN portfolios p ON p.id = b.portfolio_id
		WHERE b.is_active AND p.is_active AND (
			b.external_tag_id = ''
			OR b.external_tag_id !~ '^[a-zA-Z0-9]{10,32}$'
			OR b.sync_status IN ('pending', 'failed'))
		ORDER BY b.id`
	return r.findMany(ctx, query)
}

func (r *blockRepository) Create(ctx context.Context, b *models.Block) error {
	if b.SyncStatus == "" {
		b.SyncStatus = models.SyncStatusPending
	}
	query := `
		INSERT INTO blocks (
			portfolio_id, name, description, kind, capacity, display_order,
			external_tag_id, external_tag_name, sync_status, last_synced_at,
			is_active, created_by, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`

	err := r.db.Pool.QueryRow(ctx, query,
		b.PortfolioID, b.Name, b.Description, b.Kind, b.Capacity, b.DisplayOrder,
		b.ExternalTagID, b.ExternalTagName, b.SyncStatus, b.LastSyncedAt,
		b.IsActive, b.CreatedBy, b.UpdatedBy,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert block: %w", mapWriteError(err))
	}
	return nil
}

// Update never changes portfolio_id.
func (r *blockRepository) Update(ctx context.Context, b *models.Block) error {
	return updateBlock(ctx, r.db.Pool, b)
}

func updateBlock(ctx context.Context, q querier, b *models.Block) error {
	query := `
		UPDATE blocks SET
			name = $2, description = $3, kind = $4, capacity = $5, display_order = $6,
			external_tag_id = $7, external_tag_name = $8, sync_status = $9,
			last_synced_at = $10, is_active = $11, updated_by = $12, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := q.QueryRow(ctx, query,
		b.ID, b.Name, b.Description, b.Kind, b.Capacity, b.DisplayOrder,
		b.ExternalTagID, b.ExternalTagName, b.SyncStatus,
		b.LastSyncedAt, b.IsActive, b.UpdatedBy,
	).Scan(&b.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update block %d: %w", b.ID, mapWriteError(err))
	}
	return nil
}

func (r *blockRepository) Retire(ctx context.Context, b *models.Block, reassigned []models.Assignment) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		for i := range reassigned {
			if err := updateAssignment(ctx, tx, &reassigned[i]); err != nil {
				return err
			}
		}
		return updateBlock(ctx, tx, b)
	})
}

func (r *blockRepository) UpdateDisplayOrders(ctx context.Context, orders map[int64]int) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for id, order := range orders {
			batch.Queue(`UPDATE blocks SET display_order = $2, updated_at = NOW() WHERE id = $1`, id, order)
		}

		results := tx.SendBatch(ctx, batch)
		for range orders {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return fmt.Errorf("failed to update display order: %w", err)
			}
			if tag.RowsAffected() == 0 {
				_ = results.Close()
				return ErrNotFound
			}
		}
		return results.Close()
	})
}

func (r *blockRepository) DeleteByPortfolio(ctx context.Context, portfolioID int64) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM blocks WHERE portfolio_id = $1`, portfolioID); err != nil {
		return fmt.Errorf("failed to delete blocks of portfolio %d: %w", portfolioID, err)
	}
	return nil
}
