package repository

import (
	"context"
	"errors"

	"github.com/InverskProperty/propsk-sub012/internal/models"
)

// ErrDuplicateAssignment is returned when a write would leave two active
// assignments for the same (property, portfolio, kind).
var ErrDuplicateAssignment = errors.New("active assignment already exists")

// ErrNotFound is returned by updates that target a row which does not exist.
// Lookups return nil, nil instead.
var ErrNotFound = errors.New("record not found")

// PortfolioRepository defines data access for portfolios.
// Lookups return nil, nil when nothing matches.
type PortfolioRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Portfolio, error)

	// FindByExternalTagID returns the portfolio that owns tagID, active or not.
	FindByExternalTagID(ctx context.Context, tagID string) (*models.Portfolio, error)

	FindAllActive(ctx context.Context) ([]models.Portfolio, error)

	// FindNeedingSync returns active portfolios whose tag is missing, name-shaped,
	// or whose sync status is pending or failed.
	FindNeedingSync(ctx context.Context) ([]models.Portfolio, error)

	Create(ctx context.Context, p *models.Portfolio) error
	Update(ctx context.Context, p *models.Portfolio) error
	Delete(ctx context.Context, id int64) error
}

// BlockRepository defines data access for blocks.
type BlockRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Block, error)

	// FindActiveByPortfolio returns active blocks ordered by display order.
	FindActiveByPortfolio(ctx context.Context, portfolioID int64) ([]models.Block, error)

	// ExistsByNameInPortfolio compares trimmed names case-insensitively among
	// active blocks, ignoring excludeID (0 excludes nothing).
	ExistsByNameInPortfolio(ctx context.Context, portfolioID int64, name string, excludeID int64) (bool, error)

	// NextDisplayOrder returns one past the highest display order in use.
	NextDisplayOrder(ctx context.Context, portfolioID int64) (int, error)

	// FindNeedingSync returns active blocks under active portfolios whose tag
	// is missing or name-shaped, or whose status is pending or failed.
	FindNeedingSync(ctx context.Context) ([]models.Block, error)

	Create(ctx context.Context, b *models.Block) error
	Update(ctx context.Context, b *models.Block) error

	// UpdateDisplayOrders applies every blockID -> order entry atomically.
	UpdateDisplayOrders(ctx context.Context, orders map[int64]int) error

	// Retire persists every assignment in reassigned and then b in one
	// transaction. Nothing is written when any row fails.
	Retire(ctx context.Context, b *models.Block, reassigned []models.Assignment) error

	DeleteByPortfolio(ctx context.Context, portfolioID int64) error
}

// AssignmentRepository defines data access for property assignments.
type AssignmentRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Assignment, error)

	FindActive(ctx context.Context, propertyID, portfolioID int64, kind models.AssignmentKind) (*models.Assignment, error)

	// FindLatestInactive returns the most recently updated inactive row for the key.
	FindLatestInactive(ctx context.Context, propertyID, portfolioID int64, kind models.AssignmentKind) (*models.Assignment, error)

	FindActiveByBlock(ctx context.Context, blockID int64) ([]models.Assignment, error)
	FindActiveByPortfolio(ctx context.Context, portfolioID int64) ([]models.Assignment, error)
	FindActiveByProperty(ctx context.Context, propertyID int64) ([]models.Assignment, error)

	// FindNeedingSync returns active primary assignments in pending or failed state.
	FindNeedingSync(ctx context.Context) ([]models.Assignment, error)

	CountActiveInBlock(ctx context.Context, blockID int64) (int, error)

	// Create inserts a, assigning ID and timestamps. It returns
	// ErrDuplicateAssignment when a is active and collides with another active row.
	Create(ctx context.Context, a *models.Assignment) error

	// Update persists every mutable field of a. Reactivating a row may also
	// return ErrDuplicateAssignment.
	Update(ctx context.Context, a *models.Assignment) error

	DeleteByPortfolio(ctx context.Context, portfolioID int64) error

	// Stats summarises active assignments, for one portfolio or all when portfolioID is nil.
	Stats(ctx context.Context, portfolioID *int64) (*models.AssignmentStats, error)
}

// PropertyRepository defines the property lookups the assignment engine needs.
type PropertyRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Property, error)
	FindByExternalRef(ctx context.Context, ref string) (*models.Property, error)

	// FindWithLegacyPortfolio returns properties still carrying a direct portfolio pointer.
	FindWithLegacyPortfolio(ctx context.Context) ([]models.Property, error)

	Create(ctx context.Context, p *models.Property) error

	// SetLegacyPortfolio writes the direct portfolio pointer; nil clears it.
	SetLegacyPortfolio(ctx context.Context, propertyID int64, portfolioID *int64) error
}

// SyncLogRepository records external tag operations.
type SyncLogRepository interface {
	Create(ctx context.Context, entry *models.SyncLog) error
	FindRecent(ctx context.Context, limit int) ([]models.SyncLog, error)
}

// AnalyticsRepository stores per-portfolio statistics snapshots.
type AnalyticsRepository interface {
	Save(ctx context.Context, stats *models.AssignmentStats) error
	Latest(ctx context.Context, portfolioID int64) (*models.AssignmentStats, error)
}

// Store groups every repository behind one backend.
type Store struct {
	Portfolios  PortfolioRepository
	Blocks      BlockRepository
	Assignments AssignmentRepository
	Properties  PropertyRepository
	SyncLogs    SyncLogRepository
	Analytics   AnalyticsRepository
}
