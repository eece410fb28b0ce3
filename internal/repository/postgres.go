package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/InverskProperty/propsk-sub012/internal/database"
)

const (
	pgUniqueViolation        = "23505"
	assignmentUniqueIndex    = "ppa_active_unique"
	blockNameUniqueIndex     = "blocks_portfolio_name_key"
	portfolioNameUniqueIndex = "portfolios_owner_name_key"
)

// ErrDuplicateName is returned when a block or portfolio name collides with an
// active sibling at the storage layer.
var ErrDuplicateName = errors.New("name already exists")

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresStore returns a Store backed by db.
func NewPostgresStore(db *database.Database) *Store {
	return &Store{
		Portfolios:  &portfolioRepository{db: db},
		Blocks:      &blockRepository{db: db},
		Assignments: &assignmentRepository{db: db},
		Properties:  &propertyRepository{db: db},
		SyncLogs:    &syncLogRepository{db: db},
		Analytics:   &analyticsRepository{db: db},
	}
}

// mapWriteError translates constraint violations into repository errors.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case assignmentUniqueIndex:
		return ErrDuplicateAssignment
	case blockNameUniqueIndex, portfolioNameUniqueIndex:
		return ErrDuplicateName
	default:
		return err
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// prefixed qualifies every column in a column list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
