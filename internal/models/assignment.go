package models

import (
	"time"
)

// AssignmentKind distinguishes relationships between a property and a portfolio.
// Only primary assignments drive tag synchronization.
type AssignmentKind string

const (
	AssignmentKindPrimary   AssignmentKind = "primary"
	AssignmentKindSecondary AssignmentKind = "secondary"
	AssignmentKindTag       AssignmentKind = "tag"
)

// Assignment links one property to one portfolio and, optionally, one block of that portfolio.
// At most one active row exists per (PropertyID, PortfolioID, Kind).
type Assignment struct {
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	LastSyncedAt *time.Time     `json:"lastSyncedAt,omitempty"`
	BlockID      *int64         `json:"blockId,omitempty"`
	Kind         AssignmentKind `json:"kind"`
	SyncStatus   SyncStatus     `json:"syncStatus"`
	Notes        string         `json:"notes,omitempty"`
	ID           int64          `json:"id"`
	PropertyID   int64          `json:"propertyId"`
	PortfolioID  int64          `json:"portfolioId"`
	CreatedBy    int64          `json:"createdBy"`
	UpdatedBy    int64          `json:"updatedBy"`
	IsActive     bool           `json:"isActive"`
}

// InBlock reports whether the assignment points at the given block.
// A nil blockID matches portfolio-only assignments.
func (a *Assignment) InBlock(blockID *int64) bool {
	if a.BlockID == nil || blockID == nil {
		return a.BlockID == nil && blockID == nil
	}
	return *a.BlockID == *blockID
}

// MarkPending resets the assignment so the next reconciliation re-applies its tag.
func (a *Assignment) MarkPending(actor int64, now time.Time) {
	a.SyncStatus = SyncStatusPending
	a.UpdatedBy = actor
	a.UpdatedAt = now
}

// AssignmentStats summarises assignments, globally or for a single portfolio.
type AssignmentStats struct {
	ComputedAt               time.Time `json:"computedAt"`
	PortfolioID              *int64    `json:"portfolioId,omitempty"`
	TotalActive              int       `json:"totalActive"`
	Pending                  int       `json:"pending"`
	Synced                   int       `json:"synced"`
	Failed                   int       `json:"failed"`
	InBlocks                 int       `json:"inBlocks"`
	MultiPortfolioProperties int       `json:"multiPortfolioProperties"`
	ActiveBlocks             int       `json:"activeBlocks"`
}
