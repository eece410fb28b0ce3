package models

import (
	"strings"
	"time"
)

// BlockKind classifies a block.
type BlockKind string

const (
	BlockKindBuilding BlockKind = "building"
	BlockKindEstate   BlockKind = "estate"
	BlockKindOther    BlockKind = "other"
)

// ParseBlockKind maps free text onto a BlockKind. Empty input yields BlockKindBuilding.
func ParseBlockKind(s string) (BlockKind, bool) {
	switch BlockKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", BlockKindBuilding:
		return BlockKindBuilding, true
	case BlockKindEstate:
		return BlockKindEstate, true
	case BlockKindOther:
		return BlockKindOther, true
	}
	return "", false
}

// Block is a sub-grouping of properties inside exactly one portfolio.
// PortfolioID never changes after creation. A nil Capacity means unlimited.
type Block struct {
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt,omitempty"`
	Capacity        *int       `json:"capacity,omitempty"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Kind            BlockKind  `json:"kind"`
	ExternalTagID   string     `json:"externalTagId,omitempty"`
	ExternalTagName string     `json:"externalTagName,omitempty"`
	SyncStatus      SyncStatus `json:"syncStatus"`
	ID              int64      `json:"id"`
	PortfolioID     int64      `json:"portfolioId"`
	DisplayOrder    int        `json:"displayOrder"`
	CreatedBy       int64      `json:"createdBy"`
	UpdatedBy       int64      `json:"updatedBy"`
	IsActive        bool       `json:"isActive"`
}

// HasTag reports whether any external tag reference is stored.
func (b *Block) HasTag() bool {
	return b.ExternalTagID != ""
}

// BlockWithCount pairs a block with its number of active assignments.
type BlockWithCount struct {
	Block         Block `json:"block"`
	PropertyCount int   `json:"propertyCount"`
}
