package models

import (
	"time"
)

// SyncStatus is the mirror state of a local record on the external tagging platform.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// Valid reports whether s is a known sync status.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSynced, SyncStatusFailed:
		return true
	}
	return false
}

// NeedsSync reports whether a record in this state is picked up by reconciliation.
func (s SyncStatus) NeedsSync() bool {
	return s == SyncStatusPending || s == SyncStatusFailed
}

// Portfolio is a top-level grouping of properties.
// A nil OwnerID marks a shared portfolio.
// ExternalTagID holds either an opaque external ID or, for historical rows, a tag name
// that still has to be resolved. It is empty until the first sync provisions a tag.
type Portfolio struct {
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt,omitempty"`
	OwnerID         *int64     `json:"ownerId,omitempty"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	ExternalTagID   string     `json:"externalTagId,omitempty"`
	ExternalTagName string     `json:"externalTagName,omitempty"`
	SyncStatus      SyncStatus `json:"syncStatus"`
	ID              int64      `json:"id"`
	CreatedBy       int64      `json:"createdBy"`
	UpdatedBy       int64      `json:"updatedBy"`
	IsActive        bool       `json:"isActive"`
}

// IsShared reports whether the portfolio has no owner scope.
func (p *Portfolio) IsShared() bool {
	return p.OwnerID == nil
}

// HasTag reports whether any external tag reference is stored.
func (p *Portfolio) HasTag() bool {
	return p.ExternalTagID != ""
}
