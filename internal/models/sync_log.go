package models

import (
	"time"
)

// SyncOperation names an attempted call against the tagging platform.
type SyncOperation string

const (
	SyncOperationResolve SyncOperation = "resolve"
	SyncOperationApply   SyncOperation = "apply"
	SyncOperationRemove  SyncOperation = "remove"
	SyncOperationAdopt   SyncOperation = "adopt"
)

// SyncLogStatus is the outcome recorded for a SyncLog entry.
type SyncLogStatus string

const (
	SyncLogSuccess SyncLogStatus = "success"
	SyncLogFailed  SyncLogStatus = "failed"
	SyncLogSkipped SyncLogStatus = "skipped"
)

// SyncLog is an audit record of one external tag operation.
type SyncLog struct {
	StartedAt    time.Time     `json:"startedAt"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
	PortfolioID  *int64        `json:"portfolioId,omitempty"`
	BlockID      *int64        `json:"blockId,omitempty"`
	PropertyID   *int64        `json:"propertyId,omitempty"`
	Operation    SyncOperation `json:"operation"`
	Status       SyncLogStatus `json:"status"`
	TagID        string        `json:"tagId,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	ID           int64         `json:"id"`
	ActorID      int64         `json:"actorId"`
}
