package models

import (
	"time"
)

// Property is the subset of a rental property the assignment engine reads.
// ExternalRef is the property's identifier on the tagging platform; properties
// without one cannot be tagged.
// PortfolioID is the legacy single-portfolio pointer. It is never read as the
// source of truth and is cleared once the property is managed through assignments.
type Property struct {
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	ExternalRef *string   `json:"externalRef,omitempty"`
	PortfolioID *int64    `json:"portfolioId,omitempty"`
	Name        string    `json:"name"`
	ID          int64     `json:"id"`
}

// HasExternalRef reports whether the property can be tagged externally.
func (p *Property) HasExternalRef() bool {
	return p.ExternalRef != nil && *p.ExternalRef != ""
}
