package tagsync

import (
	"context"
	"errors"
)

var (
	// ErrRequest wraps any non-idempotent failure returned by the tagging API.
	ErrRequest = errors.New("tag api request failed")

	// ErrResolution is returned when a tag name cannot be turned into an external ID.
	ErrResolution = errors.New("tag resolution failed")
)

// Tag is a tag as known to the external platform.
type Tag struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

// Client is the external tagging API.
type Client interface {
	// EnsureTag returns the tag with the given name, creating it when absent.
	EnsureTag(ctx context.Context, name string) (*Tag, error)

	// GetTag returns nil, nil when the tag does not exist.
	GetTag(ctx context.Context, id string) (*Tag, error)

	ListTags(ctx context.Context) ([]Tag, error)

	// ApplyTag succeeds when the tag is already applied.
	ApplyTag(ctx context.Context, propertyRef, tagID string) error

	// RemoveTag succeeds when the tag is not applied.
	RemoveTag(ctx context.Context, propertyRef, tagID string) error
}
