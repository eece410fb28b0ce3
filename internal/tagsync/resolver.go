package tagsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/InverskProperty/propsk-sub012/internal/logger"
	"github.com/InverskProperty/propsk-sub012/internal/metrics"
)

// Resolver turns stored tag references into external IDs and applies or
// removes tags on properties. It is safe for concurrent use when the
// underlying Client is.
type Resolver struct {
	client Client
	log    *logger.Logger
}

// NewResolver creates a Resolver backed by client.
func NewResolver(client Client, log *logger.Logger) *Resolver {
	return &Resolver{
		client: client,
		log:    log.WithComponent("tag_resolver"),
	}
}

// Resolve returns the tag for ref. Opaque IDs are returned as-is without a
// remote call; anything else is treated as a tag name and looked up or
// created. All failures wrap ErrResolution.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*Tag, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty tag reference", ErrResolution)
	}
	if IsOpaqueID(ref) {
		return &Tag{ID: ref}, nil
	}

	start := time.Now()
	tag, err := r.client.EnsureTag(ctx, ref)
	metrics.ObserveTagOperation("resolve", err, time.Since(start))
	if err != nil {
		r.log.Error("Tag resolution failed", err, map[string]interface{}{
			"tag_name": ref,
		})
		return nil, fmt.Errorf("%w: %q: %w", ErrResolution, ref, err)
	}
	if tag == nil || !IsOpaqueID(tag.ID) {
		id := ""
		if tag != nil {
			id = tag.ID
		}
		return nil, fmt.Errorf("%w: %q resolved to unusable id %q", ErrResolution, ref, id)
	}

	r.log.Info("Tag resolved", map[string]interface{}{
		"tag_name": ref,
		"tag_id":   tag.ID,
	})
	return tag, nil
}

// Apply attaches tagID to the property identified by propertyRef.
func (r *Resolver) Apply(ctx context.Context, propertyRef, tagID string) error {
	if err := checkRefs(propertyRef, tagID); err != nil {
		return err
	}

	start := time.Now()
	err := r.client.ApplyTag(ctx, propertyRef, tagID)
	metrics.ObserveTagOperation("apply", err, time.Since(start))
	return err
}

// Remove detaches tagID from the property identified by propertyRef.
func (r *Resolver) Remove(ctx context.Context, propertyRef, tagID string) error {
	if err := checkRefs(propertyRef, tagID); err != nil {
		return err
	}

	start := time.Now()
	err := r.client.RemoveTag(ctx, propertyRef, tagID)
	metrics.ObserveTagOperation("remove", err, time.Since(start))
	return err
}

// ListTags returns every tag on the platform.
func (r *Resolver) ListTags(ctx context.Context) ([]Tag, error) {
	start := time.Now()
	tags, err := r.client.ListTags(ctx)
	metrics.ObserveTagOperation("list", err, time.Since(start))
	return tags, err
}

func checkRefs(propertyRef, tagID string) error {
	if propertyRef == "" {
		return errors.New("property external reference is required")
	}
	if !IsOpaqueID(tagID) {
		return fmt.Errorf("%w: %q is not an external tag id", ErrResolution, tagID)
	}
	return nil
}
