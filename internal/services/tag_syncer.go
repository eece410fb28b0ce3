package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/InverskProperty/propsk-sub012/internal/logger"
	"github.com/InverskProperty/propsk-sub012/internal/models"
	"github.com/InverskProperty/propsk-sub012/internal/repository"
	"github.com/InverskProperty/propsk-sub012/internal/tagsync"
)

// TagResolver is the tagging capability the services depend on.
// *tagsync.Resolver implements it. A nil TagResolver means the deployment has
// no tagging integration; sync paths then report a skip instead of failing.
type TagResolver interface {
	Resolve(ctx context.Context, ref string) (*tagsync.Tag, error)
	Apply(ctx context.Context, propertyRef, tagID string) error
	Remove(ctx context.Context, propertyRef, tagID string) error
	ListTags(ctx context.Context) ([]tagsync.Tag, error)
}

type syncOutcome int

const (
	outcomeSynced syncOutcome = iota
	outcomeSkipped
	outcomeFailed
)

var errNoExternalRef = errors.New("property has no external reference")

var timeNow = func() time.Time { return time.Now().UTC() }

// tagSyncer holds the sync path shared by every service: effective tag
// computation, on-demand tag provisioning and apply with status bookkeeping.
type tagSyncer struct {
	store *repository.Store
	tags  TagResolver
	log   *logger.Logger
	now   func() time.Time
}

func newTagSyncer(store *repository.Store, tags TagResolver, log *logger.Logger) *tagSyncer {
	return &tagSyncer{
		store: store,
		tags:  tags,
		log:   log,
		now:   timeNow,
	}
}

func (s *tagSyncer) enabled() bool {
	return s.tags != nil
}

// resolvePortfolioTag returns the portfolio's external tag ID. A missing tag is
// provisioned from the portfolio name and a name-shaped one is resolved; either
// way the ID is persisted so resolution happens once per portfolio.
func (s *tagSyncer) resolvePortfolioTag(ctx context.Context, p *models.Portfolio, actor int64) (string, error) {
	if tagsync.IsOpaqueID(p.ExternalTagID) {
		return p.ExternalTagID, nil
	}
	if !s.enabled() {
		return "", ErrIntegrationDisabled
	}

	name := firstNonEmpty(p.ExternalTagID, p.ExternalTagName, tagsync.PortfolioTagName(p.ID, p.Name))
	entry := &models.SyncLog{PortfolioID: &p.ID, Operation: models.SyncOperationResolve, ActorID: actor, StartedAt: s.now()}

	tag, err := s.tags.Resolve(ctx, name)
	if err != nil {
		s.record(ctx, entry, err)
		p.SyncStatus = models.SyncStatusFailed
		p.UpdatedBy = actor
		if uerr := s.store.Portfolios.Update(ctx, p); uerr != nil {
			s.log.Error("Failed to mark portfolio tag as failed", uerr, map[string]interface{}{
				"portfolio_id": p.ID,
			})
		}
		return "", integrationError(err)
	}
	entry.TagID = tag.ID
	s.record(ctx, entry, nil)

	now := s.now()
	p.ExternalTagID = tag.ID
	p.ExternalTagName = firstNonEmpty(tag.Name, name)
	p.SyncStatus = models.SyncStatusSynced
	p.LastSyncedAt = &now
	p.UpdatedBy = actor
	if err := s.store.Portfolios.Update(ctx, p); err != nil {
		return "", fmt.Errorf("failed to persist portfolio tag: %w", err)
	}

	s.log.Info("Portfolio tag resolved", map[string]interface{}{
		"portfolio_id": p.ID,
		"tag_name":     p.ExternalTagName,
		"tag_id":       tag.ID,
	})
	return tag.ID, nil
}

// resolveBlockTag is resolvePortfolioTag for blocks; block tag names derive
// from the block ID only.
func (s *tagSyncer) resolveBlockTag(ctx context.Context, b *models.Block, actor int64) (string, error) {
	if tagsync.IsOpaqueID(b.ExternalTagID) {
		return b.ExternalTagID, nil
	}
	if !s.enabled() {
		return "", ErrIntegrationDisabled
	}

	name := firstNonEmpty(b.ExternalTagID, b.ExternalTagName, tagsync.BlockTagName(b.ID))
	entry := &models.SyncLog{
		PortfolioID: &b.PortfolioID,
		BlockID:     &b.ID,
		Operation:   models.SyncOperationResolve,
		ActorID:     actor,
		StartedAt:   s.now(),
	}

	tag, err := s.tags.Resolve(ctx, name)
	if err != nil {
		s.record(ctx, entry, err)
		b.SyncStatus = models.SyncStatusFailed
		b.UpdatedBy = actor
		if uerr := s.store.Blocks.Update(ctx, b); uerr != nil {
			s.log.Error("Failed to mark block tag as failed", uerr, map[string]interface{}{
				"block_id": b.ID,
			})
		}
		return "", integrationError(err)
	}
	entry.TagID = tag.ID
	s.record(ctx, entry, nil)

	now := s.now()
	b.ExternalTagID = tag.ID
	b.ExternalTagName = firstNonEmpty(tag.Name, name)
	b.SyncStatus = models.SyncStatusSynced
	b.LastSyncedAt = &now
	b.UpdatedBy = actor
	if err := s.store.Blocks.Update(ctx, b); err != nil {
		return "", fmt.Errorf("failed to persist block tag: %w", err)
	}

	s.log.Info("Block tag resolved", map[string]interface{}{
		"block_id": b.ID,
		"tag_name": b.ExternalTagName,
		"tag_id":   tag.ID,
	})
	return tag.ID, nil
}

// appliedPortfolioTag returns the ID of the tag the portfolio may have put on
// its properties, or "" when it never had one. A stored name is resolved first.
func (s *tagSyncer) appliedPortfolioTag(ctx context.Context, p *models.Portfolio, actor int64) (string, error) {
	if !tagsync.NeedsResolution(p.ExternalTagID) {
		return p.ExternalTagID, nil
	}
	return s.resolvePortfolioTag(ctx, p, actor)
}

// appliedBlockTag is appliedPortfolioTag for blocks.
func (s *tagSyncer) appliedBlockTag(ctx context.Context, b *models.Block, actor int64) (string, error) {
	if !tagsync.NeedsResolution(b.ExternalTagID) {
		return b.ExternalTagID, nil
	}
	return s.resolveBlockTag(ctx, b, actor)
}

// effectiveTag returns the tag ID a property in this assignment should carry:
// the block's tag when a block is set, the portfolio's otherwise.
func (s *tagSyncer) effectiveTag(ctx context.Context, a *models.Assignment, actor int64) (string, error) {
	if a.BlockID != nil {
		b, err := s.store.Blocks.FindByID(ctx, *a.BlockID)
		if err != nil {
			return "", fmt.Errorf("failed to load block: %w", err)
		}
		if b == nil || b.PortfolioID != a.PortfolioID {
			return "", fmt.Errorf("%w: %d", ErrBlockNotFound, *a.BlockID)
		}
		if !b.IsActive {
			return "", fmt.Errorf("%w: %d", ErrBlockInactive, b.ID)
		}
		return s.resolveBlockTag(ctx, b, actor)
	}

	p, err := s.store.Portfolios.FindByID(ctx, a.PortfolioID)
	if err != nil {
		return "", fmt.Errorf("failed to load portfolio: %w", err)
	}
	if p == nil {
		return "", fmt.Errorf("%w: %d", ErrPortfolioNotFound, a.PortfolioID)
	}
	return s.resolvePortfolioTag(ctx, p, actor)
}

// syncAssignment applies the effective tag for a and records the outcome on
// the row. A skipped outcome comes with the reason as its error.
func (s *tagSyncer) syncAssignment(ctx context.Context, a *models.Assignment, actor int64) (syncOutcome, error) {
	if !a.IsActive || a.Kind != models.AssignmentKindPrimary {
		return outcomeSkipped, nil
	}
	if !s.enabled() {
		s.record(ctx, &models.SyncLog{
			PortfolioID: &a.PortfolioID,
			BlockID:     a.BlockID,
			PropertyID:  &a.PropertyID,
			Operation:   models.SyncOperationApply,
			ActorID:     actor,
			StartedAt:   s.now(),
		}, ErrIntegrationDisabled)
		return outcomeSkipped, ErrIntegrationDisabled
	}

	prop, err := s.store.Properties.FindByID(ctx, a.PropertyID)
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to load property: %w", err)
	}
	if prop == nil || !prop.HasExternalRef() {
		return outcomeSkipped, errNoExternalRef
	}

	tagID, err := s.effectiveTag(ctx, a, actor)
	if err != nil {
		s.markFailed(ctx, a, actor)
		return outcomeFailed, err
	}

	entry := &models.SyncLog{
		PortfolioID: &a.PortfolioID,
		BlockID:     a.BlockID,
		PropertyID:  &a.PropertyID,
		Operation:   models.SyncOperationApply,
		TagID:       tagID,
		ActorID:     actor,
		StartedAt:   s.now(),
	}
	err = s.tags.Apply(ctx, *prop.ExternalRef, tagID)
	s.record(ctx, entry, err)
	if err != nil {
		s.markFailed(ctx, a, actor)
		return outcomeFailed, integrationError(err)
	}

	now := s.now()
	a.SyncStatus = models.SyncStatusSynced
	a.LastSyncedAt = &now
	a.UpdatedBy = actor
	if err := s.store.Assignments.Update(ctx, a); err != nil {
		return outcomeFailed, fmt.Errorf("failed to record sync: %w", err)
	}
	return outcomeSynced, nil
}

// removeTag detaches tagID from the property. The error is returned as-is
// for the caller to treat as fatal.
func (s *tagSyncer) removeTag(ctx context.Context, prop *models.Property, portfolioID int64, blockID *int64, tagID string, actor int64) error {
	entry := &models.SyncLog{
		PortfolioID: &portfolioID,
		BlockID:     blockID,
		PropertyID:  &prop.ID,
		Operation:   models.SyncOperationRemove,
		TagID:       tagID,
		ActorID:     actor,
		StartedAt:   s.now(),
	}
	err := s.tags.Remove(ctx, *prop.ExternalRef, tagID)
	s.record(ctx, entry, err)
	if err != nil {
		return integrationError(err)
	}
	return nil
}

func (s *tagSyncer) markFailed(ctx context.Context, a *models.Assignment, actor int64) {
	now := s.now()
	a.SyncStatus = models.SyncStatusFailed
	a.LastSyncedAt = &now
	a.UpdatedBy = actor
	if err := s.store.Assignments.Update(ctx, a); err != nil {
		s.log.Error("Failed to mark assignment as failed", err, map[string]interface{}{
			"assignment_id": a.ID,
		})
	}
}

// record writes a sync log entry. Logging failures never fail the operation.
func (s *tagSyncer) record(ctx context.Context, entry *models.SyncLog, err error) {
	completed := s.now()
	entry.CompletedAt = &completed
	switch {
	case err == nil:
		entry.Status = models.SyncLogSuccess
	case errors.Is(err, ErrIntegrationDisabled):
		entry.Status = models.SyncLogSkipped
	default:
		entry.Status = models.SyncLogFailed
		entry.ErrorMessage = err.Error()
	}

	if cerr := s.store.SyncLogs.Create(ctx, entry); cerr != nil {
		s.log.Warn("Failed to write sync log", map[string]interface{}{
			"operation": entry.Operation,
			"error":     cerr.Error(),
		})
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
