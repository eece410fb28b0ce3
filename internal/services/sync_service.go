package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/InverskProperty/propsk-sub012/internal/logger"
	"github.com/InverskProperty/propsk-sub012/internal/models"
	"github.com/InverskProperty/propsk-sub012/internal/repository"
	"github.com/InverskProperty/propsk-sub012/internal/tagsync"
)

// SyncService replays the tag sync path for records left pending or failed.
type SyncService interface {
	// SyncAssignment applies the effective tag for one assignment.
	SyncAssignment(ctx context.Context, assignmentID, actor int64) (*SyncResult, error)

	// SyncPortfolio resolves the portfolio tag, then syncs every active
	// assignment of the portfolio.
	SyncPortfolio(ctx context.Context, portfolioID, actor int64) (*SyncResult, error)

	// SyncBlock resolves the block tag, then syncs every active assignment in it.
	SyncBlock(ctx context.Context, blockID, actor int64) (*SyncResult, error)

	// SyncAllNeedingSync resolves name-shaped or missing tags on portfolios and
	// blocks, then syncs every active primary assignment that is pending or failed.
	SyncAllNeedingSync(ctx context.Context, actor int64) (*SyncResult, error)
}

type syncService struct {
	store  *repository.Store
	syncer *tagSyncer
	log    *logger.Logger
}

// NewSyncService creates a new instance of SyncService.
// tags may be nil when tagging is disabled.
func NewSyncService(store *repository.Store, tags TagResolver, log *logger.Logger) SyncService {
	log = log.WithComponent("sync_service")
	return &syncService{
		store:  store,
		syncer: newTagSyncer(store, tags, log),
		log:    log,
	}
}

func (s *syncService) SyncAssignment(ctx context.Context, assignmentID, actor int64) (*SyncResult, error) {
	a, err := s.store.Assignments.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	if a == nil || !a.IsActive {
		return nil, fmt.Errorf("%w: %d", ErrAssignmentNotFound, assignmentID)
	}

	result := newSyncResult()
	s.syncOne(ctx, result, a, actor)
	return result, nil
}

func (s *syncService) SyncPortfolio(ctx context.Context, portfolioID, actor int64) (*SyncResult, error) {
	portfolio, err := loadActivePortfolio(ctx, s.store, portfolioID)
	if err != nil {
		return nil, err
	}

	result := newSyncResult()
	if !s.syncer.enabled() {
		result.IntegrationOff = true
		return result, nil
	}

	wasResolved := isResolved(portfolio.ExternalTagID)
	if _, err := s.syncer.resolvePortfolioTag(ctx, portfolio, actor); err != nil {
		result.addError("portfolio %d: %v", portfolio.ID, err)
	} else if !wasResolved {
		result.TagsResolved++
	}

	assignments, err := s.store.Assignments.FindActiveByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}
	for i := range assignments {
		s.syncOne(ctx, result, &assignments[i], actor)
	}

	s.log.Info("Portfolio synced", map[string]interface{}{
		"portfolio_id": portfolioID,
		"message":      result.Message(),
	})
	return result, nil
}

func (s *syncService) SyncBlock(ctx context.Context, blockID, actor int64) (*SyncResult, error) {
	block, err := s.store.Blocks.FindByID(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("failed to load block: %w", err)
	}
	if block == nil {
		return nil, fmt.Errorf("%w: %d", ErrBlockNotFound, blockID)
	}
	if !block.IsActive {
		return nil, fmt.Errorf("%w: %d", ErrBlockInactive, blockID)
	}

	result := newSyncResult()
	if !s.syncer.enabled() {
		result.IntegrationOff = true
		return result, nil
	}

	wasResolved := isResolved(block.ExternalTagID)
	if _, err := s.syncer.resolveBlockTag(ctx, block, actor); err != nil {
		result.addError("block %d: %v", block.ID, err)
	} else if !wasResolved {
		result.TagsResolved++
	}

	assignments, err := s.store.Assignments.FindActiveByBlock(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}
	for i := range assignments {
		s.syncOne(ctx, result, &assignments[i], actor)
	}

	s.log.Info("Block synced", map[string]interface{}{
		"block_id": blockID,
		"message":  result.Message(),
	})
	return result, nil
}

func (s *syncService) SyncAllNeedingSync(ctx context.Context, actor int64) (*SyncResult, error) {
	result := newSyncResult()
	if !s.syncer.enabled() {
		result.IntegrationOff = true
		s.log.Info("Skipping reconciliation, integration disabled", nil)
		return result, nil
	}

	portfolios, err := s.store.Portfolios.FindNeedingSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find portfolios needing sync: %w", err)
	}
	for i := range portfolios {
		p := &portfolios[i]
		if isResolved(p.ExternalTagID) {
			continue
		}
		if _, err := s.syncer.resolvePortfolioTag(ctx, p, actor); err != nil {
			result.addError("portfolio %d: %v", p.ID, err)
			continue
		}
		result.TagsResolved++
	}

	blocks, err := s.store.Blocks.FindNeedingSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find blocks needing sync: %w", err)
	}
	for i := range blocks {
		b := &blocks[i]
		if isResolved(b.ExternalTagID) {
			continue
		}
		if _, err := s.syncer.resolveBlockTag(ctx, b, actor); err != nil {
			result.addError("block %d: %v", b.ID, err)
			continue
		}
		result.TagsResolved++
	}

	assignments, err := s.store.Assignments.FindNeedingSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find assignments needing sync: %w", err)
	}
	s.log.Info("Reconciling assignments", map[string]interface{}{
		"assignments": len(assignments),
		"portfolios":  len(portfolios),
		"blocks":      len(blocks),
	})
	for i := range assignments {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		s.syncOne(ctx, result, &assignments[i], actor)
	}

	s.log.Info("Reconciliation complete", map[string]interface{}{
		"message":       result.Message(),
		"tags_resolved": result.TagsResolved,
	})
	return result, nil
}

func (s *syncService) syncOne(ctx context.Context, result *SyncResult, a *models.Assignment, actor int64) {
	outcome, err := s.syncer.syncAssignment(ctx, a, actor)
	switch outcome {
	case outcomeSynced:
		result.Synced++
	case outcomeSkipped:
		result.Skipped++
		if errors.Is(err, ErrIntegrationDisabled) {
			result.IntegrationOff = true
		}
	case outcomeFailed:
		result.Failed++
		result.addError("assignment %d: %v", a.ID, err)
	}
}

func isResolved(tagRef string) bool {
	return tagsync.IsOpaqueID(tagRef)
}
