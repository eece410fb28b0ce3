package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/InverskProperty/propsk-sub012/internal/logger"
	"github.com/InverskProperty/propsk-sub012/internal/metrics"
	"github.com/InverskProperty/propsk-sub012/internal/models"
	"github.com/InverskProperty/propsk-sub012/internal/repository"
)

// AssignmentService defines the assignment engine: attaching properties to
// portfolios and blocks and keeping their external tags in step.
type AssignmentService interface {
	// AssignPropertiesToPortfolio creates, reactivates or skips a primary
	// assignment per property and applies the effective tag.
	// Returns ErrPortfolioNotFound or ErrPortfolioInactive before any mutation.
	// Per-property failures are reported in the result, never as an error.
	AssignPropertiesToPortfolio(ctx context.Context, portfolioID int64, propertyIDs []int64, actor int64) (*BatchResult, error)

	// AssignPropertiesToBlock is AssignPropertiesToPortfolio with a block.
	// Existing assignments in the portfolio are re-pointed in place.
	// Returns ErrCapacityExceeded when the new entrants do not fit; nothing is assigned then.
	AssignPropertiesToBlock(ctx context.Context, portfolioID, blockID int64, propertyIDs []int64, actor int64) (*BatchResult, error)

	// MovePropertiesBetweenBlocks re-points assignments found in fromBlockID
	// at toBlockID and marks them pending. Nil means portfolio-only.
	// Returns ErrSameBlock when source and target are equal.
	MovePropertiesBetweenBlocks(ctx context.Context, portfolioID int64, fromBlockID, toBlockID *int64, propertyIDs []int64, actor int64) (*BatchResult, error)

	// RemovePropertyFromPortfolio removes the portfolio's effective tag from the
	// property and deactivates the assignment. A failed external removal is
	// returned and leaves the assignment active.
	RemovePropertyFromPortfolio(ctx context.Context, propertyID, portfolioID, actor int64) error

	// Stats summarises active assignments, for one portfolio or all when nil.
	Stats(ctx context.Context, portfolioID *int64) (*models.AssignmentStats, error)
}

type assignmentService struct {
	store  *repository.Store
	syncer *tagSyncer
	log    *logger.Logger
}

// NewAssignmentService creates a new instance of AssignmentService.
// tags may be nil when tagging is disabled.
func NewAssignmentService(store *repository.Store, tags TagResolver, log *logger.Logger) AssignmentService {
	log = log.WithComponent("assignment_service")
	return &assignmentService{
		store:  store,
		syncer: newTagSyncer(store, tags, log),
		log:    log,
	}
}

func (s *assignmentService) AssignPropertiesToPortfolio(ctx context.Context, portfolioID int64, propertyIDs []int64, actor int64) (*BatchResult, error) {
	if len(propertyIDs) == 0 {
		return nil, ErrNoProperties
	}
	portfolio, err := s.activePortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	s.log.Info("Assigning properties to portfolio", map[string]interface{}{
		"portfolio_id": portfolio.ID,
		"count":        len(propertyIDs),
		"actor":        actor,
	})

	result := newBatchResult()
	for _, propertyID := range dedupe(propertyIDs) {
		prop, err := s.store.Properties.FindByID(ctx, propertyID)
		if err != nil {
			result.addError("property %d: %v", propertyID, err)
			continue
		}
		if prop == nil {
			result.addError("property %d: not found", propertyID)
			continue
		}

		assignment, created, err := s.upsert(ctx, propertyID, portfolioID, nil, actor)
		if err != nil {
			result.addError("property %d: %v", propertyID, err)
			continue
		}
		s.clearLegacyPointer(ctx, prop, portfolioID)
		if !created {
			result.Skipped++
			continue
		}
		result.Assigned++

		s.syncInto(ctx, result, assignment, actor)
	}

	s.report("assign_portfolio", result)
	return result, nil
}

func (s *assignmentService) AssignPropertiesToBlock(ctx context.Context, portfolioID, blockID int64, propertyIDs []int64, actor int64) (*BatchResult, error) {
	if len(propertyIDs) == 0 {
		return nil, ErrNoProperties
	}
	if _, err := s.activePortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}
	block, err := s.activeBlock(ctx, portfolioID, blockID)
	if err != nil {
		return nil, err
	}

	ids := dedupe(propertyIDs)
	if err := s.checkCapacity(ctx, block, portfolioID, ids); err != nil {
		return nil, err
	}

	s.log.Info("Assigning properties to block", map[string]interface{}{
		"portfolio_id": portfolioID,
		"block_id":     blockID,
		"count":        len(ids),
		"actor":        actor,
	})

	result := newBatchResult()
	for _, propertyID := range ids {
		prop, err := s.store.Properties.FindByID(ctx, propertyID)
		if err != nil {
			result.addError("property %d: %v", propertyID, err)
			continue
		}
		if prop == nil {
			result.addError("property %d: not found", propertyID)
			continue
		}

		assignment, created, err := s.upsert(ctx, propertyID, portfolioID, &blockID, actor)
		if err != nil {
			result.addError("property %d: %v", propertyID, err)
			continue
		}
		s.clearLegacyPointer(ctx, prop, portfolioID)
		if !created {
			if assignment.InBlock(&blockID) {
				result.Skipped++
				continue
			}
			// Already in the portfolio under another block or none: re-point it.
			assignment.BlockID = &blockID
			assignment.MarkPending(actor, s.syncer.now())
			if err := s.store.Assignments.Update(ctx, assignment); err != nil {
				result.addError("property %d: %v", propertyID, err)
				continue
			}
		}
		result.Assigned++

		s.syncInto(ctx, result, assignment, actor)
	}

	s.report("assign_block", result)
	return result, nil
}

func (s *assignmentService) MovePropertiesBetweenBlocks(ctx context.Context, portfolioID int64, fromBlockID, toBlockID *int64, propertyIDs []int64, actor int64) (*BatchResult, error) {
	if sameBlock(fromBlockID, toBlockID) {
		return nil, ErrSameBlock
	}
	if len(propertyIDs) == 0 {
		return nil, ErrNoProperties
	}
	if _, err := s.activePortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}
	if fromBlockID != nil {
		from, err := s.store.Blocks.FindByID(ctx, *fromBlockID)
		if err != nil {
			return nil, fmt.Errorf("failed to load source block: %w", err)
		}
		if from == nil {
			return nil, fmt.Errorf("%w: %d", ErrBlockNotFound, *fromBlockID)
		}
		if from.PortfolioID != portfolioID {
			return nil, fmt.Errorf("%w: block %d", ErrBlockPortfolioMismatch, from.ID)
		}
	}

	ids := dedupe(propertyIDs)
	if toBlockID != nil {
		to, err := s.activeBlock(ctx, portfolioID, *toBlockID)
		if err != nil {
			return nil, err
		}
		if err := s.checkCapacity(ctx, to, portfolioID, ids); err != nil {
			return nil, err
		}
	}

	result := newBatchResult()
	for _, propertyID := range ids {
		assignment, err := s.store.Assignments.FindActive(ctx, propertyID, portfolioID, models.AssignmentKindPrimary)
		if err != nil {
			result.addError("property %d: %v", propertyID, err)
			continue
		}
		if assignment == nil || !assignment.InBlock(fromBlockID) {
			result.addError("property %d: no active assignment in source", propertyID)
			continue
		}

		assignment.BlockID = toBlockID
		assignment.MarkPending(actor, s.syncer.now())
		if err := s.store.Assignments.Update(ctx, assignment); err != nil {
			result.addError("property %d: %v", propertyID, err)
			continue
		}
		result.Assigned++
	}

	s.log.Info("Moved properties between blocks", map[string]interface{}{
		"portfolio_id": portfolioID,
		"from_block":   fromBlockID,
		"to_block":     toBlockID,
		"summary":      result.Summary(),
	})
	s.report("move", result)
	return result, nil
}

func (s *assignmentService) RemovePropertyFromPortfolio(ctx context.Context, propertyID, portfolioID, actor int64) error {
	portfolio, err := s.store.Portfolios.FindByID(ctx, portfolioID)
	if err != nil {
		return fmt.Errorf("failed to load portfolio: %w", err)
	}
	if portfolio == nil {
		return fmt.Errorf("%w: %d", ErrPortfolioNotFound, portfolioID)
	}
	prop, err := s.store.Properties.FindByID(ctx, propertyID)
	if err != nil {
		return fmt.Errorf("failed to load property: %w", err)
	}
	if prop == nil {
		return fmt.Errorf("%w: %d", ErrPropertyNotFound, propertyID)
	}

	assignment, err := s.store.Assignments.FindActive(ctx, propertyID, portfolioID, models.AssignmentKindPrimary)
	if err != nil {
		return fmt.Errorf("failed to load assignment: %w", err)
	}
	if assignment == nil {
		return fmt.Errorf("%w: property %d in portfolio %d", ErrAssignmentNotFound, propertyID, portfolioID)
	}

	if err := s.removeExternalTags(ctx, prop, portfolio, assignment, actor); err != nil {
		s.log.Error("External tag removal failed, assignment kept", err, map[string]interface{}{
			"property_id":  propertyID,
			"portfolio_id": portfolioID,
		})
		return err
	}

	assignment.IsActive = false
	assignment.UpdatedBy = actor
	if err := s.store.Assignments.Update(ctx, assignment); err != nil {
		return fmt.Errorf("failed to deactivate assignment: %w", err)
	}
	s.clearLegacyPointer(ctx, prop, portfolioID)

	s.log.Info("Property removed from portfolio", map[string]interface{}{
		"property_id":  propertyID,
		"portfolio_id": portfolioID,
		"actor":        actor,
	})
	metrics.AddAssignmentOutcome("remove", metrics.ResultSuccess, 1)
	return nil
}

// removeExternalTags strips every tag this assignment could have put on the
// property: the portfolio tag and, when set, the block tag. Stored tag names
// are resolved to IDs first; a resolution failure stops the removal.
func (s *assignmentService) removeExternalTags(ctx context.Context, prop *models.Property, portfolio *models.Portfolio, a *models.Assignment, actor int64) error {
	if !s.syncer.enabled() || !prop.HasExternalRef() {
		return nil
	}

	tagID, err := s.syncer.appliedPortfolioTag(ctx, portfolio, actor)
	if err != nil {
		return err
	}
	if tagID != "" {
		if err := s.syncer.removeTag(ctx, prop, portfolio.ID, nil, tagID, actor); err != nil {
			return err
		}
	}
	if a.BlockID == nil {
		return nil
	}
	block, err := s.store.Blocks.FindByID(ctx, *a.BlockID)
	if err != nil {
		return fmt.Errorf("failed to load block: %w", err)
	}
	if block == nil {
		return nil
	}
	tagID, err = s.syncer.appliedBlockTag(ctx, block, actor)
	if err != nil || tagID == "" {
		return err
	}
	return s.syncer.removeTag(ctx, prop, portfolio.ID, &block.ID, tagID, actor)
}

func (s *assignmentService) Stats(ctx context.Context, portfolioID *int64) (*models.AssignmentStats, error) {
	stats, err := s.store.Assignments.Stats(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute assignment stats: %w", err)
	}
	return stats, nil
}

// upsert returns the active assignment for (property, portfolio, primary).
// created is false when one already existed. Otherwise the latest inactive row
// is reactivated, or a new row inserted. A uniqueness violation on insert
// means a concurrent caller won, and falls back to the lookup path.
func (s *assignmentService) upsert(ctx context.Context, propertyID, portfolioID int64, blockID *int64, actor int64) (*models.Assignment, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.store.Assignments.FindActive(ctx, propertyID, portfolioID, models.AssignmentKindPrimary)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}

		inactive, err := s.store.Assignments.FindLatestInactive(ctx, propertyID, portfolioID, models.AssignmentKindPrimary)
		if err != nil {
			return nil, false, err
		}
		if inactive != nil {
			inactive.IsActive = true
			inactive.BlockID = blockID
			inactive.LastSyncedAt = nil
			inactive.MarkPending(actor, s.syncer.now())
			err = s.store.Assignments.Update(ctx, inactive)
			if err == nil {
				s.log.Debug("Reactivated assignment", map[string]interface{}{
					"assignment_id": inactive.ID,
					"property_id":   propertyID,
				})
				return inactive, true, nil
			}
		} else {
			a := &models.Assignment{
				PropertyID:  propertyID,
				PortfolioID: portfolioID,
				BlockID:     blockID,
				Kind:        models.AssignmentKindPrimary,
				SyncStatus:  models.SyncStatusPending,
				IsActive:    true,
				CreatedBy:   actor,
				UpdatedBy:   actor,
			}
			err = s.store.Assignments.Create(ctx, a)
			if err == nil {
				return a, true, nil
			}
		}

		if !errors.Is(err, repository.ErrDuplicateAssignment) {
			return nil, false, err
		}
		s.log.Warn("Concurrent assignment detected, retrying", map[string]interface{}{
			"property_id":  propertyID,
			"portfolio_id": portfolioID,
		})
	}
	return nil, false, repository.ErrDuplicateAssignment
}

// syncInto runs the sync path for one assignment and folds the outcome into result.
func (s *assignmentService) syncInto(ctx context.Context, result *BatchResult, a *models.Assignment, actor int64) {
	outcome, err := s.syncer.syncAssignment(ctx, a, actor)
	switch outcome {
	case outcomeSynced:
		result.Synced++
	case outcomeSkipped:
		if err != nil {
			result.addWarning("property %d: sync skipped: %v", a.PropertyID, err)
		}
	case outcomeFailed:
		result.addError("property %d: sync failed: %v", a.PropertyID, err)
	}
}

// clearLegacyPointer drops the property's direct portfolio reference when it
// points at portfolioID. Failures are logged only.
func (s *assignmentService) clearLegacyPointer(ctx context.Context, prop *models.Property, portfolioID int64) {
	if prop.PortfolioID == nil || *prop.PortfolioID != portfolioID {
		return
	}
	if err := s.store.Properties.SetLegacyPortfolio(ctx, prop.ID, nil); err != nil {
		s.log.Warn("Failed to clear legacy portfolio reference", map[string]interface{}{
			"property_id": prop.ID,
			"error":       err.Error(),
		})
		return
	}
	prop.PortfolioID = nil
}

// checkCapacity rejects the request when the properties not yet in the block
// would take it over capacity. Unknown properties are left to the per-item
// errors and do not count.
func (s *assignmentService) checkCapacity(ctx context.Context, block *models.Block, portfolioID int64, propertyIDs []int64) error {
	if block.Capacity == nil {
		return nil
	}

	entrants := 0
	for _, propertyID := range propertyIDs {
		prop, err := s.store.Properties.FindByID(ctx, propertyID)
		if err != nil {
			return fmt.Errorf("failed to load property: %w", err)
		}
		if prop == nil {
			continue
		}
		existing, err := s.store.Assignments.FindActive(ctx, propertyID, portfolioID, models.AssignmentKindPrimary)
		if err != nil {
			return fmt.Errorf("failed to load assignment: %w", err)
		}
		if existing == nil || !existing.InBlock(&block.ID) {
			entrants++
		}
	}
	if entrants == 0 {
		return nil
	}

	count, err := s.store.Assignments.CountActiveInBlock(ctx, block.ID)
	if err != nil {
		return fmt.Errorf("failed to count block assignments: %w", err)
	}
	if count+entrants > *block.Capacity {
		return fmt.Errorf("%w: block %d has room for %d, %d requested",
			ErrCapacityExceeded, block.ID, max(*block.Capacity-count, 0), entrants)
	}
	return nil
}

func (s *assignmentService) activePortfolio(ctx context.Context, portfolioID int64) (*models.Portfolio, error) {
	return loadActivePortfolio(ctx, s.store, portfolioID)
}

func (s *assignmentService) activeBlock(ctx context.Context, portfolioID, blockID int64) (*models.Block, error) {
	block, err := s.store.Blocks.FindByID(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("failed to load block: %w", err)
	}
	if block == nil {
		return nil, fmt.Errorf("%w: %d", ErrBlockNotFound, blockID)
	}
	if block.PortfolioID != portfolioID {
		return nil, fmt.Errorf("%w: block %d", ErrBlockPortfolioMismatch, blockID)
	}
	if !block.IsActive {
		return nil, fmt.Errorf("%w: %d", ErrBlockInactive, blockID)
	}
	return block, nil
}

func (s *assignmentService) report(operation string, result *BatchResult) {
	metrics.AddAssignmentOutcome(operation, "assigned", result.Assigned)
	metrics.AddAssignmentOutcome(operation, "synced", result.Synced)
	metrics.AddAssignmentOutcome(operation, "skipped", result.Skipped)
	metrics.AddAssignmentOutcome(operation, "error", len(result.Errors))

	s.log.Info("Assignment batch complete", map[string]interface{}{
		"operation": operation,
		"summary":   result.Summary(),
	})
}

func loadActivePortfolio(ctx context.Context, store *repository.Store, portfolioID int64) (*models.Portfolio, error) {
	portfolio, err := store.Portfolios.FindByID(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}
	if portfolio == nil {
		return nil, fmt.Errorf("%w: %d", ErrPortfolioNotFound, portfolioID)
	}
	if !portfolio.IsActive {
		return nil, fmt.Errorf("%w: %d", ErrPortfolioInactive, portfolioID)
	}
	return portfolio, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func sameBlock(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
