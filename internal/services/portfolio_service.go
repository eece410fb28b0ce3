package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/InverskProperty/propsk-sub012/internal/logger"
	"github.com/InverskProperty/propsk-sub012/internal/models"
	"github.com/InverskProperty/propsk-sub012/internal/repository"
	"github.com/InverskProperty/propsk-sub012/internal/tagsync"
)

// PortfolioDeletion reports what a portfolio deletion touched.
type PortfolioDeletion struct {
	PropertiesAffected int  `json:"propertiesAffected"`
	BlocksAffected     int  `json:"blocksAffected"`
	Hard               bool `json:"hard"`
}

// PortfolioService covers portfolio-wide maintenance around the assignment engine.
type PortfolioService interface {
	// AdoptExternalTags creates a shared portfolio for every portfolio-namespaced
	// external tag not yet linked, and refreshes the stored name of linked ones.
	AdoptExternalTags(ctx context.Context, actor int64) (*AdoptResult, error)

	// DeletePortfolio soft-deletes by default: the portfolio, its blocks and
	// its assignments are deactivated. A hard delete first removes the
	// portfolio's tags from every assigned property and aborts on any failure,
	// then deletes the rows.
	DeletePortfolio(ctx context.Context, portfolioID int64, hard bool, actor int64) (*PortfolioDeletion, error)

	// RecalculateAnalytics stores a statistics snapshot per active portfolio.
	// It keeps going past failures and returns them joined.
	RecalculateAnalytics(ctx context.Context) (int, error)

	// MigrateTagNamesToIDs resolves every stored tag reference that is still a name.
	MigrateTagNamesToIDs(ctx context.Context, actor int64) (*MigrationResult, error)

	// MigrateLegacyReferences turns direct property->portfolio pointers into
	// pending assignments and clears the pointers.
	MigrateLegacyReferences(ctx context.Context, actor int64) (*MigrationResult, error)
}

type portfolioService struct {
	store  *repository.Store
	syncer *tagSyncer
	log    *logger.Logger
}

// NewPortfolioService creates a new instance of PortfolioService.
// tags may be nil when tagging is disabled.
func NewPortfolioService(store *repository.Store, tags TagResolver, log *logger.Logger) PortfolioService {
	log = log.WithComponent("portfolio_service")
	return &portfolioService{
		store:  store,
		syncer: newTagSyncer(store, tags, log),
		log:    log,
	}
}

func (s *portfolioService) AdoptExternalTags(ctx context.Context, actor int64) (*AdoptResult, error) {
	if !s.syncer.enabled() {
		return nil, ErrIntegrationDisabled
	}

	started := s.syncer.now()
	tags, err := s.syncer.tags.ListTags(ctx)
	if err != nil {
		s.syncer.record(ctx, &models.SyncLog{Operation: models.SyncOperationAdopt, ActorID: actor, StartedAt: started}, err)
		return nil, integrationError(err)
	}

	result := &AdoptResult{Errors: []string{}}
	for _, tag := range tags {
		if !strings.HasPrefix(strings.ToUpper(tag.Name), strings.ToUpper(tagsync.PrefixPortfolio)) || !tagsync.IsOpaqueID(tag.ID) {
			result.Skipped++
			continue
		}

		existing, err := s.store.Portfolios.FindByExternalTagID(ctx, tag.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("tag %s: %v", tag.ID, err))
			continue
		}
		if existing != nil {
			if existing.ExternalTagName == tag.Name {
				result.Skipped++
				continue
			}
			existing.ExternalTagName = tag.Name
			existing.UpdatedBy = actor
			if err := s.store.Portfolios.Update(ctx, existing); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("tag %s: %v", tag.ID, err))
				continue
			}
			result.Updated++
			continue
		}

		now := s.syncer.now()
		portfolio := &models.Portfolio{
			Name:            tag.Name,
			Description:     tag.Description,
			ExternalTagID:   tag.ID,
			ExternalTagName: tag.Name,
			SyncStatus:      models.SyncStatusSynced,
			LastSyncedAt:    &now,
			IsActive:        true,
			CreatedBy:       actor,
			UpdatedBy:       actor,
		}
		err = s.store.Portfolios.Create(ctx, portfolio)
		s.syncer.record(ctx, &models.SyncLog{
			PortfolioID: &portfolio.ID,
			Operation:   models.SyncOperationAdopt,
			TagID:       tag.ID,
			ActorID:     actor,
			StartedAt:   now,
		}, err)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("tag %s: %v", tag.ID, err))
			continue
		}
		result.Created++
	}

	s.log.Info("External tags adopted", map[string]interface{}{
		"created": result.Created,
		"updated": result.Updated,
		"skipped": result.Skipped,
		"errors":  len(result.Errors),
	})
	return result, nil
}

func (s *portfolioService) DeletePortfolio(ctx context.Context, portfolioID int64, hard bool, actor int64) (*PortfolioDeletion, error) {
	portfolio, err := s.store.Portfolios.FindByID(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}
	if portfolio == nil {
		return nil, fmt.Errorf("%w: %d", ErrPortfolioNotFound, portfolioID)
	}

	assignments, err := s.store.Assignments.FindActiveByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}
	blocks, err := s.store.Blocks.FindActiveByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load blocks: %w", err)
	}
	result := &PortfolioDeletion{
		PropertiesAffected: len(assignments),
		BlocksAffected:     len(blocks),
		Hard:               hard,
	}

	if hard {
		if err := s.stripTags(ctx, portfolio, blocks, assignments, actor); err != nil {
			return nil, err
		}
		if err := s.clearLegacyPointers(ctx, portfolioID); err != nil {
			return nil, err
		}
		if err := s.store.Assignments.DeleteByPortfolio(ctx, portfolioID); err != nil {
			return nil, err
		}
		if err := s.store.Blocks.DeleteByPortfolio(ctx, portfolioID); err != nil {
			return nil, err
		}
		if err := s.store.Portfolios.Delete(ctx, portfolioID); err != nil {
			return nil, err
		}
	} else {
		for i := range assignments {
			a := &assignments[i]
			a.IsActive = false
			a.UpdatedBy = actor
			if err := s.store.Assignments.Update(ctx, a); err != nil {
				return nil, fmt.Errorf("failed to deactivate assignment %d: %w", a.ID, err)
			}
		}
		for i := range blocks {
			b := &blocks[i]
			b.IsActive = false
			b.UpdatedBy = actor
			if err := s.store.Blocks.Update(ctx, b); err != nil {
				return nil, fmt.Errorf("failed to deactivate block %d: %w", b.ID, err)
			}
		}
		portfolio.IsActive = false
		portfolio.UpdatedBy = actor
		if err := s.store.Portfolios.Update(ctx, portfolio); err != nil {
			return nil, fmt.Errorf("failed to deactivate portfolio: %w", err)
		}
	}

	s.log.Info("Portfolio deleted", map[string]interface{}{
		"portfolio_id": portfolioID,
		"hard":         hard,
		"properties":   result.PropertiesAffected,
		"blocks":       result.BlocksAffected,
		"actor":        actor,
	})
	return result, nil
}

// stripTags removes the portfolio and block tags from every assigned property.
// Stored tag names are resolved on first use. The first failure aborts so no
// rows are deleted while tags remain applied.
func (s *portfolioService) stripTags(ctx context.Context, portfolio *models.Portfolio, blocks []models.Block, assignments []models.Assignment, actor int64) error {
	if !s.syncer.enabled() {
		return nil
	}

	byID := make(map[int64]*models.Block, len(blocks))
	for i := range blocks {
		byID[blocks[i].ID] = &blocks[i]
	}

	for _, a := range assignments {
		prop, err := s.store.Properties.FindByID(ctx, a.PropertyID)
		if err != nil {
			return fmt.Errorf("failed to load property %d: %w", a.PropertyID, err)
		}
		if prop == nil || !prop.HasExternalRef() {
			continue
		}

		tagID, err := s.syncer.appliedPortfolioTag(ctx, portfolio, actor)
		if err != nil {
			return err
		}
		if tagID != "" {
			if err := s.syncer.removeTag(ctx, prop, portfolio.ID, nil, tagID, actor); err != nil {
				return fmt.Errorf("property %d: %w", prop.ID, err)
			}
		}

		if a.BlockID == nil || byID[*a.BlockID] == nil {
			continue
		}
		tagID, err = s.syncer.appliedBlockTag(ctx, byID[*a.BlockID], actor)
		if err != nil {
			return err
		}
		if tagID != "" {
			if err := s.syncer.removeTag(ctx, prop, portfolio.ID, a.BlockID, tagID, actor); err != nil {
				return fmt.Errorf("property %d: %w", prop.ID, err)
			}
		}
	}
	return nil
}

func (s *portfolioService) clearLegacyPointers(ctx context.Context, portfolioID int64) error {
	props, err := s.store.Properties.FindWithLegacyPortfolio(ctx)
	if err != nil {
		return fmt.Errorf("failed to load legacy references: %w", err)
	}
	for _, p := range props {
		if *p.PortfolioID != portfolioID {
			continue
		}
		if err := s.store.Properties.SetLegacyPortfolio(ctx, p.ID, nil); err != nil {
			return fmt.Errorf("failed to clear legacy reference on property %d: %w", p.ID, err)
		}
	}
	return nil
}

func (s *portfolioService) RecalculateAnalytics(ctx context.Context) (int, error) {
	portfolios, err := s.store.Portfolios.FindAllActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list portfolios: %w", err)
	}

	saved := 0
	var errs []error
	for _, p := range portfolios {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		id := p.ID
		stats, err := s.store.Assignments.Stats(ctx, &id)
		if err == nil {
			err = s.store.Analytics.Save(ctx, stats)
		}
		if err != nil {
			s.log.Error("Failed to recalculate portfolio analytics", err, map[string]interface{}{
				"portfolio_id": p.ID,
			})
			errs = append(errs, fmt.Errorf("portfolio %d: %w", p.ID, err))
			continue
		}
		saved++
	}

	s.log.Info("Portfolio analytics recalculated", map[string]interface{}{
		"portfolios": len(portfolios),
		"saved":      saved,
	})
	return saved, errors.Join(errs...)
}

func (s *portfolioService) MigrateTagNamesToIDs(ctx context.Context, actor int64) (*MigrationResult, error) {
	if !s.syncer.enabled() {
		return nil, ErrIntegrationDisabled
	}

	result := newMigrationResult()
	portfolios, err := s.store.Portfolios.FindAllActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	for i := range portfolios {
		p := &portfolios[i]
		if !tagsync.NeedsResolution(p.ExternalTagID) {
			result.Skipped++
			continue
		}
		if _, err := s.syncer.resolvePortfolioTag(ctx, p, actor); err != nil {
			result.addError("portfolio %d: %v", p.ID, err)
			continue
		}
		result.Migrated++
	}

	blocks, err := s.store.Blocks.FindNeedingSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	for i := range blocks {
		b := &blocks[i]
		if !tagsync.NeedsResolution(b.ExternalTagID) {
			continue
		}
		if _, err := s.syncer.resolveBlockTag(ctx, b, actor); err != nil {
			result.addError("block %d: %v", b.ID, err)
			continue
		}
		result.Migrated++
	}

	s.log.Info("Tag name migration complete", map[string]interface{}{
		"summary": result.Summary(),
	})
	return result, nil
}

func (s *portfolioService) MigrateLegacyReferences(ctx context.Context, actor int64) (*MigrationResult, error) {
	props, err := s.store.Properties.FindWithLegacyPortfolio(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load legacy references: %w", err)
	}

	result := newMigrationResult()
	for _, p := range props {
		portfolioID := *p.PortfolioID
		existing, err := s.store.Assignments.FindActive(ctx, p.ID, portfolioID, models.AssignmentKindPrimary)
		if err != nil {
			result.addError("property %d: %v", p.ID, err)
			continue
		}

		if existing == nil {
			a := &models.Assignment{
				PropertyID:  p.ID,
				PortfolioID: portfolioID,
				Kind:        models.AssignmentKindPrimary,
				SyncStatus:  models.SyncStatusPending,
				Notes:       "Migrated from legacy portfolio reference",
				IsActive:    true,
				CreatedBy:   actor,
				UpdatedBy:   actor,
			}
			err := s.store.Assignments.Create(ctx, a)
			if err != nil && !errors.Is(err, repository.ErrDuplicateAssignment) {
				result.addError("property %d: %v", p.ID, err)
				continue
			}
			if err == nil {
				result.Migrated++
			} else {
				result.Skipped++
			}
		} else {
			result.Skipped++
		}

		if err := s.store.Properties.SetLegacyPortfolio(ctx, p.ID, nil); err != nil {
			result.addError("property %d: %v", p.ID, err)
		}
	}

	s.log.Info("Legacy reference migration complete", map[string]interface{}{
		"summary": result.Summary(),
	})
	return result, nil
}
