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

// Block name length limits, after trimming.
const (
	MinBlockNameLength = 2
	MaxBlockNameLength = 255
)

// ReassignmentPolicy decides what happens to a deleted block's properties.
type ReassignmentPolicy string

const (
	// PolicyMoveToPortfolioOnly keeps the properties in the portfolio without a block.
	PolicyMoveToPortfolioOnly ReassignmentPolicy = "move-to-portfolio-only"
	// PolicyDeleteAssignments removes the properties from the portfolio.
	PolicyDeleteAssignments ReassignmentPolicy = "delete-assignments"
	// PolicyMoveToSpecificBlock moves the properties to a sibling block.
	PolicyMoveToSpecificBlock ReassignmentPolicy = "move-to-specific-block"
)

// ParseReassignmentPolicy validates s. Empty input yields PolicyMoveToPortfolioOnly.
func ParseReassignmentPolicy(s string) (ReassignmentPolicy, error) {
	switch p := ReassignmentPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyMoveToPortfolioOnly, nil
	case PolicyMoveToPortfolioOnly, PolicyDeleteAssignments, PolicyMoveToSpecificBlock:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}

// CreateBlockInput carries the fields of a new block.
type CreateBlockInput struct {
	Capacity    *int
	Name        string
	Description string
	Kind        string
}

// UpdateBlockInput carries block changes. Nil fields are left untouched.
type UpdateBlockInput struct {
	Name        *string
	Description *string
	Kind        *string
}

// DeletionResult reports what a block deletion did to its properties.
type DeletionResult struct {
	TargetBlockID      *int64 `json:"targetBlockId,omitempty"`
	Message            string `json:"message"`
	PropertiesAffected int    `json:"propertiesAffected"`
}

// BlockService defines the block lifecycle: creation, edits, deletion with
// property reassignment, ordering and capacity.
type BlockService interface {
	// CreateBlock validates the name, appends the block after its siblings and
	// stamps its ID-derived tag name.
	// Returns ErrPortfolioNotFound, ErrPortfolioInactive, ErrInvalidBlockName or ErrDuplicateBlockName.
	CreateBlock(ctx context.Context, portfolioID int64, in CreateBlockInput, actor int64) (*models.Block, error)

	// UpdateBlock renames or re-describes a block. The tag is only back-filled when missing.
	UpdateBlock(ctx context.Context, blockID int64, in UpdateBlockInput, actor int64) (*models.Block, error)

	// DeleteBlock deactivates the block and reassigns its properties per policy.
	// targetBlockID is only read for PolicyMoveToSpecificBlock; nil falls back to portfolio-only.
	DeleteBlock(ctx context.Context, blockID int64, policy ReassignmentPolicy, targetBlockID *int64, actor int64) (*DeletionResult, error)

	GetBlock(ctx context.Context, blockID int64) (*models.Block, error)
	ListBlocks(ctx context.Context, portfolioID int64) ([]models.BlockWithCount, error)

	// MoveBlockUp swaps display order with the previous block. No-op for the first block.
	MoveBlockUp(ctx context.Context, blockID, actor int64) error
	// MoveBlockDown swaps display order with the next block. No-op for the last block.
	MoveBlockDown(ctx context.Context, blockID, actor int64) error
	// ReorderBlocks applies the entries of orders that differ from the current order.
	ReorderBlocks(ctx context.Context, portfolioID int64, orders map[int64]int, actor int64) error

	// SetCapacity sets the block's limit; nil removes it.
	SetCapacity(ctx context.Context, blockID int64, capacity *int, actor int64) error
	// GetAvailableCapacity returns nil for unlimited blocks and never a negative count.
	GetAvailableCapacity(ctx context.Context, blockID int64) (*int, error)
	IsAtCapacity(ctx context.Context, blockID int64) (bool, error)
}

type blockService struct {
	store *repository.Store
	log   *logger.Logger
}

// NewBlockService creates a new instance of BlockService.
func NewBlockService(store *repository.Store, log *logger.Logger) BlockService {
	return &blockService{
		store: store,
		log:   log.WithComponent("block_service"),
	}
}

func validateBlockName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", fmt.Errorf("%w: name is required", ErrInvalidBlockName)
	case len(name) < MinBlockNameLength:
		return "", fmt.Errorf("%w: must be at least %d characters", ErrInvalidBlockName, MinBlockNameLength)
	case len(name) > MaxBlockNameLength:
		return "", fmt.Errorf("%w: must be at most %d characters", ErrInvalidBlockName, MaxBlockNameLength)
	}
	return name, nil
}

func (s *blockService) CreateBlock(ctx context.Context, portfolioID int64, in CreateBlockInput, actor int64) (*models.Block, error) {
	name, err := validateBlockName(in.Name)
	if err != nil {
		return nil, err
	}
	kind, ok := models.ParseBlockKind(in.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBlockKind, in.Kind)
	}
	if in.Capacity != nil && *in.Capacity < 0 {
		return nil, ErrInvalidCapacity
	}
	if _, err := loadActivePortfolio(ctx, s.store, portfolioID); err != nil {
		return nil, err
	}

	exists, err := s.store.Blocks.ExistsByNameInPortfolio(ctx, portfolioID, name, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to check block name: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateBlockName, name)
	}

	order, err := s.store.Blocks.NextDisplayOrder(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute display order: %w", err)
	}

	block := &models.Block{
		PortfolioID:  portfolioID,
		Name:         name,
		Description:  strings.TrimSpace(in.Description),
		Kind:         kind,
		Capacity:     in.Capacity,
		DisplayOrder: order,
		SyncStatus:   models.SyncStatusPending,
		IsActive:     true,
		CreatedBy:    actor,
		UpdatedBy:    actor,
	}
	if err := s.store.Blocks.Create(ctx, block); err != nil {
		if errors.Is(err, repository.ErrDuplicateName) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateBlockName, name)
		}
		return nil, fmt.Errorf("failed to create block: %w", err)
	}

	// The tag name needs the ID, so it is stamped in a second write.
	block.ExternalTagName = tagsync.BlockTagName(block.ID)
	if err := s.store.Blocks.Update(ctx, block); err != nil {
		return nil, fmt.Errorf("failed to stamp block tag name: %w", err)
	}

	s.log.Info("Block created", map[string]interface{}{
		"block_id":     block.ID,
		"portfolio_id": portfolioID,
		"name":         block.Name,
		"tag_name":     block.ExternalTagName,
		"actor":        actor,
	})
	return block, nil
}

func (s *blockService) UpdateBlock(ctx context.Context, blockID int64, in UpdateBlockInput, actor int64) (*models.Block, error) {
	block, err := s.findBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	if !block.IsActive {
		return nil, fmt.Errorf("%w: %d", ErrBlockInactive, blockID)
	}

	if in.Name != nil {
		name, err := validateBlockName(*in.Name)
		if err != nil {
			return nil, err
		}
		exists, err := s.store.Blocks.ExistsByNameInPortfolio(ctx, block.PortfolioID, name, block.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check block name: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateBlockName, name)
		}
		block.Name = name
	}
	if in.Description != nil {
		block.Description = strings.TrimSpace(*in.Description)
	}
	if in.Kind != nil {
		kind, ok := models.ParseBlockKind(*in.Kind)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidBlockKind, *in.Kind)
		}
		block.Kind = kind
	}
	if block.ExternalTagName == "" {
		block.ExternalTagName = tagsync.BlockTagName(block.ID)
	}
	block.UpdatedBy = actor

	if err := s.store.Blocks.Update(ctx, block); err != nil {
		if errors.Is(err, repository.ErrDuplicateName) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateBlockName, block.Name)
		}
		return nil, fmt.Errorf("failed to update block: %w", err)
	}
	return block, nil
}

func (s *blockService) DeleteBlock(ctx context.Context, blockID int64, policy ReassignmentPolicy, targetBlockID *int64, actor int64) (*DeletionResult, error) {
	if _, err := ParseReassignmentPolicy(string(policy)); err != nil {
		return nil, err
	}
	block, err := s.findBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	if !block.IsActive {
		return nil, fmt.Errorf("%w: %d", ErrBlockInactive, blockID)
	}

	var target *models.Block
	if policy == PolicyMoveToSpecificBlock && targetBlockID != nil {
		target, err = s.deletionTarget(ctx, block, *targetBlockID)
		if err != nil {
			return nil, err
		}
	}

	assignments, err := s.store.Assignments.FindActiveByBlock(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("failed to load block assignments: %w", err)
	}
	if target != nil && target.Capacity != nil {
		count, err := s.store.Assignments.CountActiveInBlock(ctx, target.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count target assignments: %w", err)
		}
		if count+len(assignments) > *target.Capacity {
			return nil, fmt.Errorf("%w: target block %d", ErrCapacityExceeded, target.ID)
		}
	}

	now := timeNow()
	result := &DeletionResult{}
	for i := range assignments {
		a := &assignments[i]
		switch {
		case policy == PolicyDeleteAssignments:
			a.IsActive = false
			a.UpdatedBy = actor
		case target != nil:
			a.BlockID = &target.ID
			a.MarkPending(actor, now)
		default:
			a.BlockID = nil
			a.MarkPending(actor, now)
		}
		result.PropertiesAffected++
	}

	block.IsActive = false
	block.UpdatedBy = actor
	if err := s.store.Blocks.Retire(ctx, block, assignments); err != nil {
		return nil, fmt.Errorf("failed to delete block: %w", err)
	}

	switch {
	case policy == PolicyDeleteAssignments:
		result.Message = fmt.Sprintf("Block '%s' deleted. %d properties removed from the portfolio.",
			block.Name, result.PropertiesAffected)
	case target != nil:
		result.TargetBlockID = &target.ID
		result.Message = fmt.Sprintf("Block '%s' deleted. %d properties moved to block '%s'.",
			block.Name, result.PropertiesAffected, target.Name)
	default:
		result.Message = fmt.Sprintf("Block '%s' deleted. %d properties moved to the portfolio.",
			block.Name, result.PropertiesAffected)
	}

	s.log.Info("Block deleted", map[string]interface{}{
		"block_id": blockID,
		"policy":   policy,
		"affected": result.PropertiesAffected,
		"actor":    actor,
	})
	return result, nil
}

func (s *blockService) deletionTarget(ctx context.Context, block *models.Block, targetID int64) (*models.Block, error) {
	if targetID == block.ID {
		return nil, ErrSameBlock
	}
	target, err := s.findBlock(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.PortfolioID != block.PortfolioID {
		return nil, fmt.Errorf("%w: block %d", ErrBlockPortfolioMismatch, targetID)
	}
	if !target.IsActive {
		return nil, fmt.Errorf("%w: %d", ErrBlockInactive, targetID)
	}
	return target, nil
}

func (s *blockService) GetBlock(ctx context.Context, blockID int64) (*models.Block, error) {
	return s.findBlock(ctx, blockID)
}

func (s *blockService) ListBlocks(ctx context.Context, portfolioID int64) ([]models.BlockWithCount, error) {
	portfolio, err := s.store.Portfolios.FindByID(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}
	if portfolio == nil {
		return nil, fmt.Errorf("%w: %d", ErrPortfolioNotFound, portfolioID)
	}

	blocks, err := s.store.Blocks.FindActiveByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	out := make([]models.BlockWithCount, 0, len(blocks))
	for _, b := range blocks {
		count, err := s.store.Assignments.CountActiveInBlock(ctx, b.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count block %d: %w", b.ID, err)
		}
		out = append(out, models.BlockWithCount{Block: b, PropertyCount: count})
	}
	return out, nil
}

func (s *blockService) MoveBlockUp(ctx context.Context, blockID, actor int64) error {
	return s.swapWithNeighbour(ctx, blockID, -1, actor)
}

func (s *blockService) MoveBlockDown(ctx context.Context, blockID, actor int64) error {
	return s.swapWithNeighbour(ctx, blockID, 1, actor)
}

func (s *blockService) swapWithNeighbour(ctx context.Context, blockID int64, step int, actor int64) error {
	block, err := s.findBlock(ctx, blockID)
	if err != nil {
		return err
	}
	if !block.IsActive {
		return fmt.Errorf("%w: %d", ErrBlockInactive, blockID)
	}

	siblings, err := s.store.Blocks.FindActiveByPortfolio(ctx, block.PortfolioID)
	if err != nil {
		return fmt.Errorf("failed to list blocks: %w", err)
	}
	for i := range siblings {
		if siblings[i].ID != blockID {
			continue
		}
		j := i + step
		if j < 0 || j >= len(siblings) {
			return nil
		}
		orders := map[int64]int{
			siblings[i].ID: siblings[j].DisplayOrder,
			siblings[j].ID: siblings[i].DisplayOrder,
		}
		if err := s.store.Blocks.UpdateDisplayOrders(ctx, orders); err != nil {
			return fmt.Errorf("failed to swap block order: %w", err)
		}
		s.log.Debug("Block order swapped", map[string]interface{}{
			"block_id":    blockID,
			"neighbour":   siblings[j].ID,
			"actor":       actor,
			"new_order":   siblings[j].DisplayOrder,
			"other_order": siblings[i].DisplayOrder,
		})
		return nil
	}
	return nil
}

func (s *blockService) ReorderBlocks(ctx context.Context, portfolioID int64, orders map[int64]int, actor int64) error {
	if len(orders) == 0 {
		return fmt.Errorf("%w: no entries", ErrInvalidOrder)
	}
	if _, err := loadActivePortfolio(ctx, s.store, portfolioID); err != nil {
		return err
	}

	blocks, err := s.store.Blocks.FindActiveByPortfolio(ctx, portfolioID)
	if err != nil {
		return fmt.Errorf("failed to list blocks: %w", err)
	}
	current := make(map[int64]int, len(blocks))
	for _, b := range blocks {
		current[b.ID] = b.DisplayOrder
	}

	changed := map[int64]int{}
	for id, order := range orders {
		existing, ok := current[id]
		if !ok {
			return fmt.Errorf("%w: block %d is not an active block of portfolio %d", ErrInvalidOrder, id, portfolioID)
		}
		if order < 0 {
			return fmt.Errorf("%w: negative order for block %d", ErrInvalidOrder, id)
		}
		if order != existing {
			changed[id] = order
		}
	}
	if len(changed) == 0 {
		return nil
	}

	// Moved blocks must not land on an order another block keeps or takes.
	taken := make(map[int]int64, len(current))
	for id, order := range current {
		if next, ok := changed[id]; ok {
			order = next
		}
		if other, dup := taken[order]; dup && (isKey(changed, id) || isKey(changed, other)) {
			return fmt.Errorf("%w: blocks %d and %d would share order %d", ErrInvalidOrder, min(id, other), max(id, other), order)
		}
		taken[order] = id
	}

	if err := s.store.Blocks.UpdateDisplayOrders(ctx, changed); err != nil {
		return fmt.Errorf("failed to reorder blocks: %w", err)
	}
	s.log.Info("Blocks reordered", map[string]interface{}{
		"portfolio_id": portfolioID,
		"changed":      len(changed),
		"actor":        actor,
	})
	return nil
}

func isKey(m map[int64]int, id int64) bool {
	_, ok := m[id]
	return ok
}

func (s *blockService) SetCapacity(ctx context.Context, blockID int64, capacity *int, actor int64) error {
	if capacity != nil && *capacity < 0 {
		return ErrInvalidCapacity
	}
	block, err := s.findBlock(ctx, blockID)
	if err != nil {
		return err
	}
	block.Capacity = capacity
	block.UpdatedBy = actor
	if err := s.store.Blocks.Update(ctx, block); err != nil {
		return fmt.Errorf("failed to set capacity: %w", err)
	}
	return nil
}

func (s *blockService) GetAvailableCapacity(ctx context.Context, blockID int64) (*int, error) {
	block, err := s.findBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	if block.Capacity == nil {
		return nil, nil
	}
	count, err := s.store.Assignments.CountActiveInBlock(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("failed to count block assignments: %w", err)
	}
	available := max(*block.Capacity-count, 0)
	return &available, nil
}

func (s *blockService) IsAtCapacity(ctx context.Context, blockID int64) (bool, error) {
	block, err := s.findBlock(ctx, blockID)
	if err != nil {
		return false, err
	}
	if block.Capacity == nil {
		return false, nil
	}
	count, err := s.store.Assignments.CountActiveInBlock(ctx, blockID)
	if err != nil {
		return false, fmt.Errorf("failed to count block assignments: %w", err)
	}
	return count >= *block.Capacity, nil
}

func (s *blockService) findBlock(ctx context.Context, blockID int64) (*models.Block, error) {
	block, err := s.store.Blocks.FindByID(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("failed to load block: %w", err)
	}
	if block == nil {
		return nil, fmt.Errorf("%w: %d", ErrBlockNotFound, blockID)
	}
	return block, nil
}
