package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/InverskProperty/propsk-sub012/internal/logger"
	"github.com/InverskProperty/propsk-sub012/internal/models"
	"github.com/InverskProperty/propsk-sub012/internal/repository"
	"github.com/InverskProperty/propsk-sub012/internal/tagsync"
)

const testActor int64 = 7

// MockTagClient is a mock implementation of tagsync.Client for testing
type MockTagClient struct {
	mock.Mock
}

func (m *MockTagClient) EnsureTag(ctx context.Context, name string) (*tagsync.Tag, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tagsync.Tag), args.Error(1)
}

func (m *MockTagClient) GetTag(ctx context.Context, id string) (*tagsync.Tag, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tagsync.Tag), args.Error(1)
}

func (m *MockTagClient) ListTags(ctx context.Context) ([]tagsync.Tag, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]tagsync.Tag), args.Error(1)
}

func (m *MockTagClient) ApplyTag(ctx context.Context, propertyRef, tagID string) error {
	args := m.Called(ctx, propertyRef, tagID)
	return args.Error(0)
}

func (m *MockTagClient) RemoveTag(ctx context.Context, propertyRef, tagID string) error {
	args := m.Called(ctx, propertyRef, tagID)
	return args.Error(0)
}

func newResolver(client *MockTagClient) TagResolver {
	return tagsync.NewResolver(client, logger.Nop())
}

func seedPortfolio(t *testing.T, store *repository.Store, name, tagID string) *models.Portfolio {
	t.Helper()
	p := &models.Portfolio{Name: name, ExternalTagID: tagID, IsActive: true}
	if tagID != "" {
		p.SyncStatus = models.SyncStatusSynced
	}
	require.NoError(t, store.Portfolios.Create(context.Background(), p))
	return p
}

func seedBlock(t *testing.T, store *repository.Store, portfolioID int64, name, tagID string, capacity *int) *models.Block {
	t.Helper()
	ctx := context.Background()
	order, err := store.Blocks.NextDisplayOrder(ctx, portfolioID)
	require.NoError(t, err)
	b := &models.Block{
		PortfolioID:   portfolioID,
		Name:          name,
		Kind:          models.BlockKindBuilding,
		Capacity:      capacity,
		ExternalTagID: tagID,
		DisplayOrder:  order,
		IsActive:      true,
	}
	require.NoError(t, store.Blocks.Create(ctx, b))
	return b
}

func seedProperty(t *testing.T, store *repository.Store, ref string) *models.Property {
	t.Helper()
	p := &models.Property{Name: "Flat " + ref}
	if ref != "" {
		p.ExternalRef = &ref
	}
	require.NoError(t, store.Properties.Create(context.Background(), p))
	return p
}

func intPtr(v int) *int { return &v }

func activeAssignment(t *testing.T, store *repository.Store, propertyID, portfolioID int64) *models.Assignment {
	t.Helper()
	a, err := store.Assignments.FindActive(context.Background(), propertyID, portfolioID, models.AssignmentKindPrimary)
	require.NoError(t, err)
	return a
}

func TestAssignPropertiesToPortfolio_ProvisionsTagAndApplies(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	client := new(MockTagClient)
	service := NewAssignmentService(store, newResolver(client), logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "")
	prop := seedProperty(t, store, "PP-100")

	client.On("EnsureTag", mock.Anything, "PF-P1").Return(&tagsync.Tag{ID: "abc123tagid01", Name: "PF-P1"}, nil).Once()
	client.On("ApplyTag", mock.Anything, "PP-100", "abc123tagid01").Return(nil).Once()

	// Act
	result, err := service.AssignPropertiesToPortfolio(ctx, portfolio.ID, []int64{prop.ID}, testActor)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assigned)
	assert.Equal(t, 1, result.Synced)
	assert.True(t, result.Success())

	stored, err := store.Portfolios.FindByID(ctx, portfolio.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc123tagid01", stored.ExternalTagID)
	assert.Equal(t, "PF-P1", stored.ExternalTagName)
	assert.Equal(t, models.SyncStatusSynced, stored.SyncStatus)

	a := activeAssignment(t, store, prop.ID, portfolio.ID)
	require.NotNil(t, a)
	assert.Equal(t, models.SyncStatusSynced, a.SyncStatus)
	assert.NotNil(t, a.LastSyncedAt)
	client.AssertNumberOfCalls(t, "ApplyTag", 1)
	client.AssertExpectations(t)
}

func TestAssignPropertiesToPortfolio_Idempotent(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	client := new(MockTagClient)
	service := NewAssignmentService(store, newResolver(client), logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "abc123tagid01")
	prop := seedProperty(t, store, "PP-100")
	client.On("ApplyTag", mock.Anything, "PP-100", "abc123tagid01").Return(nil)

	_, err := service.AssignPropertiesToPortfolio(ctx, portfolio.ID, []int64{prop.ID}, testActor)
	require.NoError(t, err)

	// Act
	result, err := service.AssignPropertiesToPortfolio(ctx, portfolio.ID, []int64{prop.ID, prop.ID}, testActor)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 0, result.Assigned)
	assert.Equal(t, 1, result.Skipped)
	client.AssertNumberOfCalls(t, "ApplyTag", 1)

	rows, err := store.Assignments.FindActiveByProperty(ctx, prop.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAssignPropertiesToPortfolio_InactivePortfolio(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	service := NewAssignmentService(store, nil, logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "Closed", "")
	portfolio.IsActive = false
	require.NoError(t, store.Portfolios.Update(ctx, portfolio))
	prop := seedProperty(t, store, "PP-100")

	// Act
	result, err := service.AssignPropertiesToPortfolio(ctx, portfolio.ID, []int64{prop.ID}, testActor)

	// Assert
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrPortfolioInactive)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Nil(t, activeAssignment(t, store, prop.ID, portfolio.ID))
}

func TestAssignPropertiesToPortfolio_UnknownPortfolio(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	service := NewAssignmentService(store, nil, logger.Nop())

	// Act
	_, err := service.AssignPropertiesToPortfolio(context.Background(), 999, []int64{1}, testActor)

	// Assert
	assert.ErrorIs(t, err, ErrPortfolioNotFound)
}

func TestAssignPropertiesToPortfolio_IntegrationDisabled(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	service := NewAssignmentService(store, nil, logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "")
	prop := seedProperty(t, store, "PP-100")

	// Act
	result, err := service.AssignPropertiesToPortfolio(ctx, portfolio.ID, []int64{prop.ID}, testActor)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assigned)
	assert.Equal(t, 0, result.Synced)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "integration disabled")

	a := activeAssignment(t, store, prop.ID, portfolio.ID)
	require.NotNil(t, a)
	assert.Equal(t, models.SyncStatusPending, a.SyncStatus)

	logs, err := store.SyncLogs.FindRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.SyncLogSkipped, logs[0].Status)
}

func TestAssignPropertiesToPortfolio_PerItemErrors(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	service := NewAssignmentService(store, nil, logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "")
	prop := seedProperty(t, store, "PP-100")

	// Act
	result, err := service.AssignPropertiesToPortfolio(ctx, portfolio.ID, []int64{prop.ID, 4242}, testActor)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assigned)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "4242")
	assert.False(t, result.Success())
}

func TestAssignPropertiesToPortfolio_ApplyFailureMarksFailed(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	client := new(MockTagClient)
	service := NewAssignmentService(store, newResolver(client), logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "abc123tagid01")
	prop := seedProperty(t, store, "PP-100")
	client.On("ApplyTag", mock.Anything, "PP-100", "abc123tagid01").Return(errors.New("503 from tag api"))

	// Act
	result, err := service.AssignPropertiesToPortfolio(ctx, portfolio.ID, []int64{prop.ID}, testActor)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assigned)
	assert.Equal(t, 0, result.Synced)
	require.Len(t, result.Errors, 1)

	a := activeAssignment(t, store, prop.ID, portfolio.ID)
	require.NotNil(t, a)
	assert.Equal(t, models.SyncStatusFailed, a.SyncStatus)
}

func TestAssignPropertiesToPortfolio_ClearsLegacyPointer(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	service := NewAssignmentService(store, nil, logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "")
	prop := seedProperty(t, store, "PP-100")
	require.NoError(t, store.Properties.SetLegacyPortfolio(ctx, prop.ID, &portfolio.ID))

	// Act
	_, err := service.AssignPropertiesToPortfolio(ctx, portfolio.ID, []int64{prop.ID}, testActor)

	// Assert
	require.NoError(t, err)
	stored, err := store.Properties.FindByID(ctx, prop.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PortfolioID)
}

func TestAssignPropertiesToPortfolio_ReactivatesPreviousRow(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	client := new(MockTagClient)
	service := NewAssignmentService(store, newResolver(client), logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "abc123tagid01")
	prop := seedProperty(t, store, "PP-100")
	client.On("ApplyTag", mock.Anything, "PP-100", "abc123tagid01").Return(nil)
	client.On("RemoveTag", mock.Anything, "PP-100", "abc123tagid01").Return(nil)

	_, err := service.AssignPropertiesToPortfolio(ctx, portfolio.ID, []int64{prop.ID}, testActor)
	require.NoError(t, err)
	first := activeAssignment(t, store, prop.ID, portfolio.ID)
	require.NotNil(t, first)
	require.NoError(t, service.RemovePropertyFromPortfolio(ctx, prop.ID, portfolio.ID, testActor))

	// Act
	result, err := service.AssignPropertiesToPortfolio(ctx, portfolio.ID, []int64{prop.ID}, testActor)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assigned)
	again := activeAssignment(t, store, prop.ID, portfolio.ID)
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)
	client.AssertNumberOfCalls(t, "ApplyTag", 2)
}

func TestAssignPropertiesToBlock_BlockTagTakesPrecedence(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	client := new(MockTagClient)
	service := NewAssignmentService(store, newResolver(client), logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "portfolio0001")
	block := seedBlock(t, store, portfolio.ID, "Tower A", "blocktag0001", nil)
	prop := seedProperty(t, store, "PP-100")
	client.On("ApplyTag", mock.Anything, "PP-100", "blocktag0001").Return(nil).Once()

	// Act
	result, err := service.AssignPropertiesToBlock(ctx, portfolio.ID, block.ID, []int64{prop.ID}, testActor)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	client.AssertNotCalled(t, "ApplyTag", mock.Anything, "PP-100", "portfolio0001")
	client.AssertExpectations(t)

	a := activeAssignment(t, store, prop.ID, portfolio.ID)
	require.NotNil(t, a)
	require.NotNil(t, a.BlockID)
	assert.Equal(t, block.ID, *a.BlockID)
}

func TestAssignPropertiesToBlock_RepointsExistingAssignment(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	service := NewAssignmentService(store, nil, logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "")
	block := seedBlock(t, store, portfolio.ID, "Tower A", "", nil)
	prop := seedProperty(t, store, "PP-100")
	_, err := service.AssignPropertiesToPortfolio(ctx, portfolio.ID, []int64{prop.ID}, testActor)
	require.NoError(t, err)
	before := activeAssignment(t, store, prop.ID, portfolio.ID)

	// Act
	result, err := service.AssignPropertiesToBlock(ctx, portfolio.ID, block.ID, []int64{prop.ID}, testActor)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assigned)
	after := activeAssignment(t, store, prop.ID, portfolio.ID)
	require.NotNil(t, after)
	assert.Equal(t, before.ID, after.ID)
	require.NotNil(t, after.BlockID)
	assert.Equal(t, block.ID, *after.BlockID)
}

func TestAssignPropertiesToBlock_CapacityExceeded(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	service := NewAssignmentService(store, nil, logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "")
	block := seedBlock(t, store, portfolio.ID, "Tower A", "", intPtr(1))
	first := seedProperty(t, store, "PP-100")
	second := seedProperty(t, store, "PP-200")

	_, err := service.AssignPropertiesToBlock(ctx, portfolio.ID, block.ID, []int64{first.ID}, testActor)
	require.NoError(t, err)

	// Act
	result, err := service.AssignPropertiesToBlock(ctx, portfolio.ID, block.ID, []int64{second.ID}, testActor)

	// Assert
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.ErrorIs(t, err, ErrStateConflict)

	count, err := store.Assignments.CountActiveInBlock(ctx, block.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Nil(t, activeAssignment(t, store, second.ID, portfolio.ID))
}

func TestAssignPropertiesToBlock_ReassigningMemberDoesNotCountAgainstCapacity(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	service := NewAssignmentService(store, nil, logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "")
	block := seedBlock(t, store, portfolio.ID, "Tower A", "", intPtr(1))
	prop := seedProperty(t, store, "PP-100")
	_, err := service.AssignPropertiesToBlock(ctx, portfolio.ID, block.ID, []int64{prop.ID}, testActor)
	require.NoError(t, err)

	// Act
	result, err := service.AssignPropertiesToBlock(ctx, portfolio.ID, block.ID, []int64{prop.ID}, testActor)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
}

func TestAssignPropertiesToBlock_BlockFromOtherPortfolio(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	service := NewAssignmentService(store, nil, logger.Nop())
	ctx := context.Background()

	p1 := seedPortfolio(t, store, "P1", "")
	p2 := seedPortfolio(t, store, "P2", "")
	block := seedBlock(t, store, p2.ID, "Tower A", "", nil)
	prop := seedProperty(t, store, "PP-100")

	// Act
	_, err := service.AssignPropertiesToBlock(ctx, p1.ID, block.ID, []int64{prop.ID}, testActor)

	// Assert
	assert.ErrorIs(t, err, ErrBlockPortfolioMismatch)
}

func TestMovePropertiesBetweenBlocks_MarksPendingThenSyncApplies(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	client := new(MockTagClient)
	resolver := newResolver(client)
	service := NewAssignmentService(store, resolver, logger.Nop())
	syncService := NewSyncService(store, resolver, logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "portfolio0001")
	b1 := seedBlock(t, store, portfolio.ID, "Tower A", "blockone0001", nil)
	b2 := seedBlock(t, store, portfolio.ID, "Tower B", "blocktwo0002", nil)
	prop := seedProperty(t, store, "PP-100")
	client.On("ApplyTag", mock.Anything, "PP-100", "blockone0001").Return(nil).Once()
	client.On("ApplyTag", mock.Anything, "PP-100", "blocktwo0002").Return(nil).Once()

	_, err := service.AssignPropertiesToBlock(ctx, portfolio.ID, b1.ID, []int64{prop.ID}, testActor)
	require.NoError(t, err)

	// Act
	result, err := service.MovePropertiesBetweenBlocks(ctx, portfolio.ID, &b1.ID, &b2.ID, []int64{prop.ID}, testActor)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assigned)
	moved := activeAssignment(t, store, prop.ID, portfolio.ID)
	require.NotNil(t, moved)
	require.NotNil(t, moved.BlockID)
	assert.Equal(t, b2.ID, *moved.BlockID)
	assert.Equal(t, models.SyncStatusPending, moved.SyncStatus)
	client.AssertNotCalled(t, "ApplyTag", mock.Anything, "PP-100", "blocktwo0002")

	syncResult, err := syncService.SyncAssignment(ctx, moved.ID, testActor)
	require.NoError(t, err)
	assert.Equal(t, 1, syncResult.Synced)
	client.AssertExpectations(t)
	client.AssertNotCalled(t, "RemoveTag", mock.Anything, mock.Anything, mock.Anything)
}

func TestMovePropertiesBetweenBlocks_SameBlock(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	service := NewAssignmentService(store, nil, logger.Nop())
	id := int64(3)

	// Act
	_, err := service.MovePropertiesBetweenBlocks(context.Background(), 1, &id, &id, []int64{1}, testActor)

	// Assert
	assert.ErrorIs(t, err, ErrSameBlock)
}

func TestMovePropertiesBetweenBlocks_ToPortfolioOnly(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	service := NewAssignmentService(store, nil, logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "")
	block := seedBlock(t, store, portfolio.ID, "Tower A", "", nil)
	inBlock := seedProperty(t, store, "PP-100")
	elsewhere := seedProperty(t, store, "PP-200")
	_, err := service.AssignPropertiesToBlock(ctx, portfolio.ID, block.ID, []int64{inBlock.ID}, testActor)
	require.NoError(t, err)

	// Act
	result, err := service.MovePropertiesBetweenBlocks(ctx, portfolio.ID, &block.ID, nil, []int64{inBlock.ID, elsewhere.ID}, testActor)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assigned)
	require.Len(t, result.Errors, 1)
	a := activeAssignment(t, store, inBlock.ID, portfolio.ID)
	require.NotNil(t, a)
	assert.Nil(t, a.BlockID)
}

func TestMovePropertiesBetweenBlocks_TargetAtCapacity(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	service := NewAssignmentService(store, nil, logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "")
	from := seedBlock(t, store, portfolio.ID, "Tower A", "", nil)
	to := seedBlock(t, store, portfolio.ID, "Tower B", "", intPtr(0))
	prop := seedProperty(t, store, "PP-100")
	_, err := service.AssignPropertiesToBlock(ctx, portfolio.ID, from.ID, []int64{prop.ID}, testActor)
	require.NoError(t, err)

	// Act
	_, err = service.MovePropertiesBetweenBlocks(ctx, portfolio.ID, &from.ID, &to.ID, []int64{prop.ID}, testActor)

	// Assert
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	a := activeAssignment(t, store, prop.ID, portfolio.ID)
	require.NotNil(t, a.BlockID)
	assert.Equal(t, from.ID, *a.BlockID)
}

func TestRemovePropertyFromPortfolio_RemovesPortfolioAndBlockTags(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	client := new(MockTagClient)
	service := NewAssignmentService(store, newResolver(client), logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "portfolio0001")
	block := seedBlock(t, store, portfolio.ID, "Tower A", "blocktag0001", nil)
	prop := seedProperty(t, store, "PP-100")
	client.On("ApplyTag", mock.Anything, "PP-100", "blocktag0001").Return(nil)
	client.On("RemoveTag", mock.Anything, "PP-100", "portfolio0001").Return(nil).Once()
	client.On("RemoveTag", mock.Anything, "PP-100", "blocktag0001").Return(nil).Once()

	_, err := service.AssignPropertiesToBlock(ctx, portfolio.ID, block.ID, []int64{prop.ID}, testActor)
	require.NoError(t, err)

	// Act
	err = service.RemovePropertyFromPortfolio(ctx, prop.ID, portfolio.ID, testActor)

	// Assert
	require.NoError(t, err)
	assert.Nil(t, activeAssignment(t, store, prop.ID, portfolio.ID))
	client.AssertExpectations(t)
}

func TestRemovePropertyFromPortfolio_ExternalFailureKeepsAssignment(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	client := new(MockTagClient)
	service := NewAssignmentService(store, newResolver(client), logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "abc123tagid01")
	prop := seedProperty(t, store, "PP-100")
	client.On("ApplyTag", mock.Anything, "PP-100", "abc123tagid01").Return(nil)
	client.On("RemoveTag", mock.Anything, "PP-100", "abc123tagid01").Return(errors.New("connection reset"))

	_, err := service.AssignPropertiesToPortfolio(ctx, portfolio.ID, []int64{prop.ID}, testActor)
	require.NoError(t, err)

	// Act
	err = service.RemovePropertyFromPortfolio(ctx, prop.ID, portfolio.ID, testActor)

	// Assert
	assert.ErrorIs(t, err, ErrIntegration)
	a := activeAssignment(t, store, prop.ID, portfolio.ID)
	require.NotNil(t, a)
	assert.True(t, a.IsActive)
}

func TestRemovePropertyFromPortfolio_IntegrationDisabled(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	service := NewAssignmentService(store, nil, logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "abc123tagid01")
	prop := seedProperty(t, store, "PP-100")
	_, err := service.AssignPropertiesToPortfolio(ctx, portfolio.ID, []int64{prop.ID}, testActor)
	require.NoError(t, err)

	// Act
	err = service.RemovePropertyFromPortfolio(ctx, prop.ID, portfolio.ID, testActor)

	// Assert
	require.NoError(t, err)
	assert.Nil(t, activeAssignment(t, store, prop.ID, portfolio.ID))
}

func TestRemovePropertyFromPortfolio_NotAssigned(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	service := NewAssignmentService(store, nil, logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "")
	prop := seedProperty(t, store, "PP-100")

	// Act
	err := service.RemovePropertyFromPortfolio(ctx, prop.ID, portfolio.ID, testActor)

	// Assert
	assert.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestRemovePropertyFromPortfolio_ResolvesStoredTagNames(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	client := new(MockTagClient)
	service := NewAssignmentService(store, newResolver(client), logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "PF-P1")
	block := seedBlock(t, store, portfolio.ID, "Tower A", "BL-OLD-NAME", nil)
	prop := seedProperty(t, store, "PP-100")
	seedPending(t, store, prop.ID, portfolio.ID, &block.ID)

	client.On("EnsureTag", mock.Anything, "PF-P1").Return(&tagsync.Tag{ID: "pf1tag000001", Name: "PF-P1"}, nil).Once()
	client.On("EnsureTag", mock.Anything, "BL-OLD-NAME").Return(&tagsync.Tag{ID: "oldblock0001", Name: "BL-OLD-NAME"}, nil).Once()
	client.On("RemoveTag", mock.Anything, "PP-100", "pf1tag000001").Return(nil).Once()
	client.On("RemoveTag", mock.Anything, "PP-100", "oldblock0001").Return(nil).Once()

	// Act
	err := service.RemovePropertyFromPortfolio(ctx, prop.ID, portfolio.ID, testActor)

	// Assert
	require.NoError(t, err)
	client.AssertExpectations(t)
	assert.Nil(t, activeAssignment(t, store, prop.ID, portfolio.ID))

	stored, err := store.Portfolios.FindByID(ctx, portfolio.ID)
	require.NoError(t, err)
	assert.Equal(t, "pf1tag000001", stored.ExternalTagID)
}

func TestRemovePropertyFromPortfolio_TagResolutionFailureKeepsAssignment(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	client := new(MockTagClient)
	service := NewAssignmentService(store, newResolver(client), logger.Nop())
	ctx := context.Background()

	portfolio := seedPortfolio(t, store, "P1", "PF-P1")
	prop := seedProperty(t, store, "PP-100")
	seedPending(t, store, prop.ID, portfolio.ID, nil)
	client.On("EnsureTag", mock.Anything, "PF-P1").Return(nil, errors.New("timeout"))

	// Act
	err := service.RemovePropertyFromPortfolio(ctx, prop.ID, portfolio.ID, testActor)

	// Assert
	assert.ErrorIs(t, err, ErrIntegration)
	assert.NotNil(t, activeAssignment(t, store, prop.ID, portfolio.ID))
	client.AssertNotCalled(t, "RemoveTag", mock.Anything, mock.Anything, mock.Anything)
}

// staleAssignments misses the active row on the first FindActive calls, as a
// concurrent insert landing between lookup and insert would.
type staleAssignments struct {
	repository.AssignmentRepository
	misses atomic.Int32
}

func (r *staleAssignments) FindActive(ctx context.Context, propertyID, portfolioID int64, kind models.AssignmentKind) (*models.Assignment, error) {
	if r.misses.Add(-1) >= 0 {
		return nil, nil
	}
	return r.AssignmentRepository.FindActive(ctx, propertyID, portfolioID, kind)
}

func TestAssignPropertiesToPortfolio_DuplicateInsertFallsBackToExisting(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	ctx := context.Background()
	portfolio := seedPortfolio(t, store, "P1", "")
	prop := seedProperty(t, store, "PP-100")
	existing := seedPending(t, store, prop.ID, portfolio.ID, nil)

	stale := &staleAssignments{AssignmentRepository: store.Assignments}
	stale.misses.Store(1)
	store.Assignments = stale
	service := NewAssignmentService(store, nil, logger.Nop())

	// Act
	result, err := service.AssignPropertiesToPortfolio(ctx, portfolio.ID, []int64{prop.ID}, testActor)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Assigned)
	assert.Empty(t, result.Errors)

	rows, err := store.Assignments.FindActiveByProperty(ctx, prop.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, existing.ID, rows[0].ID)
}

func TestAssignPropertiesToPortfolio_ConcurrentCallersCreateOneRow(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	service := NewAssignmentService(store, nil, logger.Nop())
	ctx := context.Background()
	portfolio := seedPortfolio(t, store, "P1", "")
	prop := seedProperty(t, store, "PP-100")

	const callers = 20
	results := make([]*BatchResult, callers)
	errs := make([]error, callers)

	// Act
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = service.AssignPropertiesToPortfolio(ctx, portfolio.ID, []int64{prop.ID}, testActor)
		}(i)
	}
	wg.Wait()

	// Assert
	assigned, skipped := 0, 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Empty(t, results[i].Errors)
		assigned += results[i].Assigned
		skipped += results[i].Skipped
	}
	assert.Equal(t, 1, assigned)
	assert.Equal(t, callers-1, skipped)

	rows, err := store.Assignments.FindActiveByProperty(ctx, prop.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAssignPropertiesToBlock_UnknownPropertyDoesNotTakeCapacity(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	service := NewAssignmentService(store, nil, logger.Nop())
	ctx := context.Background()
	portfolio := seedPortfolio(t, store, "P1", "")
	block := seedBlock(t, store, portfolio.ID, "Tower A", "", intPtr(1))
	prop := seedProperty(t, store, "PP-100")

	// Act
	result, err := service.AssignPropertiesToBlock(ctx, portfolio.ID, block.ID, []int64{999999, prop.ID}, testActor)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assigned)
	assert.Equal(t, []string{"property 999999: not found"}, result.Errors)
	a := activeAssignment(t, store, prop.ID, portfolio.ID)
	require.NotNil(t, a)
	assert.True(t, a.InBlock(&block.ID))
}

func TestAssignPropertiesToPortfolio_SkippedPropertyLosesLegacyPointer(t *testing.T) {
	// Arrange
	store := repository.NewMemoryStore()
	service := NewAssignmentService(store, nil, logger.Nop())
	ctx := context.Background()
	portfolio := seedPortfolio(t, store, "P1", "")
	prop := seedProperty(t, store, "PP-100")
	seedPending(t, store, prop.ID, portfolio.ID, nil)
	require.NoError(t, store.Properties.SetLegacyPortfolio(ctx, prop.ID, &portfolio.ID))

	// Act
	result, err := service.AssignPropertiesToPortfolio(ctx, portfolio.ID, []int64{prop.ID}, testActor)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	stored, err := store.Properties.FindByID(ctx, prop.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PortfolioID)
}
