package tagsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/InverskProperty/propsk-sub012/internal/logger"
)

// MockClient is a mock implementation of Client for testing
type MockClient struct {
	mock.Mock
}

func (m *MockClient) EnsureTag(ctx context.Context, name string) (*Tag, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tag), args.Error(1)
}

func (m *MockClient) GetTag(ctx context.Context, id string) (*Tag, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tag), args.Error(1)
}

func (m *MockClient) ListTags(ctx context.Context) ([]Tag, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Tag), args.Error(1)
}

func (m *MockClient) ApplyTag(ctx context.Context, propertyRef, tagID string) error {
	return m.Called(ctx, propertyRef, tagID).Error(0)
}

func (m *MockClient) RemoveTag(ctx context.Context, propertyRef, tagID string) error {
	return m.Called(ctx, propertyRef, tagID).Error(0)
}

func TestResolve_OpaqueIDSkipsRemoteCall(t *testing.T) {
	// Arrange
	client := new(MockClient)
	resolver := NewResolver(client, logger.Nop())

	// Act
	tag, err := resolver.Resolve(context.Background(), "abc123tagid01")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "abc123tagid01", tag.ID)
	client.AssertNotCalled(t, "EnsureTag", mock.Anything, mock.Anything)
}

func TestResolve_NameIsEnsured(t *testing.T) {
	// Arrange
	client := new(MockClient)
	resolver := NewResolver(client, logger.Nop())
	ctx := context.Background()
	client.On("EnsureTag", ctx, "PF-P1").Return(&Tag{ID: "abc123tagid01", Name: "PF-P1"}, nil)

	// Act
	tag, err := resolver.Resolve(ctx, " PF-P1 ")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "abc123tagid01", tag.ID)
	client.AssertExpectations(t)
}

func TestResolve_FailuresAreResolutionErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty reference", func(t *testing.T) {
		resolver := NewResolver(new(MockClient), logger.Nop())
		_, err := resolver.Resolve(ctx, "  ")
		assert.True(t, errors.Is(err, ErrResolution))
	})

	t.Run("remote failure keeps cause", func(t *testing.T) {
		client := new(MockClient)
		client.On("EnsureTag", ctx, "PF-P1").Return(nil, ErrRequest)
		resolver := NewResolver(client, logger.Nop())

		_, err := resolver.Resolve(ctx, "PF-P1")

		assert.True(t, errors.Is(err, ErrResolution))
		assert.True(t, errors.Is(err, ErrRequest))
	})

	t.Run("remote returns name-shaped id", func(t *testing.T) {
		client := new(MockClient)
		client.On("EnsureTag", ctx, "PF-P1").Return(&Tag{ID: "PF-P1"}, nil)
		resolver := NewResolver(client, logger.Nop())

		_, err := resolver.Resolve(ctx, "PF-P1")

		assert.True(t, errors.Is(err, ErrResolution))
	})
}

func TestApply_RejectsUnresolvedTag(t *testing.T) {
	client := new(MockClient)
	resolver := NewResolver(client, logger.Nop())

	err := resolver.Apply(context.Background(), "PP-100", "PF-P1")

	assert.True(t, errors.Is(err, ErrResolution))
	client.AssertNotCalled(t, "ApplyTag", mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyAndRemove_DelegateToClient(t *testing.T) {
	client := new(MockClient)
	resolver := NewResolver(client, logger.Nop())
	ctx := context.Background()
	client.On("ApplyTag", ctx, "PP-100", "abc123tagid01").Return(nil).Once()
	client.On("RemoveTag", ctx, "PP-100", "abc123tagid01").Return(errors.New("boom")).Once()

	require.NoError(t, resolver.Apply(ctx, "PP-100", "abc123tagid01"))
	assert.EqualError(t, resolver.Remove(ctx, "PP-100", "abc123tagid01"), "boom")
	assert.Error(t, resolver.Apply(ctx, "", "abc123tagid01"))
	client.AssertExpectations(t)
}
