package services

import (
	"context"
	"errors"
	"testing"

	"rateadjuster/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNextRate(t *testing.T) {
	tests := []struct {
		current int
		want    int
	}{
		{100, 90},
		{50, 40},
		{20, 10},
		{19, 10},
		{15, 10},
		{10, 10},
		{5, 10},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NextRate(tt.current), "current %d", tt.current)
	}
}

func TestNextRateDecrementsByStepFromTwenty(t *testing.T) {
	for r := 20; r <= 100; r++ {
		assert.Equal(t, r-RateStep, NextRate(r))
	}
	for r := 10; r < 20; r++ {
		assert.Equal(t, RateFloor, NextRate(r))
	}
}

func TestAdjustWritesLoweredRateWithETag(t *testing.T) {
	ctx := context.Background()
	registry := new(MockTwinRegistry)
	registry.On("GetTwin", ctx, "line-1").Return(twinWithRate("line-1", 50.0), nil)
	registry.On("UpdateTwin", ctx, "line-1", ratePatch(40), "AAAAAAAAAAE=").Return(nil)

	adjuster := NewTwinAdjuster(registry, zap.NewNop())
	adj, err := adjuster.Adjust(ctx, "line-1")

	require.NoError(t, err)
	assert.Equal(t, "line-1", adj.DeviceID)
	assert.Equal(t, 50, adj.PreviousRate)
	assert.Equal(t, 40, adj.NewRate)
	assert.False(t, adj.AdjustedAt.IsZero())
	registry.AssertExpectations(t)
}

func TestAdjustAcceptsRateRepresentations(t *testing.T) {
	tests := []struct {
		name string
		rate interface{}
		want int
	}{
		{"float", 30.0, 20},
		{"int", 30, 20},
		{"int64", int64(30), 20},
		{"half rounds to even", 30.5, 20},
		{"numeric string", " 30 ", 20},
		{"floored", 12.0, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			registry := new(MockTwinRegistry)
			registry.On("GetTwin", ctx, "line-1").Return(twinWithRate("line-1", tt.rate), nil)
			registry.On("UpdateTwin", ctx, "line-1", ratePatch(tt.want), mock.Anything).Return(nil)

			adj, err := NewTwinAdjuster(registry, zap.NewNop()).Adjust(ctx, "line-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, adj.NewRate)
		})
	}
}

func TestAdjustPropertyMissing(t *testing.T) {
	ctx := context.Background()
	registry := new(MockTwinRegistry)
	registry.On("GetTwin", ctx, "line-4").Return(&models.Twin{
		DeviceID: "line-4",
		ETag:     "etag",
		Desired:  map[string]interface{}{"Temperature": 21.0},
	}, nil)

	adj, err := NewTwinAdjuster(registry, zap.NewNop()).Adjust(ctx, "line-4")

	assert.Nil(t, adj)
	assert.ErrorIs(t, err, ErrPropertyMissing)
	registry.AssertNotCalled(t, "UpdateTwin", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAdjustInvalidRate(t *testing.T) {
	for _, rate := range []interface{}{"fast", true, map[string]interface{}{"value": 50.0}} {
		ctx := context.Background()
		registry := new(MockTwinRegistry)
		registry.On("GetTwin", ctx, "line-5").Return(twinWithRate("line-5", rate), nil)

		_, err := NewTwinAdjuster(registry, zap.NewNop()).Adjust(ctx, "line-5")

		assert.ErrorIs(t, err, ErrInvalidRate, "rate %v", rate)
		registry.AssertNotCalled(t, "UpdateTwin", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestAdjustPropagatesRegistryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		registry := new(MockTwinRegistry)
		registry.On("GetTwin", ctx, "line-3").Return(nil, ErrDeviceNotFound)

		_, err := NewTwinAdjuster(registry, zap.NewNop()).Adjust(ctx, "line-3")
		assert.ErrorIs(t, err, ErrDeviceNotFound)
		registry.AssertNotCalled(t, "UpdateTwin", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("conflict is not retried", func(t *testing.T) {
		registry := new(MockTwinRegistry)
		registry.On("GetTwin", ctx, "line-1").Return(twinWithRate("line-1", 50.0), nil).Once()
		registry.On("UpdateTwin", ctx, "line-1", ratePatch(40), "AAAAAAAAAAE=").Return(ErrPreconditionFailed).Once()

		_, err := NewTwinAdjuster(registry, zap.NewNop()).Adjust(ctx, "line-1")
		assert.ErrorIs(t, err, ErrPreconditionFailed)
		registry.AssertNumberOfCalls(t, "GetTwin", 1)
		registry.AssertNumberOfCalls(t, "UpdateTwin", 1)
	})

	t.Run("transport error", func(t *testing.T) {
		boom := errors.New("connection reset")
		registry := new(MockTwinRegistry)
		registry.On("GetTwin", ctx, "line-1").Return(nil, boom)

		_, err := NewTwinAdjuster(registry, zap.NewNop()).Adjust(ctx, "line-1")
		assert.ErrorIs(t, err, boom)
	})
}
