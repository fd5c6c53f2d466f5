package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"rateadjuster/models"

	"go.uber.org/zap"
)

const (
	// RateStep is how many percentage points one low-quality record removes.
	RateStep = 10
	// RateFloor is the lowest rate the adjuster will write.
	RateFloor = 10
)

// TwinRegistry is the slice of a device registry the adjuster needs.
type TwinRegistry interface {
	// GetTwin returns ErrDeviceNotFound when the registry has no such device.
	GetTwin(ctx context.Context, deviceID string) (*models.Twin, error)
	// UpdateTwin merges patch into the desired properties if etag still matches,
	// otherwise it returns ErrPreconditionFailed.
	UpdateTwin(ctx context.Context, deviceID string, patch map[string]interface{}, etag string) error
}

// TwinAdjuster performs a single conditional read-modify-write of ProductionRate.
type TwinAdjuster struct {
	registry TwinRegistry
	logger   *zap.Logger
	now      func() time.Time
}

// NewTwinAdjuster returns an adjuster writing through registry.
func NewTwinAdjuster(registry TwinRegistry, logger *zap.Logger) *TwinAdjuster {
	return &TwinAdjuster{
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// NextRate lowers a rate by RateStep without going under RateFloor.
func NextRate(current int) int {
	return max(current-RateStep, RateFloor)
}

// Adjust lowers the desired ProductionRate of deviceID by one step.
// It does not retry: a concurrent modification surfaces as ErrPreconditionFailed.
func (a *TwinAdjuster) Adjust(ctx context.Context, deviceID string) (*models.Adjustment, error) {
	twin, err := a.registry.GetTwin(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("get twin %s: %w", deviceID, err)
	}

	raw, ok := twin.Desired[models.ProductionRateProperty]
	if !ok || raw == nil {
		return nil, fmt.Errorf("%s on %s: %w", models.ProductionRateProperty, deviceID, ErrPropertyMissing)
	}

	current, err := rateValue(raw)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", models.ProductionRateProperty, deviceID, err)
	}

	next := NextRate(current)
	patch := map[string]interface{}{
		models.ProductionRateProperty: next,
	}

	a.logger.Debug("Writing production rate",
		zap.String("device_id", deviceID),
		zap.Int("current_rate", current),
		zap.Int("new_rate", next),
		zap.String("etag", twin.ETag))

	if err := a.registry.UpdateTwin(ctx, deviceID, patch, twin.ETag); err != nil {
		return nil, fmt.Errorf("update twin %s: %w", deviceID, err)
	}

	return &models.Adjustment{
		DeviceID:     deviceID,
		PreviousRate: current,
		NewRate:      next,
		AdjustedAt:   a.now().UTC(),
	}, nil
}

// rateValue converts a decoded desired property into an integer percent.
func rateValue(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidRate, n)
		}
		return int(math.RoundToEven(n)), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidRate, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidRate, v)
	}
}
