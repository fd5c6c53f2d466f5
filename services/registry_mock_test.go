package services

import (
	"context"

	"rateadjuster/models"

	"github.com/stretchr/testify/mock"
)

// MockTwinRegistry is a testify mock of TwinRegistry.
type MockTwinRegistry struct {
	mock.Mock
}

func (m *MockTwinRegistry) GetTwin(ctx context.Context, deviceID string) (*models.Twin, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Twin), args.Error(1)
}

func (m *MockTwinRegistry) UpdateTwin(ctx context.Context, deviceID string, patch map[string]interface{}, etag string) error {
	args := m.Called(ctx, deviceID, patch, etag)
	return args.Error(0)
}

func twinWithRate(deviceID string, rate interface{}) *models.Twin {
	return &models.Twin{
		DeviceID: deviceID,
		ETag:     "AAAAAAAAAAE=",
		Desired:  map[string]interface{}{models.ProductionRateProperty: rate, "$version": 3.0},
	}
}

func ratePatch(rate int) map[string]interface{} {
	return map[string]interface{}{models.ProductionRateProperty: rate}
}
