package services

import (
	"testing"

	"rateadjuster/models"

	"github.com/stretchr/testify/assert"
)

func qualityRecord(name string, pct float64) *models.QualityRecord {
	return &models.QualityRecord{DeviceName: name, GoodPercentage: &pct}
}

func TestQualityThresholdShouldAdjust(t *testing.T) {
	threshold := NewQualityThreshold()

	tests := []struct {
		pct  float64
		want bool
	}{
		{0, true},
		{85, true},
		{89.99, true},
		{90, false},
		{90.01, false},
		{95, false},
		{100, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, threshold.ShouldAdjust(qualityRecord("Line 1", tt.pct)), "good percentage %v", tt.pct)
	}
}

func TestQualityThresholdIgnoresIncompleteRecords(t *testing.T) {
	threshold := NewQualityThreshold()

	assert.False(t, threshold.ShouldAdjust(nil))
	assert.False(t, threshold.ShouldAdjust(&models.QualityRecord{DeviceName: "Line 1"}))
	assert.False(t, threshold.ShouldAdjust(qualityRecord("", 10)))
}

func TestQualityThresholdDescribe(t *testing.T) {
	threshold := NewQualityThreshold()

	assert.Equal(t, "good percentage 85.0% against threshold 90.0%", threshold.Describe(qualityRecord("Line 1", 85)))
	assert.Equal(t, "no good percentage", threshold.Describe(&models.QualityRecord{}))
}
