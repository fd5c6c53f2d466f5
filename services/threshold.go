package services

import (
	"fmt"

	"rateadjuster/models"
)

// QualityThresholdPercent is the good-percentage under which a device is slowed down.
const QualityThresholdPercent = 90.0

// QualityThreshold decides whether a record triggers a rate adjustment.
type QualityThreshold struct {
	limit float64
}

// NewQualityThreshold returns a threshold at QualityThresholdPercent.
func NewQualityThreshold() *QualityThreshold {
	return &QualityThreshold{
		limit: QualityThresholdPercent,
	}
}

// ShouldAdjust returns true when the record is actionable and strictly below the threshold.
func (q *QualityThreshold) ShouldAdjust(record *models.QualityRecord) bool {
	if record == nil || !record.Actionable() {
		return false
	}
	return *record.GoodPercentage < q.limit
}

// Describe renders the comparison for log messages.
func (q *QualityThreshold) Describe(record *models.QualityRecord) string {
	if record == nil || record.GoodPercentage == nil {
		return "no good percentage"
	}
	return fmt.Sprintf("good percentage %.1f%% against threshold %.1f%%", *record.GoodPercentage, q.limit)
}
