package models

import (
	"time"
)

// QualityRecord is one line of a quality-metrics blob.
// Optional numeric fields are nil when absent or not numeric.
type QualityRecord struct {
	DeviceName     string    `json:"DeviceName"`
	WindowEnd      time.Time `json:"WindowEnd"`
	TotalGood      *float64  `json:"TotalGood,omitempty"`
	TotalProduced  *float64  `json:"TotalProduced,omitempty"`
	GoodPercentage *float64  `json:"GoodPercentage,omitempty"`
}

// Actionable reports whether the record carries enough data to be evaluated.
func (r *QualityRecord) Actionable() bool {
	return r.DeviceName != "" && r.GoodPercentage != nil
}
