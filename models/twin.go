package models

import "time"

// ProductionRateProperty is the desired property this service controls.
const ProductionRateProperty = "ProductionRate"

// Twin is the part of a remote device twin the adjuster reads.
type Twin struct {
	DeviceID string                 `json:"device_id"`
	ETag     string                 `json:"etag"`
	Desired  map[string]interface{} `json:"desired"`
}

// Adjustment describes one successful ProductionRate write.
type Adjustment struct {
	DeviceID       string    `json:"device_id"`
	DeviceName     string    `json:"device_name"`
	PreviousRate   int       `json:"previous_rate"`
	NewRate        int       `json:"new_rate"`
	GoodPercentage float64   `json:"good_percentage"`
	WindowEnd      time.Time `json:"window_end"`
	BlobName       string    `json:"blob_name"`
	AdjustedAt     time.Time `json:"adjusted_at"`
}
