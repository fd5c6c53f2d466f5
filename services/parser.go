package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rateadjuster/models"
)

// windowEndLayouts are tried in order; the zoneless layouts are read as UTC.
var windowEndLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

// ParseRecord decodes one blob line into a QualityRecord.
// Keys are matched exactly. Numeric fields that are missing or not numeric stay nil.
func ParseRecord(line string) (*models.QualityRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedRecord)
	}

	record := &models.QualityRecord{
		TotalGood:      parseNumber(fields["TotalGood"]),
		TotalProduced:  parseNumber(fields["TotalProduced"]),
		GoodPercentage: parseNumber(fields["GoodPercentage"]),
		WindowEnd:      parseWindowEnd(fields["WindowEnd"]),
	}
	if raw, ok := fields["DeviceName"]; ok {
		// A non-string name is treated like a missing one.
		_ = json.Unmarshal(raw, &record.DeviceName)
	}

	if record.DeviceName == "" {
		return nil, fmt.Errorf("%w: missing DeviceName", ErrIncompleteRecord)
	}
	if record.GoodPercentage == nil {
		return nil, fmt.Errorf("%w: missing GoodPercentage for %q", ErrIncompleteRecord, record.DeviceName)
	}

	return record, nil
}

func parseNumber(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}

	// A JSON null leaves the pointer nil.
	var n *float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseWindowEnd(raw json.RawMessage) time.Time {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return time.Time{}
	}
	for _, layout := range windowEndLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
