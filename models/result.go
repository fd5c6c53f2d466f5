package models

// Outcome is the final state of a single blob line.
type Outcome string

const (
	OutcomeAdjusted Outcome = "adjusted"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// Reason explains a skipped or failed line.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonBlankLine           Reason = "blank_line"
	ReasonMalformedRecord     Reason = "malformed_record"
	ReasonIncompleteRecord    Reason = "incomplete_record"
	ReasonQualityOK           Reason = "quality_ok"
	ReasonPropertyMissing     Reason = "property_missing"
	ReasonDeviceNotFound      Reason = "device_not_found"
	ReasonConcurrencyConflict Reason = "concurrency_conflict"
	ReasonInvalidRate         Reason = "invalid_rate"
	ReasonRegistryError       Reason = "registry_error"
)

// RecordResult is what happened to one line of a blob.
type RecordResult struct {
	Line       int         `json:"line"`
	DeviceName string      `json:"device_name,omitempty"`
	DeviceID   string      `json:"device_id,omitempty"`
	Outcome    Outcome     `json:"outcome"`
	Reason     Reason      `json:"reason,omitempty"`
	Adjustment *Adjustment `json:"adjustment,omitempty"`
	Err        error       `json:"-"`
}

// BlobReport aggregates the results of one blob invocation.
type BlobReport struct {
	BlobName string         `json:"blob_name"`
	Results  []RecordResult `json:"results"`
	Adjusted int            `json:"adjusted"`
	Skipped  int            `json:"skipped"`
	Failed   int            `json:"failed"`
}

// Add appends a result and updates the counters.
func (b *BlobReport) Add(r RecordResult) {
	b.Results = append(b.Results, r)
	switch r.Outcome {
	case OutcomeAdjusted:
		b.Adjusted++
	case OutcomeSkipped:
		b.Skipped++
	case OutcomeFailed:
		b.Failed++
	}
}

// Adjustments returns the adjustments made while processing the blob.
func (b *BlobReport) Adjustments() []*Adjustment {
	var out []*Adjustment
	for _, r := range b.Results {
		if r.Adjustment != nil {
			out = append(out, r.Adjustment)
		}
	}
	return out
}
