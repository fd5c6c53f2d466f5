package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"rateadjuster/models"

	"go.uber.org/zap"
)

// maxLineBytes bounds a single blob line. Longer lines are skipped as malformed.
const maxLineBytes = 1 << 20

// BlobProcessor runs every line of a quality-metrics blob through
// parse, threshold, id normalization and twin adjustment.
type BlobProcessor struct {
	threshold *QualityThreshold
	adjuster  *TwinAdjuster
	notifier  AdjustmentNotifier
	logger    *zap.Logger
}

// NewBlobProcessor wires a processor. notifier may be nil.
func NewBlobProcessor(adjuster *TwinAdjuster, notifier AdjustmentNotifier, logger *zap.Logger) *BlobProcessor {
	return &BlobProcessor{
		threshold: NewQualityThreshold(),
		adjuster:  adjuster,
		notifier:  notifier,
		logger:    logger,
	}
}

// ProcessBlob handles one blob synchronously, line by line in file order.
// Per-line problems, over-long lines included, end up in the report; only a
// failure to read content is returned.
func (p *BlobProcessor) ProcessBlob(ctx context.Context, name string, content io.Reader) (*models.BlobReport, error) {
	p.logger.Info("Blob triggered", zap.String("blob", name))

	report := &models.BlobReport{BlobName: name}

	reader := bufio.NewReader(content)

	lineNo := 0
	for {
		line, tooLong, err := readLine(reader)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.logger.Error("Failed to read blob content",
				zap.String("blob", name),
				zap.Int("lines_read", lineNo),
				zap.Error(err))
			return report, fmt.Errorf("read blob %s: %w", name, err)
		}
		lineNo++

		if tooLong {
			p.logger.Debug("Skipping line",
				zap.String("blob", name),
				zap.Int("line", lineNo),
				zap.String("reason", string(models.ReasonMalformedRecord)),
				zap.Int("max_bytes", maxLineBytes))
			report.Add(models.RecordResult{
				Line:    lineNo,
				Outcome: models.OutcomeSkipped,
				Reason:  models.ReasonMalformedRecord,
				Err:     fmt.Errorf("%w: line exceeds %d bytes", ErrMalformedRecord, maxLineBytes),
			})
			continue
		}
		if strings.TrimSpace(line) == "" {
			report.Add(models.RecordResult{Line: lineNo, Outcome: models.OutcomeSkipped, Reason: models.ReasonBlankLine})
			continue
		}
		report.Add(p.processLine(ctx, name, lineNo, line))
	}

	p.logger.Info("Blob processed",
		zap.String("blob", name),
		zap.Int("lines", lineNo),
		zap.Int("adjusted", report.Adjusted),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))

	return report, nil
}

// readLine returns the next line without its terminator. Content past
// maxLineBytes is drained and reported through tooLong.
func readLine(r *bufio.Reader) (string, bool, error) {
	var buf []byte
	tooLong, read := false, false
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && read {
				return string(buf), tooLong, nil
			}
			return "", false, err
		}
		read = true
		if !tooLong {
			if len(buf)+len(chunk) > maxLineBytes {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}

func (p *BlobProcessor) processLine(ctx context.Context, blob string, lineNo int, line string) models.RecordResult {
	result := models.RecordResult{Line: lineNo}

	record, err := ParseRecord(line)
	if err != nil {
		result.Outcome = models.OutcomeSkipped
		result.Reason = models.ReasonMalformedRecord
		if errors.Is(err, ErrIncompleteRecord) {
			result.Reason = models.ReasonIncompleteRecord
		}
		result.Err = err
		p.logger.Debug("Skipping line",
			zap.String("blob", blob),
			zap.Int("line", lineNo),
			zap.String("reason", string(result.Reason)),
			zap.Error(err))
		return result
	}
	result.DeviceName = record.DeviceName

	if !p.threshold.ShouldAdjust(record) {
		result.Outcome = models.OutcomeSkipped
		result.Reason = models.ReasonQualityOK
		return result
	}

	deviceID := NormalizeDeviceID(record.DeviceName)
	result.DeviceID = deviceID

	p.logger.Warn("Low quality detected",
		zap.String("device_id", deviceID),
		zap.String("check", p.threshold.Describe(record)),
		zap.Float64("good_percentage", *record.GoodPercentage),
		zap.Time("window_end", record.WindowEnd))

	adjustment, err := p.adjuster.Adjust(ctx, deviceID)
	if err != nil {
		return p.classifyFailure(result, err)
	}

	adjustment.DeviceName = record.DeviceName
	adjustment.GoodPercentage = *record.GoodPercentage
	adjustment.WindowEnd = record.WindowEnd
	adjustment.BlobName = blob

	result.Outcome = models.OutcomeAdjusted
	result.Adjustment = adjustment

	p.logger.Info("Updated production rate",
		zap.String("device_id", deviceID),
		zap.Int("previous_rate", adjustment.PreviousRate),
		zap.Int("new_rate", adjustment.NewRate))

	if p.notifier != nil {
		if err := p.notifier.NotifyAdjustment(ctx, adjustment); err != nil {
			p.logger.Warn("Failed to publish adjustment",
				zap.String("device_id", deviceID),
				zap.Error(err))
		}
	}

	return result
}

// classifyFailure maps an adjuster error to a result and logs it at the matching level.
func (p *BlobProcessor) classifyFailure(result models.RecordResult, err error) models.RecordResult {
	result.Err = err
	fields := []zap.Field{zap.String("device_id", result.DeviceID), zap.Error(err)}

	switch {
	case errors.Is(err, ErrPropertyMissing):
		result.Outcome = models.OutcomeSkipped
		result.Reason = models.ReasonPropertyMissing
		p.logger.Warn("No desired ProductionRate set", fields...)
	case errors.Is(err, ErrDeviceNotFound):
		result.Outcome = models.OutcomeFailed
		result.Reason = models.ReasonDeviceNotFound
		p.logger.Warn("Device not found in registry", fields...)
	case errors.Is(err, ErrPreconditionFailed):
		result.Outcome = models.OutcomeFailed
		result.Reason = models.ReasonConcurrencyConflict
		p.logger.Error("Twin changed concurrently, update dropped", fields...)
	case errors.Is(err, ErrInvalidRate):
		result.Outcome = models.OutcomeFailed
		result.Reason = models.ReasonInvalidRate
		p.logger.Error("Desired ProductionRate is not a number", fields...)
	default:
		result.Outcome = models.OutcomeFailed
		result.Reason = models.ReasonRegistryError
		p.logger.Error("Error updating twin", fields...)
	}

	return result
}
