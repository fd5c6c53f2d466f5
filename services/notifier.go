package services

import (
	"context"
	"errors"

	"rateadjuster/models"
)

// AdjustmentNotifier announces a successful ProductionRate change.
type AdjustmentNotifier interface {
	NotifyAdjustment(ctx context.Context, adj *models.Adjustment) error
}

// MultiNotifier fans an adjustment out to every notifier, in order.
type MultiNotifier []AdjustmentNotifier

// NotifyAdjustment calls every notifier even if an earlier one fails.
func (m MultiNotifier) NotifyAdjustment(ctx context.Context, adj *models.Adjustment) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyAdjustment(ctx, adj); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
