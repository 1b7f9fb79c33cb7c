// Package alert evaluates the latest z-score against the configured
// threshold and appends at most one alert per evaluation to the store.
//
// There is deliberately no cross-cycle deduplication or hysteresis: a breach
// sustained across N recompute cycles produces N alerts.
package alert

import (
	"context"
	"fmt"
	"log"
	"time"

	"pairwatch/internal/model"
	"pairwatch/internal/notification"
)

// Store is the alert sink. Satisfied by *sqlite.Store.
type Store interface {
	AppendAlert(a *model.Alert) error
}

// Detector is a stateless threshold evaluator.
type Detector struct {
	store     Store
	threshold float64
	notifiers []notification.Notifier
}

// New creates a detector with threshold t > 0 and an optional set of
// delivery backends.
func New(store Store, threshold float64, notifiers ...notification.Notifier) *Detector {
	return &Detector{store: store, threshold: threshold, notifiers: notifiers}
}

// Check evaluates z against the threshold. An undefined z never alerts.
// z > t emits Z_HIGH, z < -t emits Z_LOW; the conditions are mutually
// exclusive so at most one alert results. The alert is appended to the store
// (which assigns its ID) and then fanned out to the notifiers best-effort.
// Returns the emitted alert, or nil when no threshold was breached.
func (d *Detector) Check(ctx context.Context, pairKey string, z model.NullFloat) (*model.Alert, error) {
	if !z.Valid {
		return nil, nil
	}

	var a *model.Alert
	switch {
	case z.Value > d.threshold:
		a = &model.Alert{
			TS:      time.Now().UTC(),
			PairKey: pairKey,
			Kind:    model.AlertZHigh,
			Message: fmt.Sprintf("Z-Score (%.2f) > Threshold (%.2f)", z.Value, d.threshold),
			Value:   z.Value,
		}
	case z.Value < -d.threshold:
		a = &model.Alert{
			TS:      time.Now().UTC(),
			PairKey: pairKey,
			Kind:    model.AlertZLow,
			Message: fmt.Sprintf("Z-Score (%.2f) < Threshold (%.2f)", z.Value, -d.threshold),
			Value:   z.Value,
		}
	default:
		return nil, nil
	}

	if err := d.store.AppendAlert(a); err != nil {
		return nil, fmt.Errorf("alert append: %w", err)
	}

	for _, n := range d.notifiers {
		if err := n.Send(ctx, *a); err != nil {
			log.Printf("[alert] notifier error: %v", err)
		}
	}
	return a, nil
}
