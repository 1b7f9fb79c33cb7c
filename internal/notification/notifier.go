// Package notification delivers z-score threshold alerts to external
// channels (webhooks, Telegram). Delivery is best-effort: the alert log in
// the store is the source of truth, a failed send is logged and dropped.
package notification

import (
	"context"
	"log"

	"pairwatch/internal/model"
)

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert model.Alert) error
}

// LogNotifier logs alerts instead of delivering them (useful for development
// and as the default backend when nothing else is configured).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert model.Alert) error {
	log.Printf("[notify] [%s] %s: %s (z=%.4f)", alert.Kind, alert.PairKey, alert.Message, alert.Value)
	return nil
}
