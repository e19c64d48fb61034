package notification

import (
	"context"
	"log/slog"
)

const (
	// KindSettlementSubmitted indicates a committed entry was handed to settlement.
	KindSettlementSubmitted = "settlement_submitted"
	// KindSettled indicates settlement confirmed an entry.
	KindSettled = "settled"
	// KindCompensation indicates a failed settlement was reversed in the ledger.
	KindCompensation = "compensation"
)

// Message describes a notification payload.
type Message struct {
	Kind  string
	Owner string
	Seq   uint64
	Body  string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("owner", message.Owner),
		slog.Uint64("seq", message.Seq),
		slog.String("body", message.Body),
	)
	return nil
}

// Recorder keeps every message in memory. Useful for tests.
type Recorder struct {
	Messages []Message
}

// Send appends the message.
func (r *Recorder) Send(_ context.Context, message Message) error {
	r.Messages = append(r.Messages, message)
	return nil
}
