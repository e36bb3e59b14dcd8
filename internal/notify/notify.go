// Package notify delivers plain-text messages to users.
package notify

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Message is a single email-style notification.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Notifier sends messages. Implementations may deliver asynchronously.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

var sentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "zaloga_notifications_total",
		Help: "Notifications handed to a delivery channel, by channel and result.",
	},
	[]string{"channel", "result"},
)

func observe(channel string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	sentTotal.WithLabelValues(channel, result).Inc()
}

// Log writes messages to the structured log instead of delivering them.
// Used when no mail server is configured.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Send(_ context.Context, msg Message) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "to", msg.To, "subject", msg.Subject)
	observe("log", nil)
	return nil
}
