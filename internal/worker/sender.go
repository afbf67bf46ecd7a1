package worker

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// OutboundMessage is one rendered message ready to be sent to a recipient's
// profile.
type OutboundMessage struct {
	DeliveryID    string
	ProfileHandle string
	Body          string
}

// Sender pushes a rendered message to the outside world.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// ErrSendRejected is the failure a simulated send reports.
var ErrSendRejected = errors.New("send rejected by provider")

// SimulatedSender stands in for a real messaging provider. It sleeps for a
// configurable latency and fails a configurable fraction of sends, which is
// enough to exercise the retry and failure-recording paths.
type SimulatedSender struct {
	successRate float64
	latency     time.Duration
	logger      *slog.Logger
}

// NewSimulatedSender creates a sender that succeeds with the given
// probability. Rates outside [0, 1] are clamped.
func NewSimulatedSender(successRate float64, latency time.Duration, logger *slog.Logger) *SimulatedSender {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	return &SimulatedSender{
		successRate: successRate,
		latency:     latency,
		logger:      logger,
	}
}

func (s *SimulatedSender) Send(ctx context.Context, msg OutboundMessage) error {
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if rand.Float64() >= s.successRate {
		return ErrSendRejected
	}

	s.logger.Info("message sent",
		"delivery_id", msg.DeliveryID,
		"profile_handle", msg.ProfileHandle,
		"chars", len(msg.Body),
	)
	return nil
}
