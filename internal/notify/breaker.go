package notify

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerConfig tunes BreakerNotifier.
type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// BreakerNotifier stops calling a failing transport for a while instead of
// waiting on it once per recipient.
type BreakerNotifier struct {
	next Notifier
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerNotifier wraps next in a circuit breaker.
func NewBreakerNotifier(next Notifier, cfg BreakerConfig, log *zap.Logger) *BreakerNotifier {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "notifier",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &BreakerNotifier{next: next, cb: cb}
}

// Send fails fast with gobreaker.ErrOpenState while the breaker is open.
func (b *BreakerNotifier) Send(ctx context.Context, address, subject, body string) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Send(ctx, address, subject, body)
	})
	return err
}

// State exposes the breaker state for health reporting.
func (b *BreakerNotifier) State() gobreaker.State { return b.cb.State() }

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.With(zap.String("component", "notifier"))}
}

// Send logs the message.
func (n *LogNotifier) Send(_ context.Context, address, subject, body string) error {
	n.log.Info("notification", zap.String("to", address), zap.String("subject", subject), zap.Int("body_len", len(body)))
	return nil
}
