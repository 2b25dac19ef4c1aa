// Package events carries capsule opened events from the lifecycle engine to
// their consumers over an in-process watermill pub/sub.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/time-capsule/internal/model"
)

const (
	// TopicOpened receives one message per Locked -> Open transition.
	TopicOpened = "capsule.opened"
	// TopicOpenedPoison receives opened messages whose handlers kept failing.
	TopicOpenedPoison = "capsule.opened.poison"
)

// Config tunes delivery and retries. Zero fields take DefaultConfig values.
type Config struct {
	Buffer          int64
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	CloseTimeout    time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Buffer:          256,
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		CloseTimeout:    15 * time.Second,
	}
}

// OpenedHandler consumes one opened event. Returning an error triggers redelivery.
type OpenedHandler func(ctx context.Context, ev model.OpenedEvent) error

// Bus publishes opened events and routes them to registered handlers.
// Delivery is at-least-once, handlers must tolerate duplicates.
type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	log    *zap.Logger
}

// NewBus builds the pub/sub and its router with retry and poison-queue middleware.
func NewBus(cfg Config, log *zap.Logger) (*Bus, error) {
	def := DefaultConfig()
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = def.CloseTimeout
	}
	log = log.With(zap.String("component", "events"))
	wl := NewZapAdapter(log)

	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: cfg.Buffer}, wl)

	r, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, wl)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	poison, err := middleware.PoisonQueue(ps, TopicOpenedPoison)
	if err != nil {
		return nil, fmt.Errorf("create poison queue: %w", err)
	}
	retry := middleware.Retry{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      2,
		Logger:          wl,
	}
	r.AddMiddleware(poison, retry.Middleware, middleware.Recoverer)

	b := &Bus{pubsub: ps, router: r, log: log}
	r.AddConsumerHandler("opened_poison_log", TopicOpenedPoison, ps, b.logPoisoned)
	return b, nil
}

// PublishOpened emits ev on TopicOpened, detached from the caller's context.
func (b *Bus) PublishOpened(_ context.Context, ev model.OpenedEvent) error {
	payload, err := json.Marshal(toPayload(ev))
	if err != nil {
		return fmt.Errorf("encode opened event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("capsule_id", ev.Capsule.ID.String())
	if err := b.pubsub.Publish(TopicOpened, msg); err != nil {
		return fmt.Errorf("publish %s: %w", TopicOpened, err)
	}
	return nil
}

// OnOpened registers h under name. Call before Run.
func (b *Bus) OnOpened(name string, h OpenedHandler) {
	b.router.AddConsumerHandler(name, TopicOpened, b.pubsub, func(msg *message.Message) error {
		var p openedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode opened event %s: %w", msg.UUID, err)
		}
		return h(msg.Context(), p.event())
	})
}

// Run blocks until ctx is cancelled or Close is called.
func (b *Bus) Run(ctx context.Context) error { return b.router.Run(ctx) }

// Running is closed once all handlers subscribed.
func (b *Bus) Running() <-chan struct{} { return b.router.Running() }

// Close stops the router and the pub/sub.
func (b *Bus) Close() error {
	rerr := b.router.Close()
	if err := b.pubsub.Close(); err != nil && rerr == nil {
		rerr = err
	}
	return rerr
}

func (b *Bus) logPoisoned(msg *message.Message) error {
	b.log.Error("opened event dropped after retries",
		zap.String("message_id", msg.UUID),
		zap.String("capsule_id", msg.Metadata.Get("capsule_id")),
		zap.String("reason", msg.Metadata.Get(middleware.ReasonForPoisonedKey)),
	)
	return nil
}

type openedPayload struct {
	CapsuleID  uuid.UUID `json:"capsule_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	Title      string    `json:"title"`
	OpenAt     time.Time `json:"open_at"`
	OpenedAt   time.Time `json:"opened_at"`
	IsPrivate  bool      `json:"is_private"`
	SendToSelf bool      `json:"send_to_self"`
	Recipients []string  `json:"recipients,omitempty"`
}

func toPayload(ev model.OpenedEvent) openedPayload {
	c := ev.Capsule
	return openedPayload{
		CapsuleID:  c.ID,
		OwnerID:    c.OwnerID,
		Title:      c.Title,
		OpenAt:     c.OpenAt,
		OpenedAt:   ev.OpenedAt,
		IsPrivate:  c.IsPrivate,
		SendToSelf: c.SendToSelf,
		Recipients: c.Recipients,
	}
}

func (p openedPayload) event() model.OpenedEvent {
	at := p.OpenedAt
	return model.OpenedEvent{
		Capsule: model.Capsule{
			ID:         p.CapsuleID,
			OwnerID:    p.OwnerID,
			Title:      p.Title,
			OpenAt:     p.OpenAt,
			IsPrivate:  p.IsPrivate,
			SendToSelf: p.SendToSelf,
			Recipients: p.Recipients,
			State:      model.StateOpen,
			OpenedAt:   &at,
		},
		OpenedAt: p.OpenedAt,
	}
}
