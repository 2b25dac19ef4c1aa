package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/time-capsule/internal/errs"
	"github.com/and161185/time-capsule/internal/metrics"
	"github.com/and161185/time-capsule/internal/model"
	"github.com/and161185/time-capsule/internal/repository"
)

// DispatcherConfig bounds the fan-out.
type DispatcherConfig struct {
	Parallelism int
	SendTimeout time.Duration
	ViewURL     string
}

// Report summarizes one dispatch.
type Report struct {
	Duplicate bool
	Sent      []Message
	Failures  []*errs.NotificationFailure
}

// Dispatcher sends notifications for opened capsules at most once per capsule.
type Dispatcher struct {
	notifier Notifier
	ledger   repository.DispatchLedger
	owners   repository.OwnerDirectory
	cfg      DispatcherConfig
	log      *zap.Logger
	now      func() time.Time
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(
	n Notifier, ledger repository.DispatchLedger, owners repository.OwnerDirectory, cfg DispatcherConfig, log *zap.Logger,
) *Dispatcher {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 8
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Dispatcher{
		notifier: n,
		ledger:   ledger,
		owners:   owners,
		cfg:      cfg,
		log:      log.With(zap.String("component", "dispatcher")),
		now:      time.Now,
	}
}

// Handle adapts Dispatch to the event bus; only ledger failures are returned so
// that the bus redelivers before anything was sent.
func (d *Dispatcher) Handle(ctx context.Context, ev model.OpenedEvent) error {
	_, err := d.Dispatch(ctx, ev)
	return err
}

// Dispatch claims the capsule and sends every message independently.
// Per-address failures end up in the report, never in the returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, ev model.OpenedEvent) (*Report, error) {
	c := ev.Capsule
	log := d.log.With(zap.Stringer("capsule_id", c.ID))

	first, err := d.ledger.Claim(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("claim capsule %s: %w", c.ID, err)
	}
	if !first {
		metrics.DispatchDuplicates.Inc()
		log.Info("duplicate opened event ignored")
		return &Report{Duplicate: true}, nil
	}

	rep := &Report{}
	var ownerEmail string
	if NeedsOwner(c) {
		ownerEmail, err = d.owners.EmailOf(ctx, c.OwnerID)
		if err != nil {
			f := &errs.NotificationFailure{CapsuleID: c.ID, Err: fmt.Errorf("resolve owner %s: %w", c.OwnerID, err)}
			rep.Failures = append(rep.Failures, f)
			metrics.RecordNotification(string(model.RoleOwner), false)
			log.Warn("owner address unavailable", zap.Stringer("owner_id", c.OwnerID), zap.Error(err))
		}
	}

	msgs := BuildMessages(c, ev.OpenedAt, ownerEmail, d.cfg.ViewURL)
	results := make([]error, len(msgs))

	var g errgroup.Group
	g.SetLimit(d.cfg.Parallelism)
	for i, m := range msgs {
		g.Go(func() error {
			results[i] = d.send(ctx, c, m)
			return nil
		})
	}
	_ = g.Wait()

	for i, m := range msgs {
		if results[i] == nil {
			rep.Sent = append(rep.Sent, m)
			continue
		}
		rep.Failures = append(rep.Failures, &errs.NotificationFailure{CapsuleID: c.ID, Address: m.Address, Err: results[i]})
	}
	log.Info("capsule notifications dispatched",
		zap.Int("sent", len(rep.Sent)),
		zap.Int("failed", len(rep.Failures)),
	)
	return rep, nil
}

func (d *Dispatcher) send(ctx context.Context, c model.Capsule, m Message) error {
	sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	err := d.notifier.Send(sctx, m.Address, m.Subject, m.Body)
	cancel()

	ok := err == nil
	metrics.RecordNotification(string(m.Role), ok)
	rec := model.Delivery{CapsuleID: c.ID, Address: m.Address, Role: m.Role, OK: ok, AttemptedAt: d.now().UTC()}
	if !ok {
		rec.Error = err.Error()
		d.log.Warn("notification failed",
			zap.Stringer("capsule_id", c.ID),
			zap.String("address", m.Address),
			zap.String("role", string(m.Role)),
			zap.Error(err),
		)
	}
	// Delivery rows are written with the parent context so a send timeout does not drop them.
	if rerr := d.ledger.RecordDelivery(ctx, rec); rerr != nil && !errors.Is(rerr, context.Canceled) {
		d.log.Error("record delivery", zap.Stringer("capsule_id", c.ID), zap.String("address", m.Address), zap.Error(rerr))
	}
	return err
}
