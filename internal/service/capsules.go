// Package service contains the capsule lifecycle engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/time-capsule/internal/countdown"
	"github.com/and161185/time-capsule/internal/errs"
	"github.com/and161185/time-capsule/internal/limiter"
	"github.com/and161185/time-capsule/internal/media"
	"github.com/and161185/time-capsule/internal/metrics"
	"github.com/and161185/time-capsule/internal/model"
	"github.com/and161185/time-capsule/internal/recipient"
	"github.com/and161185/time-capsule/internal/repository"
)

// DefaultMinLead is how far in the future a new capsule's open time must be.
const DefaultMinLead = time.Hour

// CapsuleService defines the capsule lifecycle operations.
type CapsuleService interface {
	// Create validates a draft and stores it as a locked capsule.
	Create(ctx context.Context, d model.Draft) (*model.Capsule, error)
	// Evaluate reports state and time remaining without side effects.
	Evaluate(ctx context.Context, id uuid.UUID, now time.Time) (model.Evaluation, error)
	// Open transitions an eligible capsule to open exactly once; repeated calls are no-ops.
	Open(ctx context.Context, id uuid.UUID, now time.Time) (*model.Capsule, error)
	// Get returns the stored capsule.
	Get(ctx context.Context, id uuid.UUID) (*model.Capsule, error)
	// ListByOwner returns every capsule of the owner, newest first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Capsule, error)
}

// EventPublisher emits opened events to the dispatcher.
type EventPublisher interface {
	PublishOpened(ctx context.Context, ev model.OpenedEvent) error
}

// CapsuleConfig tunes creation policy.
type CapsuleConfig struct {
	MinLead       time.Duration
	MaxRecipients int
	Media         media.Limits
}

type CapsuleServiceImpl struct {
	repo       repository.CapsuleRepository
	pub        EventPublisher
	recipients *recipient.Validator
	limits     media.Limits
	minLead    time.Duration
	quota      limiter.Limiter
	log        *zap.Logger

	now   func() time.Time
	newID func() (uuid.UUID, error)
}

// NewCapsuleService constructs CapsuleService. A nil limiter disables creation quotas.
func NewCapsuleService(
	repo repository.CapsuleRepository, pub EventPublisher, quota limiter.Limiter, cfg CapsuleConfig, log *zap.Logger,
) *CapsuleServiceImpl {
	if cfg.MinLead <= 0 {
		cfg.MinLead = DefaultMinLead
	}
	if quota == nil {
		quota = limiter.Unlimited{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CapsuleServiceImpl{
		repo:       repo,
		pub:        pub,
		recipients: recipient.New(cfg.MaxRecipients),
		limits:     cfg.Media,
		minLead:    cfg.MinLead,
		quota:      quota,
		log:        log.With(zap.String("component", "capsules")),
		now:        time.Now,
		newID:      uuid.NewV4,
	}
}

// Create collects every input problem into one ValidationError before touching storage.
func (s *CapsuleServiceImpl) Create(ctx context.Context, d model.Draft) (*model.Capsule, error) {
	now := s.now()
	var verr errs.ValidationError

	if d.OwnerID == uuid.Nil {
		verr.Add("owner_id", "is required")
	}
	if strings.TrimSpace(d.Title) == "" {
		verr.Add("title", "must not be empty")
	}
	if strings.TrimSpace(d.Message) == "" {
		verr.Add("message", "must not be empty")
	}
	switch {
	case d.OpenAt.IsZero():
		verr.Add("open_at", "is required")
	case !d.OpenAt.After(now.Add(s.minLead)):
		verr.Add("open_at", fmt.Sprintf("must be more than %s in the future", countdown.Humanize(s.minLead)))
	}

	var clean []string
	if d.IsPrivate {
		if hasAny(d.Recipients) {
			verr.Add("recipients", "a private capsule cannot have recipients")
		}
	} else {
		var problems []errs.FieldError
		clean, problems = s.recipients.Validate(d.Recipients)
		verr.Append(problems...)
	}
	verr.Append(s.limits.Validate(d.Media)...)

	if err := verr.Err(); err != nil {
		metrics.CreateRejected.Inc()
		return nil, err
	}

	if ok, retry, err := s.quota.Allow(ctx, d.OwnerID.String()); err != nil {
		return nil, errs.Repo("create quota", err)
	} else if !ok {
		return nil, &errs.RateLimitedError{RetryAfter: retry}
	}

	id, err := s.newID()
	if err != nil {
		return nil, err
	}
	c := &model.Capsule{
		ID:         id,
		OwnerID:    d.OwnerID,
		Title:      d.Title,
		Message:    d.Message,
		OpenAt:     storedTime(d.OpenAt),
		IsPrivate:  d.IsPrivate,
		SendToSelf: d.SendToSelf,
		Media:      d.Media,
		State:      model.StateLocked,
		CreatedAt:  storedTime(now),
	}
	if len(clean) > 0 {
		c.Recipients = clean
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return nil, errs.Repo("insert capsule", err)
	}
	metrics.CapsulesCreated.Inc()
	s.log.Info("capsule created",
		zap.Stringer("capsule_id", c.ID),
		zap.Stringer("owner_id", c.OwnerID),
		zap.Time("open_at", c.OpenAt),
		zap.Int("recipients", len(c.Recipients)),
		zap.Int("media", len(c.Media)),
	)
	return c, nil
}

// Evaluate never writes; Remaining is clamped at zero.
func (s *CapsuleServiceImpl) Evaluate(ctx context.Context, id uuid.UUID, now time.Time) (model.Evaluation, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Evaluation{}, errs.Repo("get capsule", err)
	}
	ev := model.Evaluation{CapsuleID: c.ID, State: c.State, OpenAt: c.OpenAt, OpenedAt: c.OpenedAt}
	if c.State == model.StateLocked && now.Before(c.OpenAt) {
		ev.Remaining = c.OpenAt.Sub(now)
	}
	return ev, nil
}

// storedTime matches the microsecond precision of timestamptz so that what
// callers see equals what a later read returns.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Open relies solely on the repository's compare-and-set; losers of a race
// re-read the capsule and report it as opened.
func (s *CapsuleServiceImpl) Open(ctx context.Context, id uuid.UUID, now time.Time) (*model.Capsule, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			metrics.RecordOpen(metrics.OutcomeError)
		}
		return nil, errs.Repo("get capsule", err)
	}
	if c.IsOpen() {
		metrics.RecordOpen(metrics.OutcomeAlreadyOpen)
		return c, nil
	}
	if now.Before(c.OpenAt) {
		metrics.RecordOpen(metrics.OutcomeNotYetEligible)
		return nil, &errs.NotYetEligibleError{Remaining: c.OpenAt.Sub(now)}
	}

	now = storedTime(now)
	won, err := s.repo.CompareAndSetOpen(ctx, id, model.StateLocked, now)
	if err != nil {
		metrics.RecordOpen(metrics.OutcomeError)
		return nil, errs.Repo("open capsule", err)
	}
	if !won {
		metrics.RecordOpen(metrics.OutcomeRaceLost)
		cur, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, errs.Repo("get capsule", err)
		}
		if !cur.IsOpen() {
			return nil, errs.Repo("open capsule", fmt.Errorf("capsule %s still %s after lost race", id, cur.State))
		}
		return cur, nil
	}

	openedAt := now
	c.State = model.StateOpen
	c.OpenedAt = &openedAt
	metrics.RecordOpen(metrics.OutcomeOpened)
	metrics.OpenLag.Observe(openedAt.Sub(c.OpenAt).Seconds())
	s.log.Info("capsule opened", zap.Stringer("capsule_id", c.ID), zap.Time("opened_at", openedAt))

	if err := s.pub.PublishOpened(ctx, model.OpenedEvent{Capsule: *c, OpenedAt: openedAt}); err != nil {
		// The transition is durable; a lost event only skips notifications.
		metrics.EventPublishFailures.Inc()
		s.log.Error("publish opened event", zap.Stringer("capsule_id", c.ID), zap.Error(err))
	}
	return c, nil
}

// Get returns a snapshot of the capsule.
func (s *CapsuleServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.Capsule, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, errs.Repo("get capsule", err)
	}
	return c, nil
}

// ListByOwner returns the owner's capsules.
func (s *CapsuleServiceImpl) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Capsule, error) {
	if ownerID == uuid.Nil {
		return nil, &errs.ValidationError{Fields: []errs.FieldError{{Field: "owner_id", Reason: "is required"}}}
	}
	list, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, errs.Repo("list capsules", err)
	}
	return list, nil
}

func hasAny(raw []string) bool {
	for _, r := range raw {
		if strings.TrimSpace(r) != "" {
			return true
		}
	}
	return false
}
