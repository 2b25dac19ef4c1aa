// Package memory holds in-process repository implementations used for
// development and tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/time-capsule/internal/errs"
	"github.com/and161185/time-capsule/internal/model"
)

// CapsuleRepo is a mutex-guarded map of capsules. Reads return copies.
type CapsuleRepo struct {
	mu       sync.Mutex
	capsules map[uuid.UUID]*model.Capsule
	writes   atomic.Int64
}

// NewCapsuleRepo returns an empty repository.
func NewCapsuleRepo() *CapsuleRepo {
	return &CapsuleRepo{capsules: make(map[uuid.UUID]*model.Capsule)}
}

// Insert stores a copy of c with times at microsecond precision.
func (r *CapsuleRepo) Insert(_ context.Context, c *model.Capsule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.capsules[c.ID]; ok {
		return errs.ErrAlreadyExists
	}
	cp := clone(c)
	cp.OpenAt = cp.OpenAt.Truncate(time.Microsecond)
	cp.CreatedAt = cp.CreatedAt.Truncate(time.Microsecond)
	r.capsules[c.ID] = cp
	return nil
}

// Get returns a copy of the stored capsule.
func (r *CapsuleRepo) Get(_ context.Context, id uuid.UUID) (*model.Capsule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.capsules[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return clone(c), nil
}

// CompareAndSetOpen mirrors the conditional UPDATE of the SQL backend,
// including its microsecond timestamp precision.
func (r *CapsuleRepo) CompareAndSetOpen(_ context.Context, id uuid.UUID, expected model.State, openedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.capsules[id]
	if !ok {
		return false, nil
	}
	at := openedAt.Truncate(time.Microsecond)
	if c.State != expected || at.Before(c.OpenAt) {
		return false, nil
	}
	c.State = model.StateOpen
	c.OpenedAt = &at
	r.writes.Add(1)
	return true, nil
}

// ListDue returns locked capsules due at now, oldest open time first.
func (r *CapsuleRepo) ListDue(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	due := make([]*model.Capsule, 0)
	for _, c := range r.capsules {
		if c.State == model.StateLocked && !c.OpenAt.After(now) {
			due = append(due, c)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].OpenAt.Before(due[j].OpenAt) })
	ids := make([]uuid.UUID, 0, len(due))
	for _, c := range due {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, c.ID)
	}
	r.mu.Unlock()
	return ids, nil
}

// ListByOwner returns the owner's capsules, newest first.
func (r *CapsuleRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]model.Capsule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Capsule
	for _, c := range r.capsules {
		if c.OwnerID == ownerID {
			out = append(out, *clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// OpenWrites reports how many CompareAndSetOpen calls performed the write.
func (r *CapsuleRepo) OpenWrites() int64 { return r.writes.Load() }

func clone(c *model.Capsule) *model.Capsule {
	cp := *c
	cp.Recipients = slices.Clone(c.Recipients)
	cp.Media = slices.Clone(c.Media)
	if c.OpenedAt != nil {
		at := *c.OpenedAt
		cp.OpenedAt = &at
	}
	return &cp
}

// Ledger is an in-memory dispatch ledger.
type Ledger struct {
	mu         sync.Mutex
	claimed    map[uuid.UUID]struct{}
	deliveries []model.Delivery
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{claimed: make(map[uuid.UUID]struct{})}
}

// Claim returns true only for the first call per capsule.
func (l *Ledger) Claim(_ context.Context, capsuleID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.claimed[capsuleID]; ok {
		return false, nil
	}
	l.claimed[capsuleID] = struct{}{}
	return true, nil
}

// RecordDelivery appends d.
func (l *Ledger) RecordDelivery(_ context.Context, d model.Delivery) error {
	l.mu.Lock()
	l.deliveries = append(l.deliveries, d)
	l.mu.Unlock()
	return nil
}

// Deliveries returns the recorded outcomes for one capsule.
func (l *Ledger) Deliveries(capsuleID uuid.UUID) []model.Delivery {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Delivery
	for _, d := range l.deliveries {
		if d.CapsuleID == capsuleID {
			out = append(out, d)
		}
	}
	return out
}

// Owners is an in-memory owner directory.
type Owners struct {
	mu     sync.RWMutex
	emails map[uuid.UUID]string
}

// NewOwners returns an empty directory.
func NewOwners() *Owners { return &Owners{emails: make(map[uuid.UUID]string)} }

// Upsert sets the owner's address.
func (o *Owners) Upsert(_ context.Context, ownerID uuid.UUID, email string) error {
	o.mu.Lock()
	o.emails[ownerID] = email
	o.mu.Unlock()
	return nil
}

// EmailOf returns the owner's address or errs.ErrNotFound.
func (o *Owners) EmailOf(_ context.Context, ownerID uuid.UUID) (string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.emails[ownerID]
	if !ok {
		return "", errs.ErrNotFound
	}
	return e, nil
}
