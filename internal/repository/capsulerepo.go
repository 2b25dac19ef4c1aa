// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/time-capsule/internal/model"
	"github.com/gofrs/uuid/v5"
)

// CapsuleRepository provides durable keyed storage for capsules.
type CapsuleRepository interface {
	// Insert stores a new capsule.
	Insert(ctx context.Context, c *model.Capsule) error
	// Get loads a capsule by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Capsule, error)
	// CompareAndSetOpen sets state=open and opened_at only if the current state equals expected.
	// It reports whether this call performed the write.
	CompareAndSetOpen(ctx context.Context, id uuid.UUID, expected model.State, openedAt time.Time) (bool, error)
	// ListDue returns up to limit locked capsule IDs whose open_at <= now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	// ListByOwner returns the owner's capsules, newest first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Capsule, error)
}
