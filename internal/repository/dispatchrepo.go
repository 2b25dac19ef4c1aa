package repository

import (
	"context"

	"github.com/and161185/time-capsule/internal/model"
	"github.com/gofrs/uuid/v5"
)

// DispatchLedger remembers which opened capsules were already fanned out.
type DispatchLedger interface {
	// Claim marks the capsule as dispatched; it returns false if it was claimed before.
	Claim(ctx context.Context, capsuleID uuid.UUID) (bool, error)
	// RecordDelivery stores the outcome of one notification.
	RecordDelivery(ctx context.Context, d model.Delivery) error
}

// OwnerDirectory resolves owner IDs to notification addresses.
type OwnerDirectory interface {
	// EmailOf returns the owner's address or errs.ErrNotFound.
	EmailOf(ctx context.Context, ownerID uuid.UUID) (string, error)
}
