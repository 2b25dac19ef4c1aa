package service

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/time-capsule/internal/errs"
	"github.com/and161185/time-capsule/internal/recipient"
)

// OwnerStore persists owner notification addresses.
type OwnerStore interface {
	Upsert(ctx context.Context, ownerID uuid.UUID, email string) error
	EmailOf(ctx context.Context, ownerID uuid.UUID) (string, error)
}

// OwnerService manages the address used for send-to-self notifications.
type OwnerService interface {
	// SetEmail validates and stores the owner's address.
	SetEmail(ctx context.Context, ownerID uuid.UUID, email string) (string, error)
	// Email returns the stored address or errs.ErrNotFound.
	Email(ctx context.Context, ownerID uuid.UUID) (string, error)
}

type OwnerServiceImpl struct {
	store OwnerStore
	check *recipient.Validator
}

// NewOwnerService constructs OwnerService.
func NewOwnerService(store OwnerStore) *OwnerServiceImpl {
	return &OwnerServiceImpl{store: store, check: recipient.New(1)}
}

// SetEmail normalizes email the same way recipient addresses are normalized.
func (s *OwnerServiceImpl) SetEmail(ctx context.Context, ownerID uuid.UUID, email string) (string, error) {
	var verr errs.ValidationError
	if ownerID == uuid.Nil {
		verr.Add("owner_id", "is required")
	}
	clean, problems := s.check.Validate([]string{email})
	for _, p := range problems {
		verr.Add("email", p.Reason)
	}
	if len(problems) == 0 && len(clean) == 0 {
		verr.Add("email", "must not be empty")
	}
	if err := verr.Err(); err != nil {
		return "", err
	}
	if err := s.store.Upsert(ctx, ownerID, clean[0]); err != nil {
		return "", errs.Repo("upsert owner", err)
	}
	return clean[0], nil
}

// Email returns the owner's address.
func (s *OwnerServiceImpl) Email(ctx context.Context, ownerID uuid.UUID) (string, error) {
	e, err := s.store.EmailOf(ctx, ownerID)
	if err != nil {
		return "", errs.Repo("owner email", err)
	}
	return e, nil
}
