package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/time-capsule/internal/errs"
	"github.com/and161185/time-capsule/internal/model"
)

// DispatchRepo implements DispatchLedger using PostgreSQL.
type DispatchRepo struct{ db *DB }

// NewDispatchRepo constructs a dispatch ledger.
func NewDispatchRepo(db *DB) *DispatchRepo { return &DispatchRepo{db: db} }

// Claim inserts the capsule into capsule_dispatches; a conflicting row means
// another consumer already fanned it out.
func (r *DispatchRepo) Claim(ctx context.Context, capsuleID uuid.UUID) (bool, error) {
	const q = `INSERT INTO capsule_dispatches (capsule_id) VALUES ($1) ON CONFLICT (capsule_id) DO NOTHING`
	tag, err := r.db.Pool.Exec(ctx, q, capsuleID)
	if err != nil {
		return false, errs.Repo("claim dispatch", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordDelivery appends one notification outcome.
func (r *DispatchRepo) RecordDelivery(ctx context.Context, d model.Delivery) error {
	const q = `INSERT INTO capsule_deliveries (capsule_id, address, role, ok, error, attempted_at) VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.db.Pool.Exec(ctx, q, d.CapsuleID, d.Address, string(d.Role), d.OK, d.Error, d.AttemptedAt)
	return errs.Repo("record delivery", err)
}

// OwnerRepo implements OwnerDirectory using PostgreSQL.
type OwnerRepo struct{ db *DB }

// NewOwnerRepo constructs an owner directory.
func NewOwnerRepo(db *DB) *OwnerRepo { return &OwnerRepo{db: db} }

// EmailOf returns the owner's notification address.
func (r *OwnerRepo) EmailOf(ctx context.Context, ownerID uuid.UUID) (string, error) {
	var email string
	err := r.db.Pool.QueryRow(ctx, `SELECT email FROM owners WHERE id=$1`, ownerID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", errs.ErrNotFound
	}
	if err != nil {
		return "", errs.Repo("owner email", err)
	}
	return email, nil
}

// Upsert registers or updates an owner's address.
func (r *OwnerRepo) Upsert(ctx context.Context, ownerID uuid.UUID, email string) error {
	const q = `INSERT INTO owners (id, email) VALUES ($1,$2) ON CONFLICT (id) DO UPDATE SET email=EXCLUDED.email`
	_, err := r.db.Pool.Exec(ctx, q, ownerID, email)
	return errs.Repo("upsert owner", err)
}
