package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/time-capsule/internal/errs"
	"github.com/and161185/time-capsule/internal/model"
)

const capsuleColumns = `id, owner_id, title, message, open_at, is_private, send_to_self, recipients, media, state, opened_at, created_at`

// CapsuleRepo implements CapsuleRepository using PostgreSQL.
type CapsuleRepo struct{ db *DB }

// NewCapsuleRepo constructs a capsule repository.
func NewCapsuleRepo(db *DB) *CapsuleRepo { return &CapsuleRepo{db: db} }

// Insert stores a new capsule. A duplicate ID yields errs.ErrAlreadyExists.
func (r *CapsuleRepo) Insert(ctx context.Context, c *model.Capsule) error {
	media, err := json.Marshal(mediaOrEmpty(c.Media))
	if err != nil {
		return errs.Repo("insert capsule", fmt.Errorf("encode media: %w", err))
	}
	recipients := c.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	const q = `INSERT INTO capsules (` + capsuleColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err = r.db.Pool.Exec(ctx, q,
		c.ID, c.OwnerID, c.Title, c.Message, c.OpenAt, c.IsPrivate, c.SendToSelf,
		recipients, media, string(c.State), c.OpenedAt, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}
		return errs.Repo("insert capsule", err)
	}
	return nil
}

// Get loads a capsule by ID or returns errs.ErrNotFound.
func (r *CapsuleRepo) Get(ctx context.Context, id uuid.UUID) (*model.Capsule, error) {
	const q = `SELECT ` + capsuleColumns + ` FROM capsules WHERE id=$1`
	c, err := scanCapsule(r.db.Pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, errs.Repo("get capsule", err)
	}
	return c, nil
}

// CompareAndSetOpen performs the Locked -> Open transition in a single conditional UPDATE.
// The open_at guard keeps a stale caller from opening a capsule early.
func (r *CapsuleRepo) CompareAndSetOpen(ctx context.Context, id uuid.UUID, expected model.State, openedAt time.Time) (bool, error) {
	const q = `UPDATE capsules SET state='open', opened_at=$3 WHERE id=$1 AND state=$2 AND open_at <= $3`
	tag, err := r.db.Pool.Exec(ctx, q, id, string(expected), openedAt)
	if err != nil {
		return false, errs.Repo("open capsule", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListDue returns IDs of locked capsules whose open time has passed.
func (r *CapsuleRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	const q = `SELECT id FROM capsules WHERE state='locked' AND open_at <= $1 ORDER BY open_at ASC LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, now, limit)
	if err != nil {
		return nil, errs.Repo("list due", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Repo("list due", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Repo("list due", err)
	}
	return out, nil
}

// ListByOwner returns the owner's capsules, newest first.
func (r *CapsuleRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Capsule, error) {
	const q = `SELECT ` + capsuleColumns + ` FROM capsules WHERE owner_id=$1 ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, errs.Repo("list capsules", err)
	}
	defer rows.Close()

	var out []model.Capsule
	for rows.Next() {
		c, err := scanCapsule(rows)
		if err != nil {
			return nil, errs.Repo("list capsules", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Repo("list capsules", err)
	}
	return out, nil
}

func scanCapsule(row pgx.Row) (*model.Capsule, error) {
	var (
		c        model.Capsule
		state    string
		media    []byte
		openedAt *time.Time
	)
	err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Message, &c.OpenAt, &c.IsPrivate, &c.SendToSelf,
		&c.Recipients, &media, &state, &openedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.State = model.State(state)
	if !c.State.Valid() {
		return nil, fmt.Errorf("capsule %s: unknown state %q", c.ID, state)
	}
	c.OpenedAt = openedAt
	if len(media) > 0 {
		if err := json.Unmarshal(media, &c.Media); err != nil {
			return nil, fmt.Errorf("decode media: %w", err)
		}
	}
	if len(c.Media) == 0 {
		c.Media = nil
	}
	return &c, nil
}

func mediaOrEmpty(m []model.MediaAttachment) []model.MediaAttachment {
	if m == nil {
		return []model.MediaAttachment{}
	}
	return m
}
