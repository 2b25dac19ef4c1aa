package limiter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMemory_Window(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	m := NewMemory(time.Minute, 2)
	m.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _, _ := m.Allow(ctx, "owner"); !ok {
			t.Fatalf("attempt %d should pass", i)
		}
	}
	now = base.Add(20 * time.Second)
	ok, retry, err := m.Allow(ctx, "owner")
	if err != nil || ok {
		t.Fatalf("third attempt should be throttled: ok=%v err=%v", ok, err)
	}
	if retry != 40*time.Second {
		t.Fatalf("retry after: want 40s, got %v", retry)
	}
	if ok, _, _ := m.Allow(ctx, "other"); !ok {
		t.Fatalf("keys must be independent")
	}

	now = base.Add(time.Minute)
	if ok, _, _ := m.Allow(ctx, "owner"); !ok {
		t.Fatalf("new window should pass")
	}
}

func TestMemory_DropsExpiredSlots(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	m := NewMemory(time.Minute, 1)
	m.now = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		if ok, _, _ := m.Allow(ctx, fmt.Sprintf("owner-%d", i)); !ok {
			t.Fatalf("owner-%d should pass", i)
		}
	}
	now = base.Add(30 * time.Second)
	if ok, _, _ := m.Allow(ctx, "late"); !ok {
		t.Fatalf("late should pass")
	}
	if got := len(m.slots); got != 101 {
		t.Fatalf("slots within window: want 101, got %d", got)
	}

	now = base.Add(time.Minute)
	if ok, _, _ := m.Allow(ctx, "owner-0"); !ok {
		t.Fatalf("owner-0 should pass in the next window")
	}
	if got := len(m.slots); got != 2 {
		t.Fatalf("expired slots kept: want 2, got %d", got)
	}
	if ok, _, _ := m.Allow(ctx, "late"); ok {
		t.Fatalf("late is still inside its window")
	}
}

func TestUnlimited(t *testing.T) {
	if ok, _, _ := (Unlimited{}).Allow(context.Background(), "x"); !ok {
		t.Fatalf("unlimited must allow")
	}
}

type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakePool struct {
	lastSQL string
	start   time.Time
	count   int
	err     error
}

func (f *fakePool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (f *fakePool) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.lastSQL = sql
	return fakeRow{scan: func(dest ...any) error {
		if f.err != nil {
			return f.err
		}
		*(dest[0].(*time.Time)) = f.start
		*(dest[1].(*int)) = f.count
		return nil
	}}
}

func TestPG_Allow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 30, 0, time.UTC)
	fp := &fakePool{start: now.Add(-30 * time.Second), count: 3}
	l := NewPG(fp, time.Minute, 5)
	l.now = func() time.Time { return now }

	ok, _, err := l.Allow(ctx, "owner")
	if err != nil || !ok {
		t.Fatalf("within quota: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(fp.lastSQL, "ON CONFLICT (key)") {
		t.Fatalf("unexpected sql: %s", fp.lastSQL)
	}

	fp.count = 6
	ok, retry, err := l.Allow(ctx, "owner")
	if err != nil || ok {
		t.Fatalf("over quota: ok=%v err=%v", ok, err)
	}
	if retry != 30*time.Second {
		t.Fatalf("retry after: want 30s, got %v", retry)
	}

	fp.err = errors.New("db down")
	if _, _, err := l.Allow(ctx, "owner"); err == nil {
		t.Fatalf("want db error")
	}
}
