package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/and161185/time-capsule/internal/model"
)

type fakeLister struct {
	ids   []uuid.UUID
	err   error
	mu    sync.Mutex
	calls int
	limit int
}

func (f *fakeLister) ListDue(_ context.Context, _ time.Time, limit int) ([]uuid.UUID, error) {
	f.mu.Lock()
	f.calls++
	f.limit = limit
	f.mu.Unlock()
	return f.ids, f.err
}

func (f *fakeLister) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []uuid.UUID
	fail   map[uuid.UUID]bool
}

func (f *fakeOpener) Open(_ context.Context, id uuid.UUID, now time.Time) (*model.Capsule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[id] {
		return nil, errors.New("repository open capsule: timeout")
	}
	f.opened = append(f.opened, id)
	return &model.Capsule{ID: id, State: model.StateOpen, OpenedAt: &now}, nil
}

func TestRunOnce_OpensBatch(t *testing.T) {
	a, b, c := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	l := &fakeLister{ids: []uuid.UUID{a, b, c}}
	o := &fakeOpener{fail: map[uuid.UUID]bool{b: true}}
	s := New(l, o, Config{BatchSize: 3, Parallelism: 2}, zap.NewNop())

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, Result{Due: 3, Opened: 2, Failed: 1}, res)
	require.ElementsMatch(t, []uuid.UUID{a, c}, o.opened)
	require.Equal(t, 3, l.limit)
}

func TestRunOnce_ListError(t *testing.T) {
	l := &fakeLister{err: errors.New("db down")}
	s := New(l, &fakeOpener{}, Config{}, zap.NewNop())

	_, err := s.RunOnce(context.Background())
	require.ErrorContains(t, err, "db down")
}

func TestStartStop(t *testing.T) {
	l := &fakeLister{}
	s := New(l, &fakeOpener{}, Config{Interval: 5 * time.Millisecond}, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()), "second start must fail")
	require.Eventually(t, func() bool { return l.Calls() >= 3 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	n := l.Calls()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, n, l.Calls(), "no passes after Stop")
	s.Stop()
}
