package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/time-capsule/internal/errs"
	"github.com/and161185/time-capsule/internal/limiter"
	"github.com/and161185/time-capsule/internal/model"
	"github.com/and161185/time-capsule/internal/repository"
	"github.com/and161185/time-capsule/internal/repository/memory"
)

const mib = 1 << 20

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakePublisher struct {
	mu     sync.Mutex
	events []model.OpenedEvent
	err    error
}

func (f *fakePublisher) PublishOpened(_ context.Context, ev model.OpenedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// raceRepo simulates losing the compare-and-set to another process.
type raceRepo struct {
	*memory.CapsuleRepo
	casErr error
}

var _ repository.CapsuleRepository = (*raceRepo)(nil)

func (r *raceRepo) CompareAndSetOpen(ctx context.Context, id uuid.UUID, _ model.State, openedAt time.Time) (bool, error) {
	if r.casErr != nil {
		return false, r.casErr
	}
	// another writer opens it a bit earlier
	if _, err := r.CapsuleRepo.CompareAndSetOpen(ctx, id, model.StateLocked, openedAt.Add(-time.Millisecond)); err != nil {
		return false, err
	}
	return false, nil
}

func newSvc(repo repository.CapsuleRepository, pub EventPublisher) *CapsuleServiceImpl {
	s := NewCapsuleService(repo, pub, nil, CapsuleConfig{}, zap.NewNop())
	s.now = func() time.Time { return t0 }
	return s
}

func draft() model.Draft {
	return model.Draft{
		OwnerID: uuid.Must(uuid.NewV4()),
		Title:   "Hi future me",
		Message: "remember this summer",
		OpenAt:  t0.Add(2 * time.Hour),
	}
}

func validationFields(t *testing.T, err error) []errs.FieldError {
	t.Helper()
	var verr *errs.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want *errs.ValidationError, got %T: %v", err, err)
	}
	return verr.Fields
}

func TestCreate_StoresLockedCapsule(t *testing.T) {
	repo := memory.NewCapsuleRepo()
	pub := &fakePublisher{}
	s := newSvc(repo, pub)

	d := draft()
	d.Recipients = []string{" A@x.com", "a@x.com", "b@y.org"}
	d.SendToSelf = true
	c, err := s.Create(context.Background(), d)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.State != model.StateLocked || c.OpenedAt != nil {
		t.Fatalf("new capsule must be locked: %+v", c)
	}
	if len(c.Recipients) != 2 || c.Recipients[0] != "a@x.com" || c.Recipients[1] != "b@y.org" {
		t.Fatalf("recipients not normalized: %v", c.Recipients)
	}
	if !c.CreatedAt.Equal(t0) {
		t.Fatalf("created_at: %v", c.CreatedAt)
	}
	if pub.count() != 0 {
		t.Fatalf("create must not publish")
	}
	stored, err := repo.Get(context.Background(), c.ID)
	if err != nil || stored.Title != "Hi future me" || !stored.SendToSelf {
		t.Fatalf("stored: %+v err=%v", stored, err)
	}
}

func TestCreate_AggregatesEveryProblem(t *testing.T) {
	s := newSvc(memory.NewCapsuleRepo(), &fakePublisher{})

	_, err := s.Create(context.Background(), model.Draft{
		OpenAt:     t0.Add(30 * time.Minute),
		Recipients: []string{"ok@x.com", "bad-email", "also bad"},
		Media:      []model.MediaAttachment{{Name: "v.mp4", URL: "u", Type: model.MediaVideo, SizeBytes: 51 * mib}},
	})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	got := map[string]bool{}
	for _, f := range validationFields(t, err) {
		got[f.Field] = true
	}
	for _, want := range []string{"owner_id", "title", "message", "open_at", "recipients[1]", "recipients[2]", "media[0]"} {
		if !got[want] {
			t.Fatalf("missing problem for %s in %v", want, err)
		}
	}
}

func TestCreate_OpenAtMustBeBeyondMinLead(t *testing.T) {
	s := newSvc(memory.NewCapsuleRepo(), &fakePublisher{})

	d := draft()
	d.OpenAt = t0.Add(time.Hour)
	_, err := s.Create(context.Background(), d)
	fields := validationFields(t, err)
	if len(fields) != 1 || fields[0].Field != "open_at" || fields[0].Reason != "must be more than 1 hour in the future" {
		t.Fatalf("unexpected: %v", fields)
	}

	d.OpenAt = t0.Add(time.Hour + time.Second)
	if _, err := s.Create(context.Background(), d); err != nil {
		t.Fatalf("just beyond lead must pass: %v", err)
	}
}

func TestCreate_RecipientCeiling(t *testing.T) {
	s := newSvc(memory.NewCapsuleRepo(), &fakePublisher{})

	d := draft()
	for i := 0; i < 30; i++ {
		d.Recipients = append(d.Recipients, fmt.Sprintf("r%d@x.com", i))
	}
	if _, err := s.Create(context.Background(), d); err != nil {
		t.Fatalf("30 recipients must pass: %v", err)
	}

	d.Recipients = append(d.Recipients, "r30@x.com")
	_, err := s.Create(context.Background(), d)
	fields := validationFields(t, err)
	if len(fields) != 1 || fields[0].Field != "recipients" {
		t.Fatalf("want one aggregate recipients error, got %v", fields)
	}
}

func TestCreate_MediaLimits(t *testing.T) {
	s := newSvc(memory.NewCapsuleRepo(), &fakePublisher{})
	img := func(n string, size int64) model.MediaAttachment {
		return model.MediaAttachment{Name: n, URL: "https://cdn/" + n, Type: model.MediaImage, SizeBytes: size}
	}

	d := draft()
	d.Media = []model.MediaAttachment{
		img("big.jpg", 9*mib),
		{Name: "clip.mp4", URL: "https://cdn/clip.mp4", Type: model.MediaVideo, SizeBytes: 49 * mib},
	}
	for i := 0; i < 8; i++ {
		d.Media = append(d.Media, img(fmt.Sprintf("p%d.png", i), mib))
	}
	if _, err := s.Create(context.Background(), d); err != nil {
		t.Fatalf("ten items within limits must pass: %v", err)
	}

	d.Media = append(d.Media, img("eleven.png", mib))
	if _, err := s.Create(context.Background(), d); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("eleventh item must fail, got %v", err)
	}

	d.Media = []model.MediaAttachment{{Name: "long.mp4", URL: "u", Type: model.MediaVideo, SizeBytes: 51 * mib}}
	_, err := s.Create(context.Background(), d)
	fields := validationFields(t, err)
	if len(fields) != 1 || fields[0].Field != "media[0]" {
		t.Fatalf("51MB video must fail alone: %v", fields)
	}
}

func TestCreate_PrivateCapsuleRejectsRecipients(t *testing.T) {
	s := newSvc(memory.NewCapsuleRepo(), &fakePublisher{})

	d := draft()
	d.IsPrivate = true
	d.Recipients = []string{"a@x.com"}
	_, err := s.Create(context.Background(), d)
	fields := validationFields(t, err)
	if len(fields) != 1 || fields[0].Field != "recipients" {
		t.Fatalf("unexpected: %v", fields)
	}

	d.Recipients = []string{"", "  "}
	c, err := s.Create(context.Background(), d)
	if err != nil {
		t.Fatalf("blank entries are not recipients: %v", err)
	}
	if c.Recipients != nil {
		t.Fatalf("private capsule stored recipients: %v", c.Recipients)
	}
}

func TestCreate_Quota(t *testing.T) {
	s := NewCapsuleService(memory.NewCapsuleRepo(), &fakePublisher{}, limiter.NewMemory(time.Hour, 1), CapsuleConfig{}, nil)
	s.now = func() time.Time { return t0 }

	d := draft()
	if _, err := s.Create(context.Background(), d); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := s.Create(context.Background(), d)
	var rl *errs.RateLimitedError
	if !errors.As(err, &rl) || rl.RetryAfter <= 0 {
		t.Fatalf("want rate limited, got %v", err)
	}
}

func createLocked(t *testing.T, s *CapsuleServiceImpl) *model.Capsule {
	t.Helper()
	c, err := s.Create(context.Background(), draft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return c
}

func TestOpen_NotYetEligibleIsExactAndReadOnly(t *testing.T) {
	repo := memory.NewCapsuleRepo()
	pub := &fakePublisher{}
	s := newSvc(repo, pub)
	c := createLocked(t, s)

	_, err := s.Open(context.Background(), c.ID, t0.Add(time.Hour+17*time.Second))
	var nye *errs.NotYetEligibleError
	if !errors.As(err, &nye) {
		t.Fatalf("want NotYetEligibleError, got %v", err)
	}
	if nye.Remaining != time.Hour-17*time.Second {
		t.Fatalf("remaining must be exact, got %v", nye.Remaining)
	}
	if nye.Error() != "capsule opens in 59 minutes" {
		t.Fatalf("display: %q", nye.Error())
	}
	if repo.OpenWrites() != 0 || pub.count() != 0 {
		t.Fatalf("early open must not write or publish")
	}
	got, _ := repo.Get(context.Background(), c.ID)
	if got.State != model.StateLocked {
		t.Fatalf("state changed: %s", got.State)
	}
}

func TestOpen_IsIdempotent(t *testing.T) {
	repo := memory.NewCapsuleRepo()
	pub := &fakePublisher{}
	s := newSvc(repo, pub)
	c := createLocked(t, s)

	at := c.OpenAt.Add(time.Second)
	first, err := s.Open(context.Background(), c.ID, at)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if first.State != model.StateOpen || first.OpenedAt == nil || !first.OpenedAt.Equal(at) {
		t.Fatalf("opened: %+v", first)
	}
	second, err := s.Open(context.Background(), c.ID, at.Add(time.Hour))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !second.OpenedAt.Equal(at) {
		t.Fatalf("opened_at moved: %v", second.OpenedAt)
	}
	if pub.count() != 1 || repo.OpenWrites() != 1 {
		t.Fatalf("events=%d writes=%d", pub.count(), repo.OpenWrites())
	}
	ev := pub.events[0]
	if ev.Capsule.ID != c.ID || !ev.OpenedAt.Equal(at) {
		t.Fatalf("event: %+v", ev)
	}
}

func TestOpen_ReturnedTimeMatchesStoredTime(t *testing.T) {
	repo := memory.NewCapsuleRepo()
	pub := &fakePublisher{}
	s := newSvc(repo, pub)
	s.now = func() time.Time { return t0.Add(987654321 * time.Nanosecond) }
	c := createLocked(t, s)

	at := c.OpenAt.Add(time.Second + 123456789*time.Nanosecond)
	opened, err := s.Open(context.Background(), c.ID, at)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	stored, err := s.Get(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !opened.OpenedAt.Equal(*stored.OpenedAt) {
		t.Fatalf("opened_at %v, stored %v", opened.OpenedAt, stored.OpenedAt)
	}
	if !opened.CreatedAt.Equal(stored.CreatedAt) {
		t.Fatalf("created_at %v, stored %v", opened.CreatedAt, stored.CreatedAt)
	}
	if opened.OpenedAt.Nanosecond()%1000 != 0 {
		t.Fatalf("opened_at keeps sub-microsecond part: %v", opened.OpenedAt)
	}
	if ev := pub.events[0]; !ev.OpenedAt.Equal(*stored.OpenedAt) {
		t.Fatalf("event opened_at %v, stored %v", ev.OpenedAt, stored.OpenedAt)
	}

	again, err := s.Open(context.Background(), c.ID, at.Add(time.Minute))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !again.OpenedAt.Equal(*opened.OpenedAt) {
		t.Fatalf("reopen saw %v, first open returned %v", again.OpenedAt, opened.OpenedAt)
	}
}

func TestOpen_FiftyConcurrentCallers(t *testing.T) {
	repo := memory.NewCapsuleRepo()
	pub := &fakePublisher{}
	s := newSvc(repo, pub)
	c := createLocked(t, s)

	const n = 50
	var (
		wg      sync.WaitGroup
		results = make([]*model.Capsule, n)
		errsOut = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errsOut[i] = s.Open(context.Background(), c.ID, c.OpenAt.Add(time.Duration(i)*time.Millisecond))
		}()
	}
	wg.Wait()

	if repo.OpenWrites() != 1 {
		t.Fatalf("want exactly one state write, got %d", repo.OpenWrites())
	}
	if pub.count() != 1 {
		t.Fatalf("want exactly one event, got %d", pub.count())
	}
	want := *pub.events[0].Capsule.OpenedAt
	for i := 0; i < n; i++ {
		if errsOut[i] != nil {
			t.Fatalf("call %d: %v", i, errsOut[i])
		}
		if !results[i].OpenedAt.Equal(want) {
			t.Fatalf("call %d saw opened_at %v, want %v", i, results[i].OpenedAt, want)
		}
		if results[i].OpenedAt.Before(results[i].OpenAt) {
			t.Fatalf("opened before open_at")
		}
	}
}

func TestOpen_LostRaceReturnsWinner(t *testing.T) {
	mem := memory.NewCapsuleRepo()
	pub := &fakePublisher{}
	s := newSvc(&raceRepo{CapsuleRepo: mem}, pub)
	c := createLocked(t, s)

	at := c.OpenAt.Add(time.Minute)
	got, err := s.Open(context.Background(), c.ID, at)
	if err != nil {
		t.Fatalf("lost race must not be an error: %v", err)
	}
	if got.State != model.StateOpen || !got.OpenedAt.Equal(at.Add(-time.Millisecond)) {
		t.Fatalf("want winner's snapshot, got %+v", got)
	}
	if pub.count() != 0 {
		t.Fatalf("loser must not publish")
	}
}

func TestOpen_RepositoryFailure(t *testing.T) {
	mem := memory.NewCapsuleRepo()
	s := newSvc(&raceRepo{CapsuleRepo: mem, casErr: errors.New("connection reset")}, &fakePublisher{})
	c := createLocked(t, s)

	_, err := s.Open(context.Background(), c.ID, c.OpenAt)
	if !errors.Is(err, errs.ErrRepository) {
		t.Fatalf("want repository error, got %v", err)
	}
}

func TestOpen_PublishFailureStillOpens(t *testing.T) {
	repo := memory.NewCapsuleRepo()
	s := newSvc(repo, &fakePublisher{err: errors.New("bus closed")})
	c := createLocked(t, s)

	got, err := s.Open(context.Background(), c.ID, c.OpenAt)
	if err != nil || got.State != model.StateOpen {
		t.Fatalf("open: %+v %v", got, err)
	}
}

func TestOpen_NotFound(t *testing.T) {
	s := newSvc(memory.NewCapsuleRepo(), &fakePublisher{})
	if _, err := s.Open(context.Background(), uuid.Must(uuid.NewV4()), t0); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestEvaluate(t *testing.T) {
	s := newSvc(memory.NewCapsuleRepo(), &fakePublisher{})
	c := createLocked(t, s)

	ev, err := s.Evaluate(context.Background(), c.ID, t0.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if ev.State != model.StateLocked || ev.Remaining != 30*time.Minute || ev.Ready() {
		t.Fatalf("unexpected: %+v", ev)
	}

	ev, _ = s.Evaluate(context.Background(), c.ID, c.OpenAt.Add(time.Hour))
	if ev.Remaining != 0 || !ev.Ready() {
		t.Fatalf("past open_at must clamp to zero: %+v", ev)
	}

	if _, err := s.Open(context.Background(), c.ID, c.OpenAt); err != nil {
		t.Fatalf("open: %v", err)
	}
	ev, _ = s.Evaluate(context.Background(), c.ID, c.OpenAt.Add(-time.Hour))
	if ev.State != model.StateOpen || ev.Remaining != 0 || ev.OpenedAt == nil || ev.Ready() {
		t.Fatalf("open capsule: %+v", ev)
	}
}

func TestGetAndList(t *testing.T) {
	s := newSvc(memory.NewCapsuleRepo(), &fakePublisher{})
	c := createLocked(t, s)

	got, err := s.Get(context.Background(), c.ID)
	if err != nil || got.ID != c.ID {
		t.Fatalf("get: %+v %v", got, err)
	}
	list, err := s.ListByOwner(context.Background(), c.OwnerID)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %v", list, err)
	}
	if _, err := s.ListByOwner(context.Background(), uuid.Nil); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("nil owner must fail validation")
	}
}
