package service_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	mirrorout "minesync/internal/modules/mirror/adapter/out"
	"minesync/internal/modules/mirror/domain"
	mirrorport "minesync/internal/modules/mirror/port/out"
	"minesync/internal/modules/mirror/service"
	tabbusout "minesync/internal/modules/tabbus/adapter/out"
	tabbusservice "minesync/internal/modules/tabbus/service"
	tabbususecase "minesync/internal/modules/tabbus/usecase"
	apperrors "minesync/internal/platform/errors"
	"minesync/internal/platform/logging"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fakeKeys struct {
	mu sync.Mutex
	n  int
}

func (f *fakeKeys) New() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return "key-" + string(rune('a'+f.n-1))
}

type fakeLifecycle struct {
	mu        sync.Mutex
	clock     *manualClock
	active    *domain.ServerSession
	activeErr error
	pauseErr  error
	stopErrs  []error
	paused    int64
	stops     int
	keys      []string
}

func (f *fakeLifecycle) Start(_ context.Context, key string) (domain.ServerSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	now := f.clock.Now()
	return domain.ServerSession{ID: "sess-1", Status: "active", StartTime: now, LastActiveAt: now}, nil
}

func (f *fakeLifecycle) Pause(_ context.Context, _ string, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return f.pauseErr
}

func (f *fakeLifecycle) Resume(_ context.Context, _ string, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return f.paused, nil
}

func (f *fakeLifecycle) Stop(_ context.Context, sessionID, key string) (mirrorport.StopResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.stops++
	if len(f.stopErrs) > 0 {
		err := f.stopErrs[0]
		f.stopErrs = f.stopErrs[1:]
		return mirrorport.StopResult{}, err
	}
	return mirrorport.StopResult{SessionID: sessionID, ActiveDuration: 86400, Earnings: "0.00086400"}, nil
}

func (f *fakeLifecycle) Active(context.Context) (*domain.ServerSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.activeErr
}

func (f *fakeLifecycle) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeLifecycle) calledKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

type fixture struct {
	mirror    *service.Mirror
	clock     *manualClock
	lifecycle *fakeLifecycle
	snapshots mirrorport.SnapshotStore
}

func newFixture(t *testing.T, bus mirrorport.Bus) fixture {
	t.Helper()
	clk := &manualClock{now: t0}
	lc := &fakeLifecycle{clock: clk}
	store := mirrorout.NewFileSnapshotStore(filepath.Join(t.TempDir(), mirrorout.SnapshotFileName))
	m := service.NewMirror(service.Deps{
		Clock:     clk,
		Keys:      &fakeKeys{},
		Lifecycle: lc,
		Snapshots: store,
		Bus:       bus,
		Logger:    logging.Discard(),
	}, service.Options{
		CooldownGrace: 20 * time.Millisecond,
		TickInterval:  time.Hour,
	})
	t.Cleanup(func() { _ = m.Close() })
	return fixture{mirror: m, clock: clk, lifecycle: lc, snapshots: store}
}

func waitNotice(t *testing.T, m *service.Mirror, title string) domain.Notice {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-m.Events():
			if ev.Notice != nil && ev.Notice.Title == title {
				return *ev.Notice
			}
		case <-timeout:
			t.Fatalf("timed out waiting for notice %q", title)
		}
	}
}

func waitStatus(t *testing.T, m *service.Mirror, status domain.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.Snapshot().Status != status {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for status %s, have %s", status, m.Snapshot().Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMountDiscardsStaleSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	stale := "sess-old"
	if err := f.snapshots.Save(ctx, domain.Snapshot{SessionID: &stale, Status: domain.StatusActive, StartTime: t0.UnixMilli(), Duration: 40}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	got, err := f.mirror.Mount(ctx)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if got != domain.Idle() {
		t.Fatalf("expected idle projection, got %+v", got)
	}
	persisted, _, err := f.snapshots.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if persisted.Status != domain.StatusIdle || persisted.SessionID != nil {
		t.Fatalf("expected persisted snapshot to be overwritten, got %+v", persisted)
	}
}

func TestMountRebuildsPausedSessionFromServer(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.lifecycle.active = &domain.ServerSession{
		ID:             "sess-1",
		Status:         "paused",
		StartTime:      t0,
		LastActiveAt:   t0.Add(100 * time.Second),
		PausedDuration: 30,
	}
	f.clock.Set(t0.Add(160 * time.Second))

	got, err := f.mirror.Mount(context.Background())
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if got.Status != domain.StatusPaused || got.Duration != 70 || got.PausedDuration != 30 {
		t.Fatalf("unexpected rebuilt projection: %+v", got)
	}
	if got.PausedAt == nil || *got.PausedAt != t0.Add(100*time.Second).UnixMilli() {
		t.Fatalf("expected pausedAt from lastActiveAt, got %v", got.PausedAt)
	}
}

func TestMountFailureLeavesProjectionUnchanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	if _, err := f.mirror.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	before := f.mirror.Snapshot()
	f.lifecycle.mu.Lock()
	f.lifecycle.activeErr = apperrors.ErrStorageFailure
	f.lifecycle.mu.Unlock()

	if _, err := f.mirror.Mount(ctx); err == nil {
		t.Fatalf("expected mount error")
	}
	if f.mirror.Snapshot() != before {
		t.Fatalf("projection changed on failed mount")
	}
}

func TestPauseHoldsDurationAndResumeRecomputes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	if _, err := f.mirror.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Set(t0.Add(50 * time.Second))
	f.mirror.Tick(f.clock.Now())
	if d := f.mirror.Snapshot().Duration; d != 50 {
		t.Fatalf("expected 50s active, got %d", d)
	}

	paused, err := f.mirror.TogglePause(ctx)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.Status != domain.StatusPaused || paused.PausedAt == nil {
		t.Fatalf("expected paused projection, got %+v", paused)
	}
	f.clock.Set(t0.Add(100 * time.Second))
	f.mirror.Tick(f.clock.Now())
	if d := f.mirror.Snapshot().Duration; d != 50 {
		t.Fatalf("duration must hold while paused, got %d", d)
	}

	f.lifecycle.mu.Lock()
	f.lifecycle.paused = 50
	f.lifecycle.mu.Unlock()
	resumed, err := f.mirror.TogglePause(ctx)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != domain.StatusActive || resumed.PausedAt != nil || resumed.PausedDuration != 50 || resumed.Duration != 50 {
		t.Fatalf("unexpected resumed projection: %+v", resumed)
	}
}

func TestFailedMutationKeepsProjectionAndReusesKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	if _, err := f.mirror.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	before := f.mirror.Snapshot()
	f.lifecycle.mu.Lock()
	f.lifecycle.pauseErr = apperrors.ErrStorageFailure
	f.lifecycle.mu.Unlock()

	if _, err := f.mirror.Pause(ctx); err == nil {
		t.Fatalf("expected pause error")
	}
	if f.mirror.Snapshot() != before {
		t.Fatalf("projection changed on failed pause: %+v", f.mirror.Snapshot())
	}
	notice := waitNotice(t, f.mirror, "Failed to pause mining")
	if notice.Level != domain.NoticeError {
		t.Fatalf("expected error notice, got %+v", notice)
	}

	if _, err := f.mirror.Pause(ctx); err == nil {
		t.Fatalf("expected second pause error")
	}
	keys := f.lifecycle.calledKeys()
	if len(keys) != 3 || keys[1] != keys[2] || keys[0] == keys[1] {
		t.Fatalf("expected retried pause to reuse its key, got %v", keys)
	}
}

func TestMountDropsKeysOfFailedMutations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	if _, err := f.mirror.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.lifecycle.mu.Lock()
	f.lifecycle.pauseErr = apperrors.ErrStorageFailure
	f.lifecycle.mu.Unlock()
	if _, err := f.mirror.Pause(ctx); err == nil {
		t.Fatalf("expected pause error")
	}
	failedKey := f.lifecycle.calledKeys()[1]

	// Another tab paused the session; the reload sees it paused.
	f.lifecycle.mu.Lock()
	f.lifecycle.pauseErr = nil
	f.lifecycle.active = &domain.ServerSession{
		ID:           "sess-1",
		Status:       "paused",
		StartTime:    t0,
		LastActiveAt: t0.Add(10 * time.Second),
	}
	f.lifecycle.mu.Unlock()
	f.clock.Set(t0.Add(20 * time.Second))
	if _, err := f.mirror.Mount(ctx); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if _, err := f.mirror.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := f.mirror.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}

	keys := f.lifecycle.calledKeys()
	last := keys[len(keys)-1]
	if last == failedKey {
		t.Fatalf("pause after reload reused the key of the failed pause %q: %v", failedKey, keys)
	}
	seen := map[string]bool{}
	for _, k := range keys {
		if seen[k] {
			t.Fatalf("expected every acknowledged call to use a fresh key, got %v", keys)
		}
		seen[k] = true
	}
}

func TestApplyDropsKeysOfFailedMutations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	started, err := f.mirror.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	f.lifecycle.mu.Lock()
	f.lifecycle.pauseErr = apperrors.ErrStorageFailure
	f.lifecycle.mu.Unlock()
	if _, err := f.mirror.Pause(ctx); err == nil {
		t.Fatalf("expected pause error")
	}

	f.lifecycle.mu.Lock()
	f.lifecycle.pauseErr = nil
	f.lifecycle.mu.Unlock()
	if err := f.mirror.Apply(ctx, started); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := f.mirror.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	keys := f.lifecycle.calledKeys()
	if len(keys) != 3 || keys[2] == keys[1] {
		t.Fatalf("expected pause after a tab update to use a fresh key, got %v", keys)
	}
}

func TestStopWithoutSessionDoesNotCallServer(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	if _, err := f.mirror.Stop(context.Background()); err != apperrors.ErrNoActiveSession {
		t.Fatalf("expected no active session, got %v", err)
	}
	if f.lifecycle.stopCount() != 0 {
		t.Fatalf("stop must not reach the server")
	}
}

func TestPrimaryCapForcesSingleStopThenCooldown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	if _, err := f.mirror.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if v := f.mirror.Tick(t0.Add(86399 * time.Second)); v != domain.VerdictNone {
		t.Fatalf("expected no verdict below the cap, got %s", v)
	}
	if v := f.mirror.Tick(t0.Add(86400 * time.Second)); v != domain.VerdictPrimary {
		t.Fatalf("expected primary verdict at exactly 86400s, got %s", v)
	}
	waitNotice(t, f.mirror, "Session Complete")
	f.mirror.Tick(t0.Add(86401 * time.Second))
	if n := f.lifecycle.stopCount(); n != 1 {
		t.Fatalf("expected exactly one forced stop, got %d", n)
	}
	waitStatus(t, f.mirror, domain.StatusIdle)
}

func TestFailedForcedStopIsRetriedOnNextTick(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	f.lifecycle.stopErrs = []error{apperrors.ErrStorageFailure}
	if _, err := f.mirror.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if v := f.mirror.Tick(t0.Add(86400 * time.Second)); v != domain.VerdictPrimary {
		t.Fatalf("expected primary verdict, got %s", v)
	}
	notice := waitNotice(t, f.mirror, "Failed to stop mining")
	if notice.Level != domain.NoticeError {
		t.Fatalf("expected error notice, got %+v", notice)
	}
	if s := f.mirror.Snapshot(); s.Status != domain.StatusActive {
		t.Fatalf("session must stay open after a failed stop, got %s", s.Status)
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.lifecycle.stopCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("forced stop was never retried")
		}
		f.mirror.Tick(t0.Add(86401 * time.Second))
		time.Sleep(5 * time.Millisecond)
	}
	waitNotice(t, f.mirror, "Session Complete")
	waitStatus(t, f.mirror, domain.StatusIdle)
	if n := f.lifecycle.stopCount(); n != 2 {
		t.Fatalf("expected one retry after the failure, got %d stops", n)
	}
	keys := f.lifecycle.calledKeys()
	if keys[1] != keys[2] {
		t.Fatalf("retried stop must reuse its key, got %v", keys)
	}
}

func TestFailsafeCapStopsLongPausedSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.lifecycle.active = &domain.ServerSession{
		ID:           "sess-9",
		Status:       "paused",
		StartTime:    t0,
		LastActiveAt: t0.Add(10 * time.Second),
	}
	if _, err := f.mirror.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}

	if v := f.mirror.Tick(t0.Add(172799 * time.Second)); v != domain.VerdictNone {
		t.Fatalf("expected no verdict before failsafe, got %s", v)
	}
	if v := f.mirror.Tick(t0.Add(172800 * time.Second)); v != domain.VerdictFailsafe {
		t.Fatalf("expected failsafe verdict, got %s", v)
	}
	notice := waitNotice(t, f.mirror, "Session Timeout")
	if notice.Level != domain.NoticeError || notice.Message != "Session exceeded maximum duration" {
		t.Fatalf("unexpected failsafe notice: %+v", notice)
	}
}

func TestBroadcastReplacesOtherTabProjection(t *testing.T) {
	t.Parallel()
	hub := tabbusout.NewMemoryHub()
	busFor := func(origin string) mirrorport.Bus {
		return mirrorout.NewTabBus(tabbususecase.NewInteractor(tabbusservice.NewBroadcaster(origin, hub, nil, logging.Discard())))
	}
	a := newFixture(t, busFor("tab-a"))
	b := newFixture(t, busFor("tab-b"))

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.mirror.Run(runCtx) }()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("tab b never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	published, err := a.mirror.Start(context.Background())
	if err != nil {
		t.Fatalf("start on tab a: %v", err)
	}
	want, _ := json.Marshal(published)
	deadline = time.Now().Add(2 * time.Second)
	for {
		got, _ := json.Marshal(b.mirror.Snapshot())
		if string(got) == string(want) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("tab b projection %s never matched %s", got, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !a.mirror.BusConnected() {
		t.Fatalf("tab a should report a working bus after publish")
	}

	persisted, found, err := b.snapshots.Load(context.Background())
	if err != nil || !found || persisted.ID() != "sess-1" {
		t.Fatalf("expected tab b to persist the applied snapshot, got %+v found=%v err=%v", persisted, found, err)
	}
}

func TestCloseIsIdempotentAndClosesEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	if err := f.mirror.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := f.mirror.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	for range f.mirror.Events() {
	}
	if v := f.mirror.Tick(t0.Add(time.Hour)); v != domain.VerdictNone {
		t.Fatalf("idle projection must not trigger the guard, got %s", v)
	}
}
