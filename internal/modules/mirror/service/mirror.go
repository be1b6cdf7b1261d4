package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	miningdomain "minesync/internal/modules/mining/domain"
	"minesync/internal/modules/mirror/domain"
	mirrorout "minesync/internal/modules/mirror/port/out"
	"minesync/internal/platform/clock"
	apperrors "minesync/internal/platform/errors"
	"minesync/internal/platform/id"
	"minesync/internal/platform/logging"
)

const (
	DefaultTickInterval  = time.Second
	DefaultCooldownGrace = 3 * time.Second
	eventBuffer          = 64
)

// Deps are the collaborators of one mirror. Bus and Notices are optional.
type Deps struct {
	Clock     clock.Clock
	Keys      id.Generator
	Lifecycle mirrorout.Lifecycle
	Snapshots mirrorout.SnapshotStore
	Bus       mirrorout.Bus
	Notices   mirrorout.NoticeSink
	Logger    hclog.Logger
}

type Options struct {
	Guard         domain.Guard
	Rate          miningdomain.Amount
	CooldownGrace time.Duration
	TickInterval  time.Duration
}

type Event struct {
	Snapshot domain.Snapshot
	Notice   *domain.Notice
}

// Mirror is the projection of the user's open session owned by one tab.
// It is created with NewMirror, driven by Run and released with Close.
type Mirror struct {
	clock     clock.Clock
	keys      id.Generator
	lifecycle mirrorout.Lifecycle
	snapshots mirrorout.SnapshotStore
	bus       mirrorout.Bus
	notices   mirrorout.NoticeSink
	logger    hclog.Logger

	guard        domain.Guard
	rate         miningdomain.Amount
	grace        time.Duration
	tickInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	snapshot  domain.Snapshot
	pending   map[string]string
	forced    map[string]bool
	cooldown  *time.Timer
	busUp     bool
	closed    bool
	closeOnce sync.Once
}

func NewMirror(deps Deps, opts Options) *Mirror {
	clk := deps.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	keys := deps.Keys
	if keys == nil {
		keys = id.UUID{}
	}
	if opts.Guard == (domain.Guard{}) {
		opts.Guard = domain.NewGuard(0, 0)
	}
	if opts.Rate <= 0 {
		opts.Rate = miningdomain.DefaultRate
	}
	if opts.CooldownGrace <= 0 {
		opts.CooldownGrace = DefaultCooldownGrace
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Mirror{
		clock:        clk,
		keys:         keys,
		lifecycle:    deps.Lifecycle,
		snapshots:    deps.Snapshots,
		bus:          deps.Bus,
		notices:      deps.Notices,
		logger:       logging.OrDiscard(deps.Logger).Named("mirror"),
		guard:        opts.Guard,
		rate:         opts.Rate,
		grace:        opts.CooldownGrace,
		tickInterval: opts.TickInterval,
		ctx:          ctx,
		cancel:       cancel,
		events:       make(chan Event, eventBuffer),
		done:         make(chan struct{}),
		snapshot:     domain.Idle(),
		pending:      map[string]string{},
		forced:       map[string]bool{},
	}
}

// Run subscribes to the tab bus and ticks once per interval until ctx is done or the
// mirror is closed. A bus that cannot be opened only degrades cross-tab sync.
func (m *Mirror) Run(ctx context.Context) error {
	var inbox <-chan []byte
	if m.bus != nil {
		ch, err := m.bus.Subscribe(ctx)
		if err != nil {
			m.logger.Warn("tab bus unavailable, continuing without cross-tab sync", "error", err)
		} else {
			inbox = ch
			m.setBus(true)
		}
	}

	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.done:
			return nil
		case <-ticker.C:
			m.Tick(m.clock.Now())
		case payload, ok := <-inbox:
			if !ok {
				m.logger.Warn("tab bus subscription closed")
				m.setBus(false)
				inbox = nil
				continue
			}
			m.applyPayload(payload)
		}
	}
}

// Close stops the cooldown timer, waits for in-flight forced stops and closes Events.
func (m *Mirror) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		if m.cooldown != nil {
			m.cooldown.Stop()
			m.cooldown = nil
		}
		m.mu.Unlock()
		m.cancel()
		close(m.done)
		m.wg.Wait()
		close(m.events)
	})
	return nil
}

func (m *Mirror) Events() <-chan Event {
	return m.events
}

func (m *Mirror) Snapshot() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

func (m *Mirror) BusConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busUp
}

// Earnings derives display values from the projection. Settlement never reads them.
func (m *Mirror) Earnings(s domain.Snapshot) (session, projectedDaily miningdomain.Amount) {
	if s.Duration <= 0 {
		return 0, 0
	}
	session = miningdomain.Amount(s.Duration) * m.rate
	return session, miningdomain.ProjectedDaily(session, s.Duration)
}

// Mount reconciles with the server. The server wins: without an open session any local
// snapshot is stale and the projection resets to idle.
func (m *Mirror) Mount(ctx context.Context) (domain.Snapshot, error) {
	active, err := m.lifecycle.Active(ctx)
	if err != nil {
		return m.fail(ctx, "Failed to load session", err)
	}
	m.resetKeys()
	local, found, err := m.snapshots.Load(ctx)
	if err != nil {
		m.logger.Warn("load local snapshot", "error", err)
	}

	next := domain.Idle()
	if active == nil {
		if found && local.ID() != "" {
			m.logger.Info("discarding stale snapshot", "session", local.ID())
		}
	} else {
		next = domain.FromServer(*active, m.clock.Now())
	}
	m.commit(ctx, next, false)
	return next, nil
}

func (m *Mirror) Start(ctx context.Context) (domain.Snapshot, error) {
	key := m.keyFor("start", "")
	session, err := m.lifecycle.Start(ctx, key)
	if err != nil {
		return m.fail(ctx, "Failed to start mining", err)
	}
	m.resetKeys()

	next := domain.FromServer(session, m.clock.Now())
	m.commit(ctx, next, true)
	m.logger.Info("session started", "session", session.ID)
	return next, nil
}

func (m *Mirror) Pause(ctx context.Context) (domain.Snapshot, error) {
	sessionID, err := m.openSessionID()
	if err != nil {
		return m.fail(ctx, "Failed to pause mining", err)
	}
	key := m.keyFor("pause", sessionID)
	if err := m.lifecycle.Pause(ctx, sessionID, key); err != nil {
		return m.fail(ctx, "Failed to pause mining", err)
	}
	m.resetKeys()

	next, ok := m.update(sessionID, func(s domain.Snapshot) domain.Snapshot { return s.Paused(m.clock.Now()) })
	if !ok {
		return next, nil
	}
	m.persistAndPublish(ctx, next, true)
	return next, nil
}

func (m *Mirror) Resume(ctx context.Context) (domain.Snapshot, error) {
	sessionID, err := m.openSessionID()
	if err != nil {
		return m.fail(ctx, "Failed to resume mining", err)
	}
	key := m.keyFor("resume", sessionID)
	pausedDuration, err := m.lifecycle.Resume(ctx, sessionID, key)
	if err != nil {
		return m.fail(ctx, "Failed to resume mining", err)
	}
	m.resetKeys()

	next, ok := m.update(sessionID, func(s domain.Snapshot) domain.Snapshot {
		return s.Resumed(pausedDuration, m.clock.Now())
	})
	if !ok {
		return next, nil
	}
	m.persistAndPublish(ctx, next, true)
	return next, nil
}

func (m *Mirror) TogglePause(ctx context.Context) (domain.Snapshot, error) {
	switch m.Snapshot().Status {
	case domain.StatusActive:
		return m.Pause(ctx)
	case domain.StatusPaused:
		return m.Resume(ctx)
	default:
		return m.fail(ctx, "Failed to pause mining", apperrors.ErrNoActiveSession)
	}
}

func (m *Mirror) Stop(ctx context.Context) (domain.Snapshot, error) {
	sessionID, err := m.openSessionID()
	if err != nil {
		return m.fail(ctx, "Failed to stop mining", err)
	}
	if _, err := m.stopSession(ctx, sessionID); err != nil {
		return m.fail(ctx, "Failed to stop mining", err)
	}
	return m.Snapshot(), nil
}

// Tick advances the projection and evaluates the timeout guard. A forced stop runs in the
// background, at most one at a time per session; a failed one is retried on a later tick.
func (m *Mirror) Tick(now time.Time) domain.Verdict {
	m.mu.Lock()
	prev := m.snapshot
	next := prev.Tick(now)
	m.snapshot = next
	verdict := m.guard.Evaluate(next, now)
	sessionID := next.ID()
	force := verdict != domain.VerdictNone && !m.forced[sessionID] && !m.closed
	if force {
		m.forced[sessionID] = true
		m.wg.Add(1)
	}
	m.mu.Unlock()

	if next != prev {
		m.persist(m.ctx, next)
		m.emit(Event{Snapshot: next})
	}
	if force {
		m.logger.Info("timeout guard forcing stop", "session", sessionID, "cap", verdict.String())
		go m.forceStop(sessionID, verdict)
	}
	return verdict
}

// Apply replaces the projection with a snapshot received from another tab. It is persisted
// locally but not republished.
func (m *Mirror) Apply(ctx context.Context, snapshot domain.Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}
	m.resetKeys()
	m.commit(ctx, snapshot, false)
	return nil
}

func (m *Mirror) applyPayload(payload []byte) {
	var snapshot domain.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		m.logger.Warn("discarding malformed tab message", "error", err)
		return
	}
	if err := m.Apply(m.ctx, snapshot); err != nil {
		m.logger.Warn("discarding invalid tab message", "error", err)
	}
}

func (m *Mirror) forceStop(sessionID string, verdict domain.Verdict) {
	defer m.wg.Done()
	if _, err := m.stopSession(m.ctx, sessionID); err != nil {
		m.logger.Error("forced stop failed", "session", sessionID, "cap", verdict.String(), "error", err)
		m.mu.Lock()
		delete(m.forced, sessionID)
		m.mu.Unlock()
		m.notify(m.ctx, domain.ErrorNotice("Failed to stop mining", err))
		return
	}
	m.notify(m.ctx, verdict.Notice())
}

func (m *Mirror) stopSession(ctx context.Context, sessionID string) (mirrorout.StopResult, error) {
	key := m.keyFor("stop", sessionID)
	result, err := m.lifecycle.Stop(ctx, sessionID, key)
	if err != nil {
		return mirrorout.StopResult{}, err
	}
	m.resetKeys()

	m.commit(ctx, domain.Cooldown(), true)
	m.logger.Info("session stopped", "session", sessionID, "active_seconds", result.ActiveDuration, "earnings", result.Earnings)
	m.notify(ctx, domain.Notice{Level: domain.NoticeInfo, Title: "Mining Stopped", Message: fmt.Sprintf("Session completed. Earned %s BTC", result.Earnings)})

	m.mu.Lock()
	if !m.closed {
		if m.cooldown != nil {
			m.cooldown.Stop()
		}
		m.cooldown = time.AfterFunc(m.grace, m.expireCooldown)
	}
	m.mu.Unlock()
	return result, nil
}

func (m *Mirror) expireCooldown() {
	m.mu.Lock()
	if m.closed || m.snapshot.Status != domain.StatusCooldown {
		m.mu.Unlock()
		return
	}
	m.cooldown = nil
	m.mu.Unlock()
	m.commit(m.ctx, domain.Idle(), true)
}

func (m *Mirror) fail(ctx context.Context, title string, err error) (domain.Snapshot, error) {
	m.logger.Warn(title, "error", err)
	m.notify(ctx, domain.ErrorNotice(title, err))
	return m.Snapshot(), err
}

func (m *Mirror) openSessionID() (string, error) {
	s := m.Snapshot()
	if !s.Status.Open() || s.ID() == "" {
		return "", apperrors.ErrNoActiveSession
	}
	return s.ID(), nil
}

// update applies fn only if the projection still names sessionID. A broadcast from another
// tab may have replaced it while the call was in flight.
func (m *Mirror) update(sessionID string, fn func(domain.Snapshot) domain.Snapshot) (domain.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot.ID() != sessionID {
		return m.snapshot, false
	}
	m.snapshot = fn(m.snapshot)
	return m.snapshot, true
}

func (m *Mirror) commit(ctx context.Context, next domain.Snapshot, publish bool) {
	m.mu.Lock()
	m.snapshot = next
	m.mu.Unlock()
	m.persistAndPublish(ctx, next, publish)
}

func (m *Mirror) persistAndPublish(ctx context.Context, next domain.Snapshot, publish bool) {
	m.persist(ctx, next)
	if publish {
		m.publish(ctx, next)
	}
	m.emit(Event{Snapshot: next})
}

func (m *Mirror) persist(ctx context.Context, s domain.Snapshot) {
	if m.snapshots == nil {
		return
	}
	if err := m.snapshots.Save(ctx, s); err != nil {
		m.logger.Warn("persist snapshot", "error", err)
	}
}

func (m *Mirror) publish(ctx context.Context, s domain.Snapshot) {
	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(s)
	if err != nil {
		m.logger.Warn("encode snapshot", "error", err)
		return
	}
	if err := m.bus.Publish(ctx, payload); err != nil {
		if !errors.Is(err, apperrors.ErrBroadcastUnavailable) {
			m.logger.Warn("publish snapshot", "error", err)
		}
		m.setBus(false)
		return
	}
	m.setBus(true)
}

func (m *Mirror) notify(ctx context.Context, notice domain.Notice) {
	if notice.Empty() {
		return
	}
	m.emit(Event{Snapshot: m.Snapshot(), Notice: &notice})
	if m.notices == nil {
		return
	}
	if err := m.notices.Notify(ctx, notice); err != nil {
		m.logger.Debug("desktop notice failed", "title", notice.Title, "error", err)
	}
}

// emit never blocks; a UI that falls behind loses intermediate events.
func (m *Mirror) emit(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.events <- event:
	default:
	}
}

func (m *Mirror) keyFor(action, sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot := action + ":" + sessionID
	if key, ok := m.pending[slot]; ok {
		return key
	}
	key := m.keys.New()
	m.pending[slot] = key
	return key
}

// resetKeys drops every pending key once the server state is known, so a retry after an
// acknowledged or reconciled change never replays an older request.
func (m *Mirror) resetKeys() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.pending)
}

func (m *Mirror) setBus(up bool) {
	m.mu.Lock()
	m.busUp = up
	m.mu.Unlock()
}
