package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miningout "minesync/internal/modules/mining/adapter/out"
	"minesync/internal/modules/mining/domain"
	miningdto "minesync/internal/modules/mining/dto"
	miningin "minesync/internal/modules/mining/port/in"
	miningport "minesync/internal/modules/mining/port/out"
	"minesync/internal/modules/mining/service"
	"minesync/internal/modules/mining/usecase"
	"minesync/internal/platform/clock"
	apperrors "minesync/internal/platform/errors"
	"minesync/internal/platform/sqlitedb"
)

type fakeClock struct {
	values []time.Time
	idx    int
}

func (f *fakeClock) Now() time.Time {
	if f.idx >= len(f.values) {
		return f.values[len(f.values)-1]
	}
	v := f.values[f.idx]
	f.idx++
	return v
}

type fakeID struct {
	n int
}

func (f *fakeID) New() string {
	f.n++
	return fmt.Sprintf("0000000%d-aaaa-bbbb-cccc-dddddddddddd", f.n)
}

type failingNotifier struct{}

func (failingNotifier) Emit(context.Context, domain.Notification) error {
	return errors.New("notifier offline")
}

type harness struct {
	usecase  miningin.Usecase
	account  miningin.Account
	receipts string
}

func newHarness(t *testing.T, clk clock.Clock, notifier func(miningport.Inbox) usecase.Collaborators) harness {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	db, err := sqlitedb.Open(filepath.Join(dir, "minesync.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ids := &fakeID{}
	store, err := miningout.NewSQLiteSessionStore(ctx, db)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	wallet, err := miningout.NewSQLiteWallet(ctx, db)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	inbox, err := miningout.NewSQLiteInbox(ctx, db, ids)
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	settings, err := miningout.NewSQLiteSettings(ctx, db, domain.DefaultIntensity)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	idem, err := miningout.NewSQLiteIdempotencyStore(ctx, db, clock.SystemClock{})
	if err != nil {
		t.Fatalf("idempotency: %v", err)
	}
	receiptsDir := filepath.Join(dir, "receipts")
	receipts := miningout.NewMarkdownReceiptStore(receiptsDir)

	deps := usecase.Collaborators{Notifier: inbox}
	if notifier != nil {
		deps = notifier(inbox)
	}
	deps.Tx = sqlitedb.NewTxManager(db)
	deps.Wallet = wallet
	deps.Ledger = wallet
	deps.Settings = settings
	deps.Idempotency = idem
	deps.Receipts = receipts
	deps.IDs = ids

	svc := service.NewLifecycleService(clk, ids, domain.NewAccrual(domain.DefaultRate), store)
	return harness{
		usecase:  usecase.NewInteractor(svc, deps),
		account:  usecase.NewAccountInteractor(wallet, wallet, inbox, settings, receipts),
		receipts: receiptsDir,
	}
}

func at(sec int) time.Time {
	return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(sec) * time.Second)
}

func TestLifecycleRoundTripSettlesIntoWallet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, &fakeClock{values: []time.Time{at(0), at(60), at(160), at(220)}}, nil)

	started, err := h.usecase.Start(ctx, miningdto.StartInput{UserID: "alice"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != "active" || started.Intensity != domain.DefaultIntensity || started.NotifyError != "" {
		t.Fatalf("unexpected started session: %+v", started)
	}
	if _, err := h.usecase.Pause(ctx, miningdto.SessionInput{UserID: "alice", SessionID: started.ID}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	resumed, err := h.usecase.Resume(ctx, miningdto.SessionInput{UserID: "alice", SessionID: started.ID})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.PausedDuration != 100 {
		t.Fatalf("expected 100s paused, got %d", resumed.PausedDuration)
	}
	stopped, err := h.usecase.Stop(ctx, miningdto.SessionInput{UserID: "alice", SessionID: started.ID})
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.ActiveDuration != 120 || stopped.PausedDuration != 100 {
		t.Fatalf("expected 120 active / 100 paused, got %d / %d", stopped.ActiveDuration, stopped.PausedDuration)
	}
	if stopped.Earnings != "0.00000120" || stopped.Balance != "0.00000120" {
		t.Fatalf("unexpected settlement amounts: %+v", stopped)
	}
	if stopped.NotifyError != "" {
		t.Fatalf("unexpected notify error: %s", stopped.NotifyError)
	}

	txs, err := h.account.Transactions(ctx, miningdto.ListInput{UserID: "alice"})
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Description != "Mining session "+started.ID[:8] || txs[0].Type != "mining" {
		t.Fatalf("unexpected ledger: %+v", txs)
	}

	notes, err := h.account.Notifications(ctx, "alice", false)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("expected start and stop notifications, got %d", len(notes))
	}

	active, err := h.usecase.GetActive(ctx, "alice")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active.Session != nil {
		t.Fatalf("expected no open session after stop, got %+v", active.Session)
	}

	b, err := os.ReadFile(stopped.ReceiptPath)
	if err != nil {
		t.Fatalf("read receipt: %v", err)
	}
	if !strings.Contains(string(b), "active_seconds: 120") || !strings.Contains(string(b), "0.00000120") {
		t.Fatalf("receipt missing settlement fields: %s", b)
	}
	refs, err := h.account.Receipts(ctx, "alice")
	if err != nil || len(refs) != 1 || refs[0].SessionID != started.ID {
		t.Fatalf("expected one receipt for session, got %+v err=%v", refs, err)
	}
}

func TestStartRejectsSecondOpenSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, &fakeClock{values: []time.Time{at(0), at(5), at(10)}}, nil)

	first, err := h.usecase.Start(ctx, miningdto.StartInput{UserID: "alice"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.usecase.Pause(ctx, miningdto.SessionInput{UserID: "alice", SessionID: first.ID}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := h.usecase.Start(ctx, miningdto.StartInput{UserID: "alice"}); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict while paused session is open, got %v", err)
	}
	if _, err := h.usecase.Start(ctx, miningdto.StartInput{UserID: "bob"}); err != nil {
		t.Fatalf("other user must be able to start: %v", err)
	}
}

func TestOpenSessionIndexRejectsRacingInsert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "race.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	store, err := miningout.NewSQLiteSessionStore(ctx, db)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}

	if err := store.Create(ctx, domain.NewSession("s-1", "alice", at(0), 50)); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	// A racer that passed the open-session check before the first insert committed.
	if err := store.Create(ctx, domain.NewSession("s-2", "alice", at(0), 50)); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict from open-session index, got %v", err)
	}
}

func TestStopTwiceSettlesOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, &fakeClock{values: []time.Time{at(0), at(30), at(90)}}, nil)

	started, err := h.usecase.Start(ctx, miningdto.StartInput{UserID: "alice"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.usecase.Stop(ctx, miningdto.SessionInput{UserID: "alice", SessionID: started.ID}); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := h.usecase.Stop(ctx, miningdto.SessionInput{UserID: "alice", SessionID: started.ID}); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("expected invalid state on second stop, got %v", err)
	}

	balance, err := h.account.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Balance != "0.00000030" {
		t.Fatalf("expected single credit of 30 units, got %s", balance.Balance)
	}
	txs, err := h.account.Transactions(ctx, miningdto.ListInput{UserID: "alice"})
	if err != nil || len(txs) != 1 {
		t.Fatalf("expected one ledger entry, got %d err=%v", len(txs), err)
	}
}

func TestZeroEarningsStopRecordsNoLedgerEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, &fakeClock{values: []time.Time{at(0), at(0)}}, nil)

	started, err := h.usecase.Start(ctx, miningdto.StartInput{UserID: "alice"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	stopped, err := h.usecase.Stop(ctx, miningdto.SessionInput{UserID: "alice", SessionID: started.ID})
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Earnings != "0.00000000" || stopped.Balance != "0.00000000" {
		t.Fatalf("expected zero settlement, got %+v", stopped)
	}
	txs, err := h.account.Transactions(ctx, miningdto.ListInput{UserID: "alice"})
	if err != nil || len(txs) != 0 {
		t.Fatalf("expected empty ledger, got %+v err=%v", txs, err)
	}
}

func TestIdempotencyKeyReplaysStopResponse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, &fakeClock{values: []time.Time{at(0), at(45), at(500)}}, nil)

	started, err := h.usecase.Start(ctx, miningdto.StartInput{UserID: "alice", IdempotencyKey: "k-start"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	replayStart, err := h.usecase.Start(ctx, miningdto.StartInput{UserID: "alice", IdempotencyKey: "k-start"})
	if err != nil {
		t.Fatalf("replayed start must not conflict: %v", err)
	}
	if replayStart.ID != started.ID {
		t.Fatalf("expected replayed start to return %s, got %s", started.ID, replayStart.ID)
	}

	input := miningdto.SessionInput{UserID: "alice", SessionID: started.ID, IdempotencyKey: "k-stop"}
	first, err := h.usecase.Stop(ctx, input)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	second, err := h.usecase.Stop(ctx, input)
	if err != nil {
		t.Fatalf("replayed stop: %v", err)
	}
	if second.Earnings != first.Earnings || second.ActiveDuration != 45 || second.Balance != first.Balance {
		t.Fatalf("replayed stop differs: %+v vs %+v", second, first)
	}
	txs, err := h.account.Transactions(ctx, miningdto.ListInput{UserID: "alice"})
	if err != nil || len(txs) != 1 {
		t.Fatalf("expected one ledger entry after replay, got %d err=%v", len(txs), err)
	}

	_, err = h.usecase.Pause(ctx, miningdto.SessionInput{UserID: "alice", SessionID: started.ID, IdempotencyKey: "k-stop"})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input for key reuse across operations, got %v", err)
	}
}

func TestForeignUserCannotControlSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, &fakeClock{values: []time.Time{at(0), at(10)}}, nil)

	started, err := h.usecase.Start(ctx, miningdto.StartInput{UserID: "alice"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.usecase.Pause(ctx, miningdto.SessionInput{UserID: "mallory", SessionID: started.ID}); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized pause, got %v", err)
	}
	if _, err := h.usecase.Stop(ctx, miningdto.SessionInput{UserID: "mallory", SessionID: started.ID}); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized stop, got %v", err)
	}
	if _, err := h.usecase.Stop(ctx, miningdto.SessionInput{UserID: "alice", SessionID: "missing"}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := h.usecase.Resume(ctx, miningdto.SessionInput{UserID: "alice", SessionID: started.ID}); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("expected invalid state resuming an active session, got %v", err)
	}
}

func TestNotifierFailureDoesNotUndoSettlement(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, &fakeClock{values: []time.Time{at(0), at(20)}}, func(miningport.Inbox) usecase.Collaborators {
		return usecase.Collaborators{Notifier: failingNotifier{}}
	})

	started, err := h.usecase.Start(ctx, miningdto.StartInput{UserID: "alice"})
	if err != nil {
		t.Fatalf("start must survive notifier failure: %v", err)
	}
	if started.NotifyError == "" || started.Status != "active" {
		t.Fatalf("expected an open session with the start notify error reported, got %+v", started)
	}
	stopped, err := h.usecase.Stop(ctx, miningdto.SessionInput{UserID: "alice", SessionID: started.ID})
	if err != nil {
		t.Fatalf("stop must survive notifier failure: %v", err)
	}
	if stopped.NotifyError == "" {
		t.Fatalf("expected notify error to be reported")
	}
	balance, err := h.account.Balance(ctx, "alice")
	if err != nil || balance.Balance != "0.00000020" {
		t.Fatalf("expected committed credit, got %+v err=%v", balance, err)
	}
}

func TestStartUsesStoredIntensity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, &fakeClock{values: []time.Time{at(0)}}, nil)

	if _, err := h.account.SetIntensity(ctx, "alice", 0); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input for intensity 0, got %v", err)
	}
	if _, err := h.account.SetIntensity(ctx, "alice", 80); err != nil {
		t.Fatalf("set intensity: %v", err)
	}
	started, err := h.usecase.Start(ctx, miningdto.StartInput{UserID: "alice"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Intensity != 80 {
		t.Fatalf("expected intensity 80, got %d", started.Intensity)
	}
	list, err := h.usecase.ListSessions(ctx, miningdto.ListInput{UserID: "alice"})
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one listed session, got %d err=%v", len(list), err)
	}
}

func TestStopAtPrimaryCapSettlesExactlyOneDay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, &fakeClock{values: []time.Time{at(0), at(86400)}}, nil)

	started, err := h.usecase.Start(ctx, miningdto.StartInput{UserID: "alice"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	stopped, err := h.usecase.Stop(ctx, miningdto.SessionInput{UserID: "alice", SessionID: started.ID})
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.ActiveDuration != 86400 || stopped.Earnings != "0.00086400" {
		t.Fatalf("expected settlement at 86400s, got %d / %s", stopped.ActiveDuration, stopped.Earnings)
	}
}

func TestLateStopIsClampedToPrimaryCap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, &fakeClock{values: []time.Time{at(0), at(90000)}}, nil)

	started, err := h.usecase.Start(ctx, miningdto.StartInput{UserID: "alice"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	stopped, err := h.usecase.Stop(ctx, miningdto.SessionInput{UserID: "alice", SessionID: started.ID})
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.ActiveDuration != 86400 || stopped.Earnings != "0.00086400" {
		t.Fatalf("expected settlement clamped to 86400s, got %d / %s", stopped.ActiveDuration, stopped.Earnings)
	}
	balance, err := h.account.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Balance != "0.00086400" {
		t.Fatalf("expected wallet credited at the cap, got %s", balance.Balance)
	}
}
