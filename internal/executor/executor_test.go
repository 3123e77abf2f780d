package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Alias1177/Executor/internal/guardian"
	"github.com/Alias1177/Executor/internal/ladder"
	"github.com/Alias1177/Executor/internal/risk"
	"github.com/Alias1177/Executor/internal/scheduler"
	"github.com/Alias1177/Executor/internal/stealth"
	"github.com/Alias1177/Executor/internal/terminal"
	"github.com/Alias1177/Executor/internal/validate"
	"github.com/Alias1177/Executor/models"
)

type memJournal struct {
	mu      sync.Mutex
	entries []models.JournalEntry
}

func (m *memJournal) Record(e models.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}
func (m *memJournal) Close() error { return nil }

func (m *memJournal) last() models.JournalEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return models.JournalEntry{}
	}
	return m.entries[len(m.entries)-1]
}

type memNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (m *memNotifier) Notify(_ context.Context, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

type testRig struct {
	ctrl     *Controller
	term     *terminal.Mock
	journal  *memJournal
	notifier *memNotifier
	guard    *guardian.Guardian
}

func newRig(t *testing.T, riskCfg models.RiskConfig, stealthCfg models.StealthConfig, guardCfg models.GuardianConfig) *testRig {
	t.Helper()

	term := terminal.NewMock()
	term.SetTick("EURUSD", 1.0848, 1.0850)
	term.SetTick("XAUUSD", 2350.0, 2350.5)

	j := &memJournal{}
	n := &memNotifier{}
	g := guardian.New(guardCfg, 10000, nil)

	ctrl := New(Deps{
		Terminal:   term,
		Normalizer: validate.New(nil),
		Risk:       risk.NewEngine(nil),
		Ladder:     ladder.NewManager(ladder.Config{}, nil),
		Stealth:    stealth.New(stealthCfg, nil),
		Guardian:   g,
		Journal:    j,
		Notifier:   n,
		RiskConfig: riskCfg,
	})
	if err := ctrl.RefreshInstruments(context.Background()); err != nil {
		t.Fatalf("RefreshInstruments: %v", err)
	}
	return &testRig{ctrl: ctrl, term: term, journal: j, notifier: n, guard: g}
}

func fixedLot(lot float64) models.RiskConfig {
	return models.RiskConfig{Policy: models.PolicyFixedLot, FixedLot: lot}
}

func TestGoldSignalWithDefaultsPlacesMarketOrder(t *testing.T) {
	rig := newRig(t, fixedLot(0.01), models.StealthConfig{}, models.GuardianConfig{})

	// lot_size and entry_price present but zero: treated as unset.
	sig := models.Signal{Pair: "GOLD", Action: "BUY", HasLotSize: true, HasEntry: true, SignalID: "g1"}
	if err := rig.ctrl.HandleSignal(context.Background(), sig); err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}

	if rig.term.SentCount() != 1 {
		t.Fatalf("orders sent = %d, want 1", rig.term.SentCount())
	}
	sent := rig.term.Sent[0]
	if sent.Symbol != "XAUUSD" {
		t.Errorf("symbol = %q, want XAUUSD", sent.Symbol)
	}
	if sent.Volume != 0.01 {
		t.Errorf("volume = %v, want fixed lot 0.01", sent.Volume)
	}
	if sent.Price != 0 {
		t.Errorf("market order should carry no price, got %v", sent.Price)
	}

	orders := rig.ctrl.Orders()
	if len(orders) != 1 || orders[0].Status != models.OrderOpen {
		t.Fatalf("orders = %+v", orders)
	}
	if orders[0].EntryPrice != 2350.5 {
		t.Errorf("filled at %v, want ask 2350.5", orders[0].EntryPrice)
	}
	if rig.journal.last().Outcome != "success" {
		t.Errorf("journal outcome = %q", rig.journal.last().Outcome)
	}
}

func TestStaleSignalRejectedBeforeTerminalCall(t *testing.T) {
	cfg := fixedLot(0.1)
	cfg.MaxSlippagePips = 5
	rig := newRig(t, cfg, models.StealthConfig{}, models.GuardianConfig{})
	rig.term.SetTick("EURUSD", 1.0898, 1.0900)

	sig := models.Signal{Pair: "EURUSD", Action: "BUY", EntryPrice: 1.0850, HasEntry: true, SignalID: "s1"}
	err := rig.ctrl.HandleSignal(context.Background(), sig)

	var ee *models.ExecutionError
	if !errors.As(err, &ee) || !strings.Contains(ee.Reason, "deviation") {
		t.Fatalf("expected slippage rejection, got %v", err)
	}
	if rig.term.SentCount() != 0 {
		t.Fatalf("terminal call issued despite stale price: %d", rig.term.SentCount())
	}
	if rig.journal.last().Outcome != "failure" {
		t.Errorf("rejection not journaled: %+v", rig.journal.last())
	}
}

func TestUnknownSymbolRejected(t *testing.T) {
	rig := newRig(t, fixedLot(0.01), models.StealthConfig{}, models.GuardianConfig{})

	err := rig.ctrl.HandleSignal(context.Background(), models.Signal{Pair: "DOGEUSD", Action: "BUY"})
	var ve *models.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if rig.term.SentCount() != 0 {
		t.Error("terminal called for invalid signal")
	}
}

func TestRiskCapRejectionMakesNoTerminalCall(t *testing.T) {
	cfg := fixedLot(0.5)
	cfg.PairCaps = map[string]float64{"EURUSD": 0.3}
	rig := newRig(t, cfg, models.StealthConfig{}, models.GuardianConfig{})

	err := rig.ctrl.HandleSignal(context.Background(), models.Signal{Pair: "EURUSD", Action: "BUY", SignalID: "cap1"})
	var re *models.RiskError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RiskError, got %v", err)
	}
	if rig.term.SentCount() != 0 {
		t.Error("terminal called despite cap violation")
	}
}

func TestTerminalRejectionJournaledWithCodeNoRetry(t *testing.T) {
	rig := newRig(t, fixedLot(0.01), models.StealthConfig{}, models.GuardianConfig{})
	rig.term.SendErr = &models.ExecutionError{Code: 134, Reason: "not enough money"}

	err := rig.ctrl.HandleSignal(context.Background(), models.Signal{Pair: "EURUSD", Action: "BUY", SignalID: "r1"})
	var ee *models.ExecutionError
	if !errors.As(err, &ee) || ee.Code != 134 {
		t.Fatalf("expected code 134, got %v", err)
	}
	if rig.term.SentCount() != 0 {
		t.Errorf("sent = %d, want 0 (rejection must not be retried)", rig.term.SentCount())
	}
	if got := rig.journal.last(); got.Outcome != "failure" || got.Code != 134 {
		t.Errorf("journal entry = %+v", got)
	}
}

func TestPendingOrderLifecycle(t *testing.T) {
	rig := newRig(t, fixedLot(0.1), models.StealthConfig{}, models.GuardianConfig{})

	sig := models.Signal{
		Pair: "EURUSD", Action: "BUY LIMIT",
		EntryPrice: 1.0800, HasEntry: true,
		StopLoss: 1.0750, HasStopLoss: true,
		SignalID: "p1",
	}
	if err := rig.ctrl.HandleSignal(context.Background(), sig); err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}

	orders := rig.ctrl.Orders()
	if len(orders) != 1 || orders[0].Status != models.OrderPending {
		t.Fatalf("orders = %+v", orders)
	}
	if rig.term.Sent[0].Price != 1.0800 {
		t.Errorf("pending order price = %v", rig.term.Sent[0].Price)
	}

	// Cancelled before ever reaching Open.
	ticket := orders[0].Ticket
	if err := rig.ctrl.HandleCommand(context.Background(), models.Command{Kind: models.CmdClosePending, Ticket: ticket}); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if got := rig.ctrl.Orders()[0].Status; got != models.OrderCancelled {
		t.Errorf("status = %v, want Cancelled", got)
	}
	if len(rig.term.Deleted) != 1 || rig.term.Deleted[0] != ticket {
		t.Errorf("deleted = %v", rig.term.Deleted)
	}
}

func TestPartialCloseKeepsTicketAlive(t *testing.T) {
	rig := newRig(t, fixedLot(0.10), models.StealthConfig{}, models.GuardianConfig{})

	if err := rig.ctrl.HandleSignal(context.Background(), models.Signal{Pair: "EURUSD", Action: "BUY", SignalID: "pc1"}); err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}
	ticket := rig.ctrl.Orders()[0].Ticket

	cmd := models.Command{Kind: models.CmdClosePartial, SignalID: "pc1", Percent: 50}
	if err := rig.ctrl.HandleCommand(context.Background(), cmd); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}

	o := rig.ctrl.Orders()[0]
	if o.Status != models.OrderPartiallyClosed {
		t.Errorf("status = %v", o.Status)
	}
	if o.Volume != 0.05 {
		t.Errorf("remaining volume = %v, want 0.05", o.Volume)
	}
	if got := rig.term.Closed[ticket]; len(got) != 1 || got[0] != 0.05 {
		t.Errorf("terminal close volumes = %v", got)
	}
}

func TestPartialCloseBelowLotStepIsJournaledNoOp(t *testing.T) {
	rig := newRig(t, fixedLot(0.10), models.StealthConfig{}, models.GuardianConfig{})

	if err := rig.ctrl.HandleSignal(context.Background(), models.Signal{Pair: "EURUSD", Action: "BUY", SignalID: "pc2"}); err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}
	ticket := rig.ctrl.Orders()[0].Ticket

	// 1% of 0.10 lots floors to zero: nothing to close, but the outcome
	// still lands in the journal.
	cmd := models.Command{Kind: models.CmdClosePartial, SignalID: "pc2", Percent: 1}
	if err := rig.ctrl.HandleCommand(context.Background(), cmd); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}

	if got := rig.journal.last(); !strings.Contains(got.Detail, "below minimum close step") {
		t.Errorf("no-op not journaled: %+v", got)
	}
	o := rig.ctrl.Orders()[0]
	if o.Volume != 0.10 || o.Status != models.OrderOpen {
		t.Errorf("order mutated by no-op close: %+v", o)
	}
	if got := rig.term.Closed[ticket]; len(got) != 0 {
		t.Errorf("terminal close issued: %v", got)
	}
}

func TestCommandResolutionMissIsJournaledNoOp(t *testing.T) {
	rig := newRig(t, fixedLot(0.01), models.StealthConfig{}, models.GuardianConfig{})

	err := rig.ctrl.HandleCommand(context.Background(), models.Command{Kind: models.CmdCloseFull, SignalID: "ghost"})
	if err != nil {
		t.Fatalf("miss should not be an error: %v", err)
	}
	if got := rig.journal.last(); !strings.Contains(got.Detail, "no matching live order") {
		t.Errorf("miss not journaled: %+v", got)
	}
}

func TestCloseOppositeFlattensHedge(t *testing.T) {
	rig := newRig(t, fixedLot(0.1), models.StealthConfig{}, models.GuardianConfig{})

	if err := rig.ctrl.HandleSignal(context.Background(), models.Signal{Pair: "EURUSD", Action: "BUY", SignalID: "long1"}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if err := rig.ctrl.HandleSignal(context.Background(), models.Signal{Pair: "EURUSD", Action: "SELL", SignalID: "short1"}); err != nil {
		t.Fatalf("sell: %v", err)
	}

	// Close everything opposite to the long on this pair.
	cmd := models.Command{Kind: models.CmdCloseOpposite, Symbol: "EURUSD", Side: models.Buy}
	if err := rig.ctrl.HandleCommand(context.Background(), cmd); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}

	var longStatus, shortStatus models.OrderStatus
	for _, o := range rig.ctrl.Orders() {
		if o.SignalID == "long1" {
			longStatus = o.Status
		} else {
			shortStatus = o.Status
		}
	}
	if longStatus != models.OrderOpen {
		t.Errorf("long closed by close_opposite: %v", longStatus)
	}
	if shortStatus != models.OrderClosed {
		t.Errorf("short not closed: %v", shortStatus)
	}
}

func TestLadderDrivesSLMigrationAndFinalClose(t *testing.T) {
	rig := newRig(t, fixedLot(0.1), models.StealthConfig{}, models.GuardianConfig{})

	sig := models.Signal{
		Pair: "EURUSD", Action: "BUY",
		StopLoss: 1.0800, HasStopLoss: true,
		TakeProfits: []float64{1.0900, 1.0950, 1.1000},
		SignalID:    "tp1",
	}
	if err := rig.ctrl.HandleSignal(context.Background(), sig); err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}
	ticket := rig.ctrl.Orders()[0].Ticket
	entry := rig.ctrl.Orders()[0].EntryPrice

	// TP1 reached: SL to entry.
	rig.term.SetTick("EURUSD", 1.0900, 1.0902)
	rig.ctrl.TrailingCycle(context.Background())
	if got := rig.term.Modified[ticket]; got[0] != entry {
		t.Fatalf("after TP1 modify = %v, want SL %v", got, entry)
	}

	// TP2 reached: SL to TP1.
	rig.term.SetTick("EURUSD", 1.0950, 1.0952)
	rig.ctrl.TrailingCycle(context.Background())
	if got := rig.term.Modified[ticket]; got[0] != 1.0900 {
		t.Fatalf("after TP2 modify = %v, want SL 1.0900", got)
	}

	// TP3 reached: full close.
	rig.term.SetTick("EURUSD", 1.1000, 1.1002)
	rig.ctrl.TrailingCycle(context.Background())
	if got := rig.ctrl.Orders()[0].Status; got != models.OrderClosed {
		t.Fatalf("status after final TP = %v", got)
	}
	if got := rig.term.Closed[ticket]; len(got) != 1 {
		t.Errorf("close calls = %v", got)
	}
}

func TestGuardianTripClosesAllAndSuspends(t *testing.T) {
	guardCfg := models.GuardianConfig{Enabled: true, DailyLossLimit: 5, UsePercent: true}
	rig := newRig(t, fixedLot(0.1), models.StealthConfig{}, guardCfg)

	if err := rig.ctrl.HandleSignal(context.Background(), models.Signal{Pair: "EURUSD", Action: "BUY", SignalID: "gt1"}); err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}

	// Equity collapses to the limit.
	snap, _ := rig.term.Account(context.Background())
	snap.Equity = 9500
	rig.term.SetAccount(snap)

	rig.ctrl.GuardianCycle(context.Background())

	if !rig.ctrl.Suspended() {
		t.Fatal("controller not suspended after trip")
	}
	if got := rig.ctrl.Orders()[0].Status; got != models.OrderClosed {
		t.Errorf("order status = %v, want Closed", got)
	}
	if len(rig.notifier.msgs) == 0 || !strings.Contains(rig.notifier.msgs[0], "guardian") {
		t.Errorf("notifier msgs = %v", rig.notifier.msgs)
	}

	// Suspended engine rejects new signals without touching the terminal.
	sent := rig.term.SentCount()
	if err := rig.ctrl.HandleSignal(context.Background(), models.Signal{Pair: "EURUSD", Action: "BUY"}); err == nil {
		t.Error("suspended engine accepted a signal")
	}
	if rig.term.SentCount() != sent {
		t.Error("suspended engine sent an order")
	}
	if got := rig.journal.last(); got.Outcome != "failure" || !strings.Contains(got.Detail, "suspended") {
		t.Errorf("suspension rejection not journaled with cause: %+v", got)
	}

	// Manual resume re-arms everything.
	rig.ctrl.Resume(9500)
	if rig.ctrl.Suspended() {
		t.Error("Resume did not lift suspension")
	}
}

func TestGuardianTripAbortsPendingStealthDelay(t *testing.T) {
	clock := scheduler.NewVirtualClock(time.Now())
	term := terminal.NewMock()
	term.SetTick("EURUSD", 1.0848, 1.0850)
	j := &memJournal{}
	g := guardian.New(models.GuardianConfig{Enabled: true, DailyLossLimit: 5, UsePercent: true}, 10000, nil)

	ctrl := New(Deps{
		Terminal:   term,
		Normalizer: validate.New(nil),
		Risk:       risk.NewEngine(nil),
		Ladder:     ladder.NewManager(ladder.Config{}, nil),
		Stealth: stealth.New(models.StealthConfig{
			Enabled:  true,
			MinDelay: 10 * time.Second,
			MaxDelay: 20 * time.Second,
		}, clock),
		Guardian:   g,
		Journal:    j,
		RiskConfig: fixedLot(0.1),
	})

	done := make(chan error, 1)
	go func() {
		done <- ctrl.HandleSignal(context.Background(), models.Signal{Pair: "EURUSD", Action: "BUY", SignalID: "d1"})
	}()

	// Let the signal reach its stealth delay, then trip the guardian.
	time.Sleep(50 * time.Millisecond)
	snap, _ := term.Account(context.Background())
	snap.Equity = 9000
	term.SetAccount(snap)
	ctrl.GuardianCycle(context.Background())

	select {
	case err := <-done:
		if !errors.Is(err, models.ErrExecutionAborted) {
			t.Fatalf("expected ErrExecutionAborted, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("HandleSignal did not abort")
	}
	if term.SentCount() != 0 {
		t.Errorf("order sent after trip: %d", term.SentCount())
	}
}

func TestShadowStopEnforcedEngineSide(t *testing.T) {
	stealthCfg := models.StealthConfig{Enabled: true, HideLevels: true}
	rig := newRig(t, fixedLot(0.1), stealthCfg, models.GuardianConfig{})

	sig := models.Signal{
		Pair: "EURUSD", Action: "BUY",
		StopLoss: 1.0800, HasStopLoss: true,
		SignalID: "sh1",
	}
	if err := rig.ctrl.HandleSignal(context.Background(), sig); err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}

	sent := rig.term.Sent[0]
	if sent.StopLoss != 0 {
		t.Fatalf("stop loss leaked to terminal: %v", sent.StopLoss)
	}
	o := rig.ctrl.Orders()[0]
	if !o.HiddenSL || o.StopLoss != 1.0800 {
		t.Fatalf("shadow SL not retained: %+v", o)
	}

	// Price crosses the hidden stop: the engine closes the position itself.
	rig.term.SetTick("EURUSD", 1.0799, 1.0801)
	rig.ctrl.TrailingCycle(context.Background())
	if got := rig.ctrl.Orders()[0].Status; got != models.OrderClosed {
		t.Errorf("status = %v, want Closed on shadow stop", got)
	}
}

func TestSignalLotOverridesConfiguredPolicy(t *testing.T) {
	rig := newRig(t, fixedLot(0.01), models.StealthConfig{}, models.GuardianConfig{})

	sig := models.Signal{Pair: "EURUSD", Action: "BUY", LotSize: 0.25, HasLotSize: true, SignalID: "ov1"}
	if err := rig.ctrl.HandleSignal(context.Background(), sig); err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}
	if got := rig.term.Sent[0].Volume; got != 0.25 {
		t.Errorf("volume = %v, want signal override 0.25", got)
	}
}

func TestMoveAndRemoveStop(t *testing.T) {
	rig := newRig(t, fixedLot(0.1), models.StealthConfig{}, models.GuardianConfig{})

	sig := models.Signal{Pair: "EURUSD", Action: "BUY", StopLoss: 1.0800, HasStopLoss: true, SignalID: "ms1"}
	if err := rig.ctrl.HandleSignal(context.Background(), sig); err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}
	ticket := rig.ctrl.Orders()[0].Ticket

	if err := rig.ctrl.HandleCommand(context.Background(), models.Command{Kind: models.CmdMoveSL, SignalID: "ms1", Price: 1.0820}); err != nil {
		t.Fatalf("move_sl: %v", err)
	}
	if got := rig.ctrl.Orders()[0].StopLoss; got != 1.0820 {
		t.Errorf("SL = %v, want 1.0820", got)
	}
	if got := rig.term.Modified[ticket]; got[0] != 1.0820 {
		t.Errorf("terminal modify = %v", got)
	}

	if err := rig.ctrl.HandleCommand(context.Background(), models.Command{Kind: models.CmdRemoveSL, SignalID: "ms1"}); err != nil {
		t.Fatalf("remove_sl: %v", err)
	}
	if got := rig.ctrl.Orders()[0].StopLoss; got != 0 {
		t.Errorf("SL after remove = %v", got)
	}
}
