// Package executor is the central order state machine. It owns all order
// state, drives the terminal API, and coordinates the risk, stealth, ladder
// and guardian collaborators. One signal executes end-to-end at a time.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Alias1177/Executor/internal/guardian"
	"github.com/Alias1177/Executor/internal/ladder"
	"github.com/Alias1177/Executor/internal/risk"
	"github.com/Alias1177/Executor/internal/stealth"
	"github.com/Alias1177/Executor/internal/validate"
	"github.com/Alias1177/Executor/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Deps wires the controller's collaborators.
type Deps struct {
	Terminal   models.TerminalAPI
	Normalizer *validate.Normalizer
	Risk       *risk.Engine
	Ladder     *ladder.Manager
	Stealth    *stealth.Layer
	Guardian   *guardian.Guardian
	Journal    models.Journal
	Notifier   models.Notifier

	RiskConfig   models.RiskConfig
	PipValues    risk.PipValueFunc
	Magic        int
	PlaceTimeout time.Duration
}

// Controller runs the Received -> ... -> Closed lifecycle.
type Controller struct {
	deps   Deps
	pip    risk.PipValueFunc
	logger zerolog.Logger

	// Held for the whole Received -> Placed transition so signals never
	// race each other into the account.
	execMu sync.Mutex

	// modLimiter caps modify-order traffic from the trailing loop.
	modLimiter *rate.Limiter

	mu             sync.Mutex
	orders         map[int64]*models.Order
	instruments    []string
	suspended      bool
	suspendReason  string
	cancelInFlight context.CancelFunc
	lastStatus     models.StatusRecord
}

// New creates a controller. PlaceTimeout defaults to 10s.
func New(deps Deps) *Controller {
	if deps.PipValues == nil {
		deps.PipValues = risk.DefaultPipValues
	}
	if deps.PlaceTimeout <= 0 {
		deps.PlaceTimeout = 10 * time.Second
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	return &Controller{
		deps:       deps,
		pip:        deps.PipValues,
		logger:     log.With().Str("component", "executor").Logger(),
		modLimiter: rate.NewLimiter(rate.Every(time.Second), 10),
		orders:     make(map[int64]*models.Order),
		lastStatus: models.StatusRecord{Status: "initialized", Timestamp: time.Now()},
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string) error { return nil }

// RefreshInstruments caches the terminal's instrument list for validation.
func (c *Controller) RefreshInstruments(ctx context.Context) error {
	list, err := c.deps.Terminal.Instruments(ctx)
	if err != nil {
		return fmt.Errorf("refreshing instruments: %w", err)
	}
	c.mu.Lock()
	c.instruments = list
	c.mu.Unlock()
	return nil
}

// HandleSignal runs one signal through the full pipeline. All taxonomy
// errors are handled here: the returned error is informational for the
// caller's logging, never a crash signal. The source message should be
// archived whenever the return is nil or a ValidationError/RiskError/
// ExecutionError; a models.ErrExecutionAborted return means no terminal
// interaction happened and the message must stay for reprocessing.
// DecodeErrors never reach this method.
func (c *Controller) HandleSignal(ctx context.Context, sig models.Signal) error {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	c.mu.Lock()
	suspended, reason := c.suspended, c.suspendReason
	instruments := c.instruments
	c.mu.Unlock()

	if suspended {
		c.journalFailure(sig.SignalID, sig.Pair, "", "suspended: "+reason, 0)
		return &models.ExecutionError{Reason: "engine suspended: " + reason}
	}

	// Received -> Validated
	ns, err := c.deps.Normalizer.Normalize(sig, instruments)
	if err != nil {
		c.journalFailure(sig.SignalID, sig.Pair, "", err.Error(), 0)
		c.setStatus("error", err.Error())
		return err
	}

	// Validated -> Sized
	snap, err := c.deps.Terminal.Account(ctx)
	if err != nil {
		c.journalFailure(ns.SignalID, ns.Symbol, ns.Side, "account snapshot unavailable: "+err.Error(), 0)
		c.setStatus("error", "account snapshot unavailable")
		return &models.ExecutionError{Reason: "account snapshot unavailable: " + err.Error()}
	}

	cfg := c.deps.RiskConfig
	if cfg.Policy != models.PolicyFromSignal && ns.HasLotSize {
		// Signal-supplied volume overrides the configured policy.
		cfg.Policy = models.PolicyFromSignal
	}
	volume, err := c.deps.Risk.ComputeVolume(ns, cfg, snap)
	if err != nil {
		c.journalFailure(ns.SignalID, ns.Symbol, ns.Side, err.Error(), 0)
		c.setStatus("error", err.Error())
		return err
	}

	// Sized -> Placed
	req := c.buildRequest(ns, volume)

	execCtx, cancel := context.WithCancel(ctx)
	c.setInFlightCancel(cancel)
	defer c.setInFlightCancel(nil)

	req, shadow, err := c.deps.Stealth.Apply(execCtx, req, snap.OpenVolume)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.journalFailure(ns.SignalID, ns.Symbol, ns.Side, models.ErrExecutionAborted.Error(), 0)
			return models.ErrExecutionAborted
		}
		c.journalFailure(ns.SignalID, ns.Symbol, ns.Side, err.Error(), 0)
		return err
	}

	if err := c.checkSlippage(execCtx, ns); err != nil {
		c.journalFailure(ns.SignalID, ns.Symbol, ns.Side, err.Error(), 0)
		c.setStatus("error", err.Error())
		return err
	}

	sendCtx, sendCancel := context.WithTimeout(execCtx, c.deps.PlaceTimeout)
	defer sendCancel()

	result, err := c.deps.Terminal.OrderSend(sendCtx, req)
	if err != nil {
		reason := err.Error()
		if errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
			reason = "terminal unresponsive"
		}
		var ee *models.ExecutionError
		code := 0
		if errors.As(err, &ee) {
			code = ee.Code
		}
		c.journalFailure(ns.SignalID, ns.Symbol, ns.Side, reason, code)
		c.setStatus("error", reason)
		return &models.ExecutionError{Code: code, Reason: reason}
	}

	// Placed -> {Open, Pending}
	order := c.registerOrder(ns, req, result, shadow)

	c.journal(models.JournalEntry{
		SignalID:       ns.SignalID,
		Outcome:        "success",
		Symbol:         ns.Symbol,
		Side:           ns.Side,
		Volume:         req.Volume,
		RequestedPrice: ns.EntryPrice,
		FilledPrice:    result.FilledPrice,
		StopLoss:       order.StopLoss,
		TakeProfit:     firstTP(order),
		Detail:         fmt.Sprintf("ticket %d %s", order.Ticket, order.Status),
	})
	c.setStatus("executed", fmt.Sprintf("%s %s %.2f @ %.5f", ns.Side, ns.Symbol, req.Volume, result.FilledPrice))
	c.logger.Info().
		Int64("ticket", order.Ticket).
		Str("symbol", ns.Symbol).
		Str("side", string(ns.Side)).
		Float64("volume", req.Volume).
		Msg("Signal executed")
	return nil
}

// buildRequest maps a sized signal onto a terminal request. Market orders
// carry price 0; pending orders carry the requested entry.
func (c *Controller) buildRequest(ns models.NormalizedSignal, volume float64) models.OrderRequest {
	req := models.OrderRequest{
		Symbol:  ns.Symbol,
		Side:    ns.Side,
		Volume:  volume,
		Comment: comment(ns),
		Magic:   c.deps.Magic,
	}
	if ns.Side.IsPending() {
		req.Price = ns.EntryPrice
	}
	if ns.HasStopLoss {
		req.StopLoss = ns.StopLoss
	}
	if len(ns.TakeProfits) > 0 {
		// The terminal holds only the final level; the ladder manages the
		// intermediate ones engine-side.
		req.TakeProfit = ns.TakeProfits[len(ns.TakeProfits)-1]
	}
	return req
}

// checkSlippage rejects stale market signals: the current price must be
// within MaxSlippagePips of the requested entry before anything is sent.
func (c *Controller) checkSlippage(ctx context.Context, ns models.NormalizedSignal) error {
	if ns.Side.IsPending() || !ns.HasEntry || c.deps.RiskConfig.MaxSlippagePips <= 0 {
		return nil
	}

	tick, err := c.deps.Terminal.Tick(ctx, ns.Symbol)
	if err != nil {
		return &models.ExecutionError{Reason: "tick unavailable: " + err.Error()}
	}
	price := tick.Ask
	if !ns.Side.IsLong() {
		price = tick.Bid
	}

	pipSize, _ := c.pip(ns.Symbol)
	deviation := math.Abs(price-ns.EntryPrice) / pipSize
	if deviation > c.deps.RiskConfig.MaxSlippagePips {
		return &models.ExecutionError{Reason: fmt.Sprintf(
			"price deviation %.1f pips exceeds max slippage %.1f", deviation, c.deps.RiskConfig.MaxSlippagePips)}
	}
	return nil
}

func (c *Controller) registerOrder(ns models.NormalizedSignal, req models.OrderRequest, result models.OrderResult, shadow stealth.Shadow) *models.Order {
	status := models.OrderOpen
	if ns.Side.IsPending() {
		status = models.OrderPending
	}

	entry := result.FilledPrice
	if entry == 0 {
		entry = ns.EntryPrice
	}

	sl := req.StopLoss
	if shadow.Hidden {
		sl = shadow.StopLoss
	}

	order := &models.Order{
		Ticket:      result.Ticket,
		SignalID:    ns.SignalID,
		Symbol:      ns.Symbol,
		Side:        ns.Side,
		Volume:      req.Volume,
		EntryPrice:  entry,
		StopLoss:    sl,
		TakeProfits: append([]float64(nil), ns.TakeProfits...),
		Status:      status,
		Magic:       req.Magic,
		Comment:     req.Comment,
		OpenedAt:    time.Now(),
		HiddenSL:    shadow.Hidden,
	}
	if sl > 0 && entry > 0 {
		order.InitialRisk = math.Abs(entry - sl)
	}

	c.mu.Lock()
	c.orders[order.Ticket] = order
	c.mu.Unlock()
	return order
}

// comment tags the order with the signal id so terminals that deduplicate
// by comment reject a re-sent signal after a mid-cycle restart.
func comment(ns models.NormalizedSignal) string {
	if ns.SignalID == "" {
		return ns.Comment
	}
	return "sid:" + ns.SignalID
}

func firstTP(o *models.Order) float64 {
	if len(o.TakeProfits) == 0 {
		return 0
	}
	return o.TakeProfits[0]
}

// Suspended reports whether the guardian has halted execution.
func (c *Controller) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

// Resume manually lifts a guardian suspension and re-arms the guardian.
func (c *Controller) Resume(dayStartBalance float64) {
	c.mu.Lock()
	c.suspended = false
	c.suspendReason = ""
	c.mu.Unlock()
	if c.deps.Guardian != nil {
		c.deps.Guardian.Reset(dayStartBalance)
	}
	c.setStatus("initialized", "resumed after guardian reset")
}

// Orders returns a snapshot of all tracked orders.
func (c *Controller) Orders() []models.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Order, 0, len(c.orders))
	for _, o := range c.orders {
		out = append(out, *o)
	}
	return out
}

// Status returns the last published status record.
func (c *Controller) Status() models.StatusRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStatus
}

func (c *Controller) setStatus(status, message string) {
	c.mu.Lock()
	c.lastStatus = models.StatusRecord{Status: status, Message: message, Timestamp: time.Now()}
	c.mu.Unlock()
}

func (c *Controller) setInFlightCancel(cancel context.CancelFunc) {
	c.mu.Lock()
	c.cancelInFlight = cancel
	c.mu.Unlock()
}

func (c *Controller) journalFailure(signalID, symbol string, side models.OrderSide, detail string, code int) {
	c.journal(models.JournalEntry{
		SignalID: signalID,
		Outcome:  "failure",
		Symbol:   symbol,
		Side:     side,
		Code:     code,
		Detail:   detail,
	})
}

func (c *Controller) journal(e models.JournalEntry) {
	if c.deps.Journal == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if err := c.deps.Journal.Record(e); err != nil {
		c.logger.Error().Err(err).Msg("Journal write failed")
	}
}
