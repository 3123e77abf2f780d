package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/Alias1177/Executor/models"
)

// GuardianCycle evaluates the equity guardian against a fresh account
// snapshot. On a trip it aborts any pending stealth delay, closes every
// live order, suspends execution for the session and notifies the operator.
func (c *Controller) GuardianCycle(ctx context.Context) {
	if c.deps.Guardian == nil {
		return
	}

	snap, err := c.deps.Terminal.Account(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Guardian: account snapshot unavailable")
		return
	}

	tripped, cause := c.deps.Guardian.Evaluate(snap)
	if !tripped {
		return
	}
	c.trip(ctx, cause)
}

func (c *Controller) trip(ctx context.Context, cause string) {
	c.mu.Lock()
	c.suspended = true
	c.suspendReason = cause
	cancel := c.cancelInFlight
	tickets := make([]int64, 0, len(c.orders))
	for _, o := range c.orders {
		if o.Status.Live() {
			tickets = append(tickets, o.Ticket)
		}
	}
	c.mu.Unlock()

	// Abort a stealth delay in progress: nothing may fire after the trip.
	if cancel != nil {
		cancel()
	}

	for _, ticket := range tickets {
		c.mu.Lock()
		vol := float64(0)
		if o, ok := c.orders[ticket]; ok {
			vol = o.Volume
		}
		c.mu.Unlock()
		if err := c.closeOrder(ctx, ticket, vol, "guardian trip"); err != nil {
			c.logger.Error().Err(err).Int64("ticket", ticket).Msg("Guardian: close failed")
		}
	}

	c.journal(models.JournalEntry{
		Outcome: "failure",
		Detail:  "guardian trip: " + cause,
	})
	c.setStatus("stopped", "guardian trip: "+cause)
	c.logger.Warn().Str("cause", cause).Int("closed", len(tickets)).Msg("Guardian tripped, engine suspended")

	if err := c.deps.Notifier.Notify(ctx, "Equity guardian tripped: "+cause); err != nil {
		c.logger.Error().Err(err).Msg("Guardian: notify failed")
	}
}

// TrailingCycle re-evaluates every live order against the current price:
// ladder advancement, SL migration, trailing stops, shadow-level
// enforcement and synthetic pending activation.
func (c *Controller) TrailingCycle(ctx context.Context) {
	if c.deps.Ladder == nil {
		return
	}

	c.mu.Lock()
	tickets := make([]int64, 0, len(c.orders))
	for _, o := range c.orders {
		if o.Status.Live() {
			tickets = append(tickets, o.Ticket)
		}
	}
	c.mu.Unlock()

	for _, ticket := range tickets {
		c.evaluateOrder(ctx, ticket)
	}
}

func (c *Controller) evaluateOrder(ctx context.Context, ticket int64) {
	c.mu.Lock()
	o, ok := c.orders[ticket]
	if !ok || !o.Status.Live() {
		c.mu.Unlock()
		return
	}
	snapshot := *o
	c.mu.Unlock()

	tick, err := c.deps.Terminal.Tick(ctx, snapshot.Symbol)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", snapshot.Symbol).Msg("Trailing: tick unavailable")
		return
	}

	if snapshot.Status == models.OrderPending {
		c.checkPendingActivation(snapshot, tick)
		return
	}

	// Exit side price: longs close at bid, shorts at ask.
	price := tick.Bid
	if !snapshot.Side.IsLong() {
		price = tick.Ask
	}

	// Shadow stop: the terminal knows nothing about it, so the engine
	// closes the position itself when price crosses the hidden level.
	if snapshot.HiddenSL && snapshot.StopLoss > 0 && stopHit(snapshot.Side, price, snapshot.StopLoss) {
		if err := c.closeOrder(ctx, ticket, snapshot.Volume, fmt.Sprintf("shadow stop %.5f hit", snapshot.StopLoss)); err != nil {
			c.logger.Error().Err(err).Int64("ticket", ticket).Msg("Shadow stop close failed")
		}
		return
	}

	act := c.deps.Ladder.Evaluate(snapshot, price)

	if act.CloseAll {
		if err := c.closeOrder(ctx, ticket, snapshot.Volume, "take-profit ladder exhausted"); err != nil {
			c.logger.Error().Err(err).Int64("ticket", ticket).Msg("Ladder close failed")
		}
		return
	}

	if act.AdvanceTo != snapshot.NextTP {
		c.mu.Lock()
		if o, ok := c.orders[ticket]; ok {
			o.NextTP = act.AdvanceTo
		}
		c.mu.Unlock()
	}

	if act.ModifySL {
		// Rate-limited: a fast tick stream must not become a modify storm.
		if !c.modLimiter.Allow() {
			return
		}
		if err := c.modifyStop(ctx, ticket, act.NewSL); err != nil {
			c.logger.Error().Err(err).Int64("ticket", ticket).Msg("Trailing modify failed")
		}
	}
}

// checkPendingActivation synthetically flips a pending order to Open when
// price reaches its entry, for bridges without fill callbacks.
func (c *Controller) checkPendingActivation(snapshot models.Order, tick models.Tick) {
	price := tick.Ask
	if !snapshot.Side.IsLong() {
		price = tick.Bid
	}

	activated := false
	switch snapshot.Side {
	case models.BuyLimit, models.SellStop:
		activated = price <= snapshot.EntryPrice
	case models.BuyStop, models.SellLimit:
		activated = price >= snapshot.EntryPrice
	}
	if !activated {
		return
	}

	c.mu.Lock()
	if o, ok := c.orders[snapshot.Ticket]; ok && o.Status == models.OrderPending {
		o.Status = models.OrderOpen
		o.OpenedAt = time.Now()
	}
	c.mu.Unlock()

	c.logger.Info().Int64("ticket", snapshot.Ticket).Str("symbol", snapshot.Symbol).Msg("Pending order activated")
	c.journal(models.JournalEntry{
		SignalID: snapshot.SignalID,
		Outcome:  "success",
		Symbol:   snapshot.Symbol,
		Side:     snapshot.Side,
		Volume:   snapshot.Volume,
		Detail:   fmt.Sprintf("pending %d activated at %.5f", snapshot.Ticket, snapshot.EntryPrice),
	})
}

func stopHit(side models.OrderSide, price, stop float64) bool {
	if side.IsLong() {
		return price <= stop
	}
	return price >= stop
}

// Heartbeat builds the periodic heartbeat record from live terminal state.
func (c *Controller) Heartbeat(ctx context.Context) models.HeartbeatRecord {
	rec := models.HeartbeatRecord{
		Timestamp:        time.Now(),
		AutoTradeEnabled: !c.Suspended(),
	}

	snap, err := c.deps.Terminal.Account(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Heartbeat: account snapshot unavailable")
		return rec
	}

	rec.TerminalConnected = true
	rec.Account = snap.Account
	rec.Balance = snap.Balance
	rec.Equity = snap.Equity
	return rec
}
