package executor

import (
	"context"
	"fmt"
	"math"

	"github.com/Alias1177/Executor/models"
)

// HandleCommand applies a provider command to its target orders. A command
// with no matching live order is a journaled no-op, not an error: providers
// routinely manage positions the engine never opened or already closed.
func (c *Controller) HandleCommand(ctx context.Context, cmd models.Command) error {
	targets := c.resolveTargets(cmd)
	if len(targets) == 0 {
		c.journal(models.JournalEntry{
			SignalID: cmd.SignalID,
			Outcome:  "success",
			Symbol:   cmd.Symbol,
			Detail:   fmt.Sprintf("command %s: no matching live order", cmd.Kind),
		})
		c.logger.Info().Str("command", string(cmd.Kind)).Str("signal_id", cmd.SignalID).Msg("Command resolved to nothing")
		return nil
	}

	var firstErr error
	for _, ticket := range targets {
		if err := c.applyCommand(ctx, cmd, ticket); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// resolveTargets picks the tickets a command applies to. Explicit ticket
// wins, then signal id, then the broadcast kinds.
func (c *Controller) resolveTargets(cmd models.Command) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []int64
	add := func(o *models.Order) { out = append(out, o.Ticket) }

	switch {
	case cmd.Ticket != 0:
		if o, ok := c.orders[cmd.Ticket]; ok && o.Status.Live() {
			add(o)
		}

	case cmd.Kind == models.CmdCloseAll:
		for _, o := range c.orders {
			if o.Status.Live() {
				add(o)
			}
		}

	case cmd.Kind == models.CmdCloseAllPending:
		for _, o := range c.orders {
			if o.Status == models.OrderPending {
				add(o)
			}
		}

	case cmd.Kind == models.CmdCloseOpposite:
		side := cmd.Side
		if side == "" {
			if ref := c.findBySignalLocked(cmd.SignalID); ref != nil {
				side = ref.Side
			}
		}
		if side == "" {
			return nil
		}
		for _, o := range c.orders {
			if o.Status.Live() && o.Symbol == cmd.Symbol && o.Side.IsLong() != side.IsLong() {
				add(o)
			}
		}

	case cmd.SignalID != "":
		for _, o := range c.orders {
			if o.Status.Live() && o.SignalID == cmd.SignalID {
				add(o)
			}
		}
	}
	return out
}

func (c *Controller) findBySignalLocked(signalID string) *models.Order {
	if signalID == "" {
		return nil
	}
	for _, o := range c.orders {
		if o.SignalID == signalID {
			return o
		}
	}
	return nil
}

func (c *Controller) applyCommand(ctx context.Context, cmd models.Command, ticket int64) error {
	c.mu.Lock()
	o, ok := c.orders[ticket]
	if !ok || !o.Status.Live() {
		c.mu.Unlock()
		return nil
	}
	snapshot := *o
	c.mu.Unlock()

	switch cmd.Kind {
	case models.CmdCloseFull, models.CmdCloseAll:
		return c.closeOrder(ctx, ticket, snapshot.Volume, "command "+string(cmd.Kind))

	case models.CmdClosePartial, models.CmdCloseByPercent:
		vol := cmd.Volume
		if vol <= 0 && cmd.Percent > 0 {
			vol = snapshot.Volume * cmd.Percent / 100
		}
		vol = math.Floor(vol*100+1e-9) / 100
		if vol <= 0 {
			c.journal(models.JournalEntry{
				SignalID: snapshot.SignalID,
				Outcome:  "success",
				Symbol:   snapshot.Symbol,
				Side:     snapshot.Side,
				Detail:   fmt.Sprintf("command %s: volume below minimum close step, nothing closed", cmd.Kind),
			})
			return nil
		}
		if vol >= snapshot.Volume {
			return c.closeOrder(ctx, ticket, snapshot.Volume, "command "+string(cmd.Kind))
		}
		return c.partialClose(ctx, ticket, vol)

	case models.CmdClosePending, models.CmdCloseAllPending:
		if snapshot.Status != models.OrderPending {
			return nil
		}
		return c.cancelPending(ctx, ticket, "command "+string(cmd.Kind))

	case models.CmdTriggerPending:
		return c.triggerPending(ctx, ticket)

	case models.CmdBreakEven:
		if snapshot.Status == models.OrderPending {
			return nil
		}
		return c.modifyStop(ctx, ticket, snapshot.EntryPrice)

	case models.CmdMoveSL:
		return c.modifyStop(ctx, ticket, cmd.Price)

	case models.CmdRemoveSL:
		return c.modifyStop(ctx, ticket, 0)

	case models.CmdMoveTP:
		return c.moveTakeProfit(ctx, ticket, cmd.Price)

	case models.CmdMoveEntry:
		if snapshot.Status != models.OrderPending {
			return nil
		}
		return c.moveEntry(ctx, ticket, cmd.Price)

	case models.CmdCloseOpposite:
		return c.closeOrder(ctx, ticket, snapshot.Volume, "command close_opposite")
	}

	c.logger.Warn().Str("command", string(cmd.Kind)).Msg("Unknown command kind")
	return nil
}

// closeOrder fully closes an open order or cancels a pending one.
func (c *Controller) closeOrder(ctx context.Context, ticket int64, volume float64, reason string) error {
	c.mu.Lock()
	o, ok := c.orders[ticket]
	if !ok || !o.Status.Live() {
		c.mu.Unlock()
		return nil
	}
	pending := o.Status == models.OrderPending
	snapshot := *o
	c.mu.Unlock()

	if pending {
		return c.cancelPending(ctx, ticket, reason)
	}

	if err := c.deps.Terminal.OrderClose(ctx, ticket, volume); err != nil {
		c.journalFailure(snapshot.SignalID, snapshot.Symbol, snapshot.Side, "close failed: "+err.Error(), 0)
		return err
	}

	c.mu.Lock()
	o.Status = models.OrderClosed
	c.mu.Unlock()

	c.journal(models.JournalEntry{
		SignalID: snapshot.SignalID,
		Outcome:  "success",
		Symbol:   snapshot.Symbol,
		Side:     snapshot.Side,
		Volume:   volume,
		Detail:   fmt.Sprintf("ticket %d closed: %s", ticket, reason),
	})
	return nil
}

func (c *Controller) cancelPending(ctx context.Context, ticket int64, reason string) error {
	c.mu.Lock()
	o, ok := c.orders[ticket]
	if !ok || o.Status != models.OrderPending {
		c.mu.Unlock()
		return nil
	}
	snapshot := *o
	c.mu.Unlock()

	if err := c.deps.Terminal.OrderDelete(ctx, ticket); err != nil {
		c.journalFailure(snapshot.SignalID, snapshot.Symbol, snapshot.Side, "cancel failed: "+err.Error(), 0)
		return err
	}

	c.mu.Lock()
	o.Status = models.OrderCancelled
	c.mu.Unlock()

	c.journal(models.JournalEntry{
		SignalID: snapshot.SignalID,
		Outcome:  "success",
		Symbol:   snapshot.Symbol,
		Side:     snapshot.Side,
		Detail:   fmt.Sprintf("ticket %d cancelled: %s", ticket, reason),
	})
	return nil
}

// partialClose reduces an order's volume, keeping the ticket logically alive.
func (c *Controller) partialClose(ctx context.Context, ticket int64, volume float64) error {
	c.mu.Lock()
	o, ok := c.orders[ticket]
	if !ok || !o.Status.Live() || o.Status == models.OrderPending {
		c.mu.Unlock()
		return nil
	}
	snapshot := *o
	c.mu.Unlock()

	if err := c.deps.Terminal.OrderClose(ctx, ticket, volume); err != nil {
		c.journalFailure(snapshot.SignalID, snapshot.Symbol, snapshot.Side, "partial close failed: "+err.Error(), 0)
		return err
	}

	c.mu.Lock()
	o.Volume = round2(o.Volume - volume)
	if o.Volume <= 0 {
		o.Status = models.OrderClosed
	} else {
		o.Status = models.OrderPartiallyClosed
	}
	remaining := o.Volume
	c.mu.Unlock()

	c.journal(models.JournalEntry{
		SignalID: snapshot.SignalID,
		Outcome:  "success",
		Symbol:   snapshot.Symbol,
		Side:     snapshot.Side,
		Volume:   volume,
		Detail:   fmt.Sprintf("ticket %d partial close, %.2f remaining", ticket, remaining),
	})
	return nil
}

// triggerPending converts a pending order to an immediate market order.
func (c *Controller) triggerPending(ctx context.Context, ticket int64) error {
	c.mu.Lock()
	o, ok := c.orders[ticket]
	if !ok || o.Status != models.OrderPending {
		c.mu.Unlock()
		return nil
	}
	snapshot := *o
	c.mu.Unlock()

	if err := c.deps.Terminal.OrderDelete(ctx, ticket); err != nil {
		c.journalFailure(snapshot.SignalID, snapshot.Symbol, snapshot.Side, "trigger: delete failed: "+err.Error(), 0)
		return err
	}

	side := models.Buy
	if !snapshot.Side.IsLong() {
		side = models.Sell
	}
	result, err := c.deps.Terminal.OrderSend(ctx, models.OrderRequest{
		Symbol:     snapshot.Symbol,
		Side:       side,
		Volume:     snapshot.Volume,
		StopLoss:   terminalLevel(snapshot, snapshot.StopLoss),
		TakeProfit: terminalLevel(snapshot, lastTP(snapshot)),
		Comment:    snapshot.Comment,
		Magic:      snapshot.Magic,
	})
	if err != nil {
		c.journalFailure(snapshot.SignalID, snapshot.Symbol, snapshot.Side, "trigger: send failed: "+err.Error(), 0)
		return err
	}

	c.mu.Lock()
	delete(c.orders, ticket)
	now := *o
	now.Ticket = result.Ticket
	now.Side = side
	now.Status = models.OrderOpen
	if result.FilledPrice > 0 {
		now.EntryPrice = result.FilledPrice
	}
	c.orders[result.Ticket] = &now
	c.mu.Unlock()

	c.journal(models.JournalEntry{
		SignalID:    snapshot.SignalID,
		Outcome:     "success",
		Symbol:      snapshot.Symbol,
		Side:        side,
		Volume:      snapshot.Volume,
		FilledPrice: result.FilledPrice,
		Detail:      fmt.Sprintf("pending %d triggered as ticket %d", ticket, result.Ticket),
	})
	return nil
}

func (c *Controller) modifyStop(ctx context.Context, ticket int64, price float64) error {
	c.mu.Lock()
	o, ok := c.orders[ticket]
	if !ok || !o.Status.Live() {
		c.mu.Unlock()
		return nil
	}
	hidden := o.HiddenSL
	tp := terminalLevel(*o, lastTP(*o))
	snapshot := *o
	c.mu.Unlock()

	if !hidden {
		if err := c.deps.Terminal.OrderModify(ctx, ticket, price, tp); err != nil {
			c.journalFailure(snapshot.SignalID, snapshot.Symbol, snapshot.Side, "modify failed: "+err.Error(), 0)
			return err
		}
	}

	c.mu.Lock()
	o.StopLoss = price
	c.mu.Unlock()

	c.journal(models.JournalEntry{
		SignalID: snapshot.SignalID,
		Outcome:  "success",
		Symbol:   snapshot.Symbol,
		Side:     snapshot.Side,
		StopLoss: price,
		Detail:   fmt.Sprintf("ticket %d stop moved to %.5f", ticket, price),
	})
	return nil
}

// moveTakeProfit replaces the whole ladder with a single absolute level.
func (c *Controller) moveTakeProfit(ctx context.Context, ticket int64, price float64) error {
	c.mu.Lock()
	o, ok := c.orders[ticket]
	if !ok || !o.Status.Live() {
		c.mu.Unlock()
		return nil
	}
	hidden := o.HiddenSL
	sl := o.StopLoss
	snapshot := *o
	c.mu.Unlock()

	if !hidden {
		if err := c.deps.Terminal.OrderModify(ctx, ticket, sl, price); err != nil {
			c.journalFailure(snapshot.SignalID, snapshot.Symbol, snapshot.Side, "modify failed: "+err.Error(), 0)
			return err
		}
	}

	c.mu.Lock()
	o.TakeProfits = []float64{price}
	o.NextTP = 0
	c.mu.Unlock()

	c.journal(models.JournalEntry{
		SignalID:   snapshot.SignalID,
		Outcome:    "success",
		Symbol:     snapshot.Symbol,
		Side:       snapshot.Side,
		TakeProfit: price,
		Detail:     fmt.Sprintf("ticket %d take-profit moved to %.5f", ticket, price),
	})
	return nil
}

// moveEntry re-places a pending order at a new entry. The bridge has no
// entry-modify call, so this is delete-and-recreate under the same magic.
func (c *Controller) moveEntry(ctx context.Context, ticket int64, price float64) error {
	c.mu.Lock()
	o, ok := c.orders[ticket]
	if !ok || o.Status != models.OrderPending {
		c.mu.Unlock()
		return nil
	}
	snapshot := *o
	c.mu.Unlock()

	if err := c.deps.Terminal.OrderDelete(ctx, ticket); err != nil {
		c.journalFailure(snapshot.SignalID, snapshot.Symbol, snapshot.Side, "move entry: delete failed: "+err.Error(), 0)
		return err
	}

	result, err := c.deps.Terminal.OrderSend(ctx, models.OrderRequest{
		Symbol:     snapshot.Symbol,
		Side:       snapshot.Side,
		Volume:     snapshot.Volume,
		Price:      price,
		StopLoss:   terminalLevel(snapshot, snapshot.StopLoss),
		TakeProfit: terminalLevel(snapshot, lastTP(snapshot)),
		Comment:    snapshot.Comment,
		Magic:      snapshot.Magic,
	})
	if err != nil {
		c.journalFailure(snapshot.SignalID, snapshot.Symbol, snapshot.Side, "move entry: send failed: "+err.Error(), 0)
		return err
	}

	c.mu.Lock()
	delete(c.orders, ticket)
	moved := *o
	moved.Ticket = result.Ticket
	moved.EntryPrice = price
	c.orders[result.Ticket] = &moved
	c.mu.Unlock()

	c.journal(models.JournalEntry{
		SignalID:       snapshot.SignalID,
		Outcome:        "success",
		Symbol:         snapshot.Symbol,
		Side:           snapshot.Side,
		RequestedPrice: price,
		Detail:         fmt.Sprintf("pending %d moved to %.5f as ticket %d", ticket, price, result.Ticket),
	})
	return nil
}

// terminalLevel returns the level as sent to the terminal: 0 when the
// stealth layer keeps levels engine-side.
func terminalLevel(o models.Order, level float64) float64 {
	if o.HiddenSL {
		return 0
	}
	return level
}

func lastTP(o models.Order) float64 {
	if len(o.TakeProfits) == 0 {
		return 0
	}
	return o.TakeProfits[len(o.TakeProfits)-1]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
