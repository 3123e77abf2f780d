// Package ladder maintains per-order take-profit ladders: stop-loss
// migration as levels are reached, trailing stops and break-even triggers.
package ladder

import (
	"math"

	"github.com/Alias1177/Executor/internal/risk"
	"github.com/Alias1177/Executor/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config tunes ladder behavior. Zero values disable the optional features.
type Config struct {
	// SLLevelsBack controls where the stop moves when TP n is reached:
	// 1 means TP(n-1), 2 means TP(n-2), bottoming out at entry.
	SLLevelsBack int

	TrailingPips  float64 // fixed-distance trailing stop, in pips
	TrailingRR    float64 // trailing distance as a multiple of initial risk
	BreakEvenPips float64 // move SL to entry after this much profit
	BreakEvenRR   float64 // move SL to entry after profit of RR * initial risk
	MinStepPips   float64 // smallest SL change worth a modify call, default 1
}

// Action is what the ladder wants the controller to do for an order.
// Recomputing with the same inputs always yields the same Action.
type Action struct {
	AdvanceTo int // new next-to-trigger index, == order's NextTP when unchanged
	ModifySL  bool
	NewSL     float64
	CloseAll  bool // final take-profit reached
}

// Manager evaluates ladders. Stateless between calls; all order state lives
// on the Order itself so the controller stays the single owner.
type Manager struct {
	cfg    Config
	pip    risk.PipValueFunc
	logger zerolog.Logger
}

// NewManager creates a ladder manager. A nil pip lookup falls back to
// risk.DefaultPipValues.
func NewManager(cfg Config, pip risk.PipValueFunc) *Manager {
	if pip == nil {
		pip = risk.DefaultPipValues
	}
	if cfg.SLLevelsBack <= 0 {
		cfg.SLLevelsBack = 1
	}
	if cfg.MinStepPips <= 0 {
		cfg.MinStepPips = 1
	}
	return &Manager{
		cfg:    cfg,
		pip:    pip,
		logger: log.With().Str("component", "ladder").Logger(),
	}
}

// Evaluate inspects an order against the current exit price (bid for longs,
// ask for shorts) and returns the resulting action. The stop-loss target is
// monotonic: it never moves against the position, and a modify is only
// requested when the target differs from the current stop by at least the
// configured minimum step.
func (m *Manager) Evaluate(o models.Order, price float64) Action {
	act := Action{AdvanceTo: o.NextTP}
	if !o.Status.Live() || o.Status == models.OrderPending {
		return act
	}

	pipSize, _ := m.pip(o.Symbol)

	// Advance through every level the price has crossed this tick.
	reached := o.NextTP
	for reached < len(o.TakeProfits) && crossed(o.Side, price, o.TakeProfits[reached]) {
		reached++
	}
	act.AdvanceTo = reached

	if reached >= len(o.TakeProfits) && len(o.TakeProfits) > 0 {
		act.CloseAll = true
		m.logger.Debug().Int64("ticket", o.Ticket).Msg("Final take-profit reached")
		return act
	}

	target := m.stopTarget(o, price, pipSize, reached)
	if target == 0 {
		return act
	}

	// Favorable-direction and minimum-step gates.
	if o.StopLoss != 0 && !favorable(o.Side, target, o.StopLoss) {
		return act
	}
	if o.StopLoss != 0 && math.Abs(target-o.StopLoss) < m.cfg.MinStepPips*pipSize {
		return act
	}

	act.ModifySL = true
	act.NewSL = target
	return act
}

// stopTarget computes the best stop-loss candidate from the ladder rule,
// break-even triggers and trailing, taking the most protective of them.
func (m *Manager) stopTarget(o models.Order, price, pipSize float64, reached int) float64 {
	var target float64

	if lvl := m.ladderStop(o, reached); lvl != 0 {
		target = better(o.Side, target, lvl)
	}
	if be := m.breakEvenStop(o, price, pipSize); be != 0 {
		target = better(o.Side, target, be)
	}
	if tr := m.trailingStop(o, price, pipSize); tr != 0 {
		target = better(o.Side, target, tr)
	}
	return target
}

// ladderStop applies the reached-level migration rule: TP1 -> entry,
// TP n -> TP(n - SLLevelsBack), never below entry.
func (m *Manager) ladderStop(o models.Order, reached int) float64 {
	if reached == 0 {
		return 0
	}
	idx := reached - m.cfg.SLLevelsBack
	if idx <= 0 {
		return o.EntryPrice
	}
	return o.TakeProfits[idx-1]
}

func (m *Manager) breakEvenStop(o models.Order, price, pipSize float64) float64 {
	profit := profitDistance(o.Side, o.EntryPrice, price)

	if m.cfg.BreakEvenPips > 0 && profit >= m.cfg.BreakEvenPips*pipSize {
		return o.EntryPrice
	}
	if m.cfg.BreakEvenRR > 0 && o.InitialRisk > 0 && profit >= m.cfg.BreakEvenRR*o.InitialRisk {
		return o.EntryPrice
	}
	return 0
}

func (m *Manager) trailingStop(o models.Order, price, pipSize float64) float64 {
	var dist float64
	switch {
	case m.cfg.TrailingPips > 0:
		dist = m.cfg.TrailingPips * pipSize
	case m.cfg.TrailingRR > 0 && o.InitialRisk > 0:
		dist = m.cfg.TrailingRR * o.InitialRisk
	default:
		return 0
	}

	if o.Side.IsLong() {
		return price - dist
	}
	return price + dist
}

// crossed reports whether price has reached a take-profit level.
func crossed(side models.OrderSide, price, level float64) bool {
	if side.IsLong() {
		return price >= level
	}
	return price <= level
}

// favorable reports whether candidate protects more than current.
func favorable(side models.OrderSide, candidate, current float64) bool {
	if side.IsLong() {
		return candidate > current
	}
	return candidate < current
}

// better picks the more protective of two stop candidates; 0 means unset.
func better(side models.OrderSide, a, b float64) float64 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if favorable(side, b, a) {
		return b
	}
	return a
}

func profitDistance(side models.OrderSide, entry, price float64) float64 {
	if side.IsLong() {
		return price - entry
	}
	return entry - price
}
