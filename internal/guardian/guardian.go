// Package guardian implements the account-level circuit breaker: daily
// profit/loss limits and drawdown protection evaluated on an independent
// timer. Tripped is terminal for the session; only a manual reset recovers.
package guardian

import (
	"fmt"
	"sync"
	"time"

	"github.com/Alias1177/Executor/internal/scheduler"
	"github.com/Alias1177/Executor/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State of the guardian.
type State string

const (
	Normal  State = "NORMAL"
	Tripped State = "TRIPPED"
)

// Guardian owns the trip decision only. Closing positions and suspending the
// controller happen in the execution controller, which polls Evaluate.
type Guardian struct {
	cfg    models.GuardianConfig
	clock  models.Clock
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	dayStart  float64
	day       time.Time
	tripCause string
	trippedAt time.Time
}

// New creates a guardian seeded with the day-start balance.
func New(cfg models.GuardianConfig, dayStartBalance float64, clock models.Clock) *Guardian {
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	return &Guardian{
		cfg:      cfg,
		clock:    clock,
		logger:   log.With().Str("component", "guardian").Logger(),
		state:    Normal,
		dayStart: dayStartBalance,
		day:      clock.Now().UTC().Truncate(24 * time.Hour),
	}
}

// Evaluate checks the snapshot against the configured thresholds. It returns
// true exactly once, on the Normal -> Tripped transition, so the caller acts
// on it a single time. Repeated calls while tripped return false.
func (g *Guardian) Evaluate(snap models.AccountSnapshot) (bool, string) {
	if !g.cfg.Enabled {
		return false, ""
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Tripped {
		return false, ""
	}

	g.rollDay(snap)

	if g.dayStart <= 0 {
		return false, ""
	}

	pnl := snap.Equity - g.dayStart
	pnlPct := pnl / g.dayStart * 100

	if cause := g.checkThresholds(pnl, pnlPct, snap); cause != "" {
		g.state = Tripped
		g.tripCause = cause
		g.trippedAt = g.clock.Now()
		g.logger.Warn().Str("cause", cause).Float64("equity", snap.Equity).Msg("Guardian tripped")
		return true, cause
	}
	return false, ""
}

func (g *Guardian) checkThresholds(pnl, pnlPct float64, snap models.AccountSnapshot) string {
	profit := g.cfg.DailyProfitTarget
	loss := g.cfg.DailyLossLimit

	if g.cfg.UsePercent {
		if profit > 0 && pnlPct >= profit {
			return fmt.Sprintf("daily profit target reached: %+.2f%% >= %.2f%%", pnlPct, profit)
		}
		if loss > 0 && pnlPct <= -loss {
			return fmt.Sprintf("daily loss limit reached: %+.2f%% <= -%.2f%%", pnlPct, loss)
		}
	} else {
		if profit > 0 && pnl >= profit {
			return fmt.Sprintf("daily profit target reached: %+.2f >= %.2f", pnl, profit)
		}
		if loss > 0 && pnl <= -loss {
			return fmt.Sprintf("daily loss limit reached: %+.2f <= -%.2f", pnl, loss)
		}
	}

	if g.cfg.DrawdownPct > 0 && snap.Balance > 0 {
		dd := (snap.Balance - snap.Equity) / snap.Balance * 100
		if dd >= g.cfg.DrawdownPct {
			return fmt.Sprintf("open drawdown %.2f%% >= %.2f%%", dd, g.cfg.DrawdownPct)
		}
	}
	return ""
}

// rollDay re-anchors the day-start balance when the UTC date changes. Only
// meaningful while Normal; a tripped guardian stays tripped across midnight.
func (g *Guardian) rollDay(snap models.AccountSnapshot) {
	today := g.clock.Now().UTC().Truncate(24 * time.Hour)
	if today.After(g.day) {
		g.day = today
		g.dayStart = snap.Balance
		g.logger.Info().Float64("day_start", g.dayStart).Msg("New trading day")
	}
}

// State returns the current state.
func (g *Guardian) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Cause returns the trip cause, empty while normal.
func (g *Guardian) Cause() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tripCause
}

// Reset manually re-arms the guardian with a fresh day-start balance.
func (g *Guardian) Reset(dayStartBalance float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = Normal
	g.tripCause = ""
	g.dayStart = dayStartBalance
	g.day = g.clock.Now().UTC().Truncate(24 * time.Hour)
	g.logger.Info().Float64("day_start", dayStartBalance).Msg("Guardian reset")
}
