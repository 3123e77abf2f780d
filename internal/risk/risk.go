// Package risk computes trade volume from the configured sizing policy and
// enforces broker lot constraints and per-pair exposure caps.
package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/Alias1177/Executor/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PipValueFunc reports pip geometry for a symbol: pip size in price units and
// pip value in account currency per 1.0 lot. Injected because both depend on
// the broker's contract spec and the account currency.
type PipValueFunc func(symbol string) (pipSize, pipValue float64)

// DefaultPipValues covers the common forex/metals cases for a USD account.
func DefaultPipValues(symbol string) (float64, float64) {
	s := strings.ToUpper(symbol)
	switch {
	case strings.HasPrefix(s, "XAU"):
		return 0.1, 10.0
	case strings.HasPrefix(s, "XAG"):
		return 0.01, 50.0
	case strings.HasSuffix(s, "JPY"):
		return 0.01, 9.1
	default:
		return 0.0001, 10.0
	}
}

// Engine sizes trades. Pure aside from logging; shared safely across loops.
type Engine struct {
	pip    PipValueFunc
	logger zerolog.Logger
}

// NewEngine creates a sizing engine with the given pip lookup. A nil lookup
// falls back to DefaultPipValues.
func NewEngine(pip PipValueFunc) *Engine {
	if pip == nil {
		pip = DefaultPipValues
	}
	return &Engine{
		pip:    pip,
		logger: log.With().Str("component", "risk").Logger(),
	}
}

// ComputeVolume resolves the trade volume for a normalized signal. The result
// is clamped to the broker's lot step and min/max; violating the per-pair
// cumulative cap returns a *models.RiskError, never a truncated volume.
func (e *Engine) ComputeVolume(ns models.NormalizedSignal, cfg models.RiskConfig, snap models.AccountSnapshot) (float64, error) {
	raw, err := e.rawVolume(ns, cfg, snap)
	if err != nil {
		return 0, err
	}

	vol := clampToStep(raw, snap)
	if vol <= 0 {
		return 0, &models.RiskError{Reason: fmt.Sprintf("computed volume %.4f below broker minimum %.2f", raw, snap.MinLot)}
	}

	if cap := cfg.PairCap(ns.Symbol); cap > 0 {
		open := snap.OpenVolume[ns.Symbol]
		if open+vol > cap {
			return 0, &models.RiskError{Reason: fmt.Sprintf(
				"per-pair cap exceeded on %s: open %.2f + new %.2f > cap %.2f", ns.Symbol, open, vol, cap)}
		}
	}

	e.logger.Debug().
		Str("symbol", ns.Symbol).
		Str("policy", string(cfg.Policy)).
		Float64("volume", vol).
		Msg("Volume computed")
	return vol, nil
}

func (e *Engine) rawVolume(ns models.NormalizedSignal, cfg models.RiskConfig, snap models.AccountSnapshot) (float64, error) {
	switch cfg.Policy {
	case models.PolicyFixedLot, "":
		if cfg.FixedLot <= 0 {
			return 0, &models.RiskError{Reason: "fixed_lot policy with no lot configured"}
		}
		return cfg.FixedLot, nil

	case models.PolicyPercentBalance:
		return e.percentVolume(cfg.RiskPercent, snap.Balance, ns)

	case models.PolicyPercentEquity:
		return e.percentVolume(cfg.RiskPercent, snap.Equity, ns)

	case models.PolicyRiskPerTrade:
		if cfg.RiskAmount <= 0 {
			return 0, &models.RiskError{Reason: "risk_per_trade policy with no risk amount configured"}
		}
		return e.riskToStopVolume(cfg.RiskAmount, ns)

	case models.PolicyFromSignal:
		if !ns.HasLotSize {
			return 0, &models.RiskError{Reason: "from_signal policy but signal carries no lot size"}
		}
		return ns.LotSize, nil
	}
	return 0, &models.RiskError{Reason: "unknown risk policy " + string(cfg.Policy)}
}

// percentVolume risks a percentage of the given base against the signal's
// stop distance. Without a stop there is no distance to size against.
func (e *Engine) percentVolume(pct, base float64, ns models.NormalizedSignal) (float64, error) {
	if pct <= 0 {
		return 0, &models.RiskError{Reason: "percent policy with no percentage configured"}
	}
	return e.riskToStopVolume(base*pct/100, ns)
}

// riskToStopVolume implements volume = riskAmount / (stopPips * pipValue).
func (e *Engine) riskToStopVolume(riskAmount float64, ns models.NormalizedSignal) (float64, error) {
	if !ns.HasStopLoss || !ns.HasEntry {
		return 0, &models.RiskError{Reason: "stop-distance sizing requires entry and stop loss"}
	}
	pipSize, pipValue := e.pip(ns.Symbol)
	stopPips := math.Abs(ns.EntryPrice-ns.StopLoss) / pipSize
	if stopPips <= 0 {
		return 0, &models.RiskError{Reason: "zero stop distance"}
	}
	return riskAmount / (stopPips * pipValue), nil
}

// clampToStep rounds down to the broker lot step and clamps to min/max.
// Defaults cover a snapshot without lot constraints (tests, paper terminal).
func clampToStep(vol float64, snap models.AccountSnapshot) float64 {
	step := snap.LotStep
	if step <= 0 {
		step = 0.01
	}
	minLot := snap.MinLot
	if minLot <= 0 {
		minLot = 0.01
	}
	maxLot := snap.MaxLot
	if maxLot <= 0 {
		maxLot = 100
	}

	vol = math.Floor(vol/step+1e-9) * step
	if vol < minLot {
		return 0
	}
	if vol > maxLot {
		vol = maxLot
	}
	return vol
}
