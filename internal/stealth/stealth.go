// Package stealth obfuscates execution characteristics: randomized placement
// delay, volume jitter, comment stripping and engine-side (shadow) SL/TP.
package stealth

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/Alias1177/Executor/internal/scheduler"
	"github.com/Alias1177/Executor/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Shadow carries levels withheld from the terminal but still enforced by the
// engine's own price watching.
type Shadow struct {
	Hidden     bool
	StopLoss   float64
	TakeProfit float64
}

// Layer wraps outbound order requests with the configured stealth policy.
type Layer struct {
	cfg    models.StealthConfig
	clock  models.Clock
	logger zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a stealth layer. A nil clock means the real clock.
func New(cfg models.StealthConfig, clock models.Clock) *Layer {
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	return &Layer{
		cfg:    cfg,
		clock:  clock,
		logger: log.With().Str("component", "stealth").Logger(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Apply transforms a request prior to placement. The random delay is
// cancellable: a guardian trip (or shutdown) cancels ctx and the pending
// execution is aborted instead of fired late. openVolume is the per-symbol
// exposure used for the stealth-boundary cap check.
func (l *Layer) Apply(ctx context.Context, req models.OrderRequest, openVolume map[string]float64) (models.OrderRequest, Shadow, error) {
	if !l.cfg.Enabled {
		return req, Shadow{}, nil
	}

	if cap, ok := l.cfg.PairCaps[req.Symbol]; ok && cap > 0 {
		if openVolume[req.Symbol]+req.Volume > cap {
			return req, Shadow{}, &models.RiskError{Reason: fmt.Sprintf(
				"stealth cap exceeded on %s: open %.2f + new %.2f > cap %.2f",
				req.Symbol, openVolume[req.Symbol], req.Volume, cap)}
		}
	}

	if err := l.delay(ctx); err != nil {
		return req, Shadow{}, err
	}

	req.Volume = l.jitterVolume(req.Volume)

	// Jitter is cosmetic noise, not sizing: an upward draw must never push
	// the request past the pair cap the intent check just admitted.
	if cap, ok := l.cfg.PairCaps[req.Symbol]; ok && cap > 0 {
		if room := cap - openVolume[req.Symbol]; req.Volume > room {
			req.Volume = math.Floor(room*100+1e-9) / 100
		}
	}

	if l.cfg.StripComments {
		req.Comment = l.opaqueTag()
	}

	var shadow Shadow
	if l.cfg.HideLevels {
		shadow = Shadow{Hidden: true, StopLoss: req.StopLoss, TakeProfit: req.TakeProfit}
		req.StopLoss = 0
		req.TakeProfit = 0
	}

	return req, shadow, nil
}

// delay sleeps a uniformly random duration inside the configured bounds.
func (l *Layer) delay(ctx context.Context) error {
	if l.cfg.MaxDelay <= 0 {
		return nil
	}
	min := l.cfg.MinDelay
	if min < 0 {
		min = 0
	}
	span := l.cfg.MaxDelay - min
	d := min
	if span > 0 {
		l.mu.Lock()
		d += time.Duration(l.rng.Int63n(int64(span)))
		l.mu.Unlock()
	}

	l.logger.Debug().Dur("delay", d).Msg("Stealth delay before placement")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.clock.After(d):
		return nil
	}
}

// jitterVolume applies a bounded random percentage and snaps back to a
// 0.01-lot step so the terminal never sees an unroundable volume.
func (l *Layer) jitterVolume(vol float64) float64 {
	if l.cfg.LotJitterPct <= 0 || vol <= 0 {
		return vol
	}
	l.mu.Lock()
	factor := 1 + (l.rng.Float64()*2-1)*l.cfg.LotJitterPct/100
	l.mu.Unlock()

	jittered := math.Round(vol*factor*100) / 100
	if jittered < 0.01 {
		jittered = 0.01
	}
	return jittered
}

// opaqueTag replaces a stripped comment so orders stay attributable to the
// engine without leaking provider text.
func (l *Layer) opaqueTag() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fmt.Sprintf("x%08x", l.rng.Uint32())
}
