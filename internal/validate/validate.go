// Package validate turns decoded signals into normalized, tradeable
// instructions: alias resolution, side parsing, basic field checks.
package validate

import (
	"strings"

	"github.com/Alias1177/Executor/models"
)

// DefaultAliases maps common provider symbol names to terminal instruments.
// Deployments extend or replace this table from config.
func DefaultAliases() map[string]string {
	return map[string]string{
		"GOLD":   "XAUUSD",
		"XAU":    "XAUUSD",
		"SILVER": "XAGUSD",
		"XAG":    "XAGUSD",
		"US30":   "US30",
		"DOW":    "US30",
		"NAS100": "NAS100",
	}
}

// Normalizer validates signals against a terminal instrument list and a
// configurable alias table. It is pure: no side effects, safe to share.
type Normalizer struct {
	aliases map[string]string
}

// New creates a Normalizer. A nil alias table falls back to DefaultAliases.
func New(aliases map[string]string) *Normalizer {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	upper := make(map[string]string, len(aliases))
	for k, v := range aliases {
		upper[strings.ToUpper(k)] = strings.ToUpper(v)
	}
	return &Normalizer{aliases: upper}
}

// Normalize resolves the symbol and side of a signal. instruments is the
// terminal's instrument-list snapshot; an empty list skips the known-symbol
// check (terminal offline at startup).
func (n *Normalizer) Normalize(sig models.Signal, instruments []string) (models.NormalizedSignal, error) {
	symbol := strings.ToUpper(strings.TrimSpace(sig.Pair))
	if symbol == "" {
		return models.NormalizedSignal{}, &models.ValidationError{Field: "pair", Reason: "empty symbol"}
	}
	symbol = strings.ReplaceAll(symbol, "/", "")
	if canonical, ok := n.aliases[symbol]; ok {
		symbol = canonical
	}

	if len(instruments) > 0 && !knownInstrument(symbol, instruments) {
		return models.NormalizedSignal{}, &models.ValidationError{Field: "pair", Reason: "unknown instrument " + symbol}
	}

	side, err := ParseSide(sig.Action)
	if err != nil {
		return models.NormalizedSignal{}, err
	}

	if sig.HasLotSize && sig.LotSize < 0 {
		return models.NormalizedSignal{}, &models.ValidationError{Field: "lot_size", Reason: "negative volume"}
	}

	ns := models.NormalizedSignal{
		Symbol:      symbol,
		Side:        side,
		EntryPrice:  sig.EntryPrice,
		HasEntry:    sig.HasEntry && sig.EntryPrice > 0,
		StopLoss:    sig.StopLoss,
		HasStopLoss: sig.HasStopLoss && sig.StopLoss > 0,
		TakeProfits: append([]float64(nil), sig.TakeProfits...),
		LotSize:     sig.LotSize,
		HasLotSize:  sig.HasLotSize && sig.LotSize > 0,
		SignalID:    sig.SignalID,
		Comment:     sig.Comment,
	}
	return ns, nil
}

// ParseSide resolves free-form action text to a canonical order side.
func ParseSide(action string) (models.OrderSide, error) {
	cleaned := strings.ToUpper(strings.TrimSpace(action))
	cleaned = strings.ReplaceAll(cleaned, " ", "_")
	cleaned = strings.ReplaceAll(cleaned, "-", "_")

	switch cleaned {
	case "BUY", "LONG":
		return models.Buy, nil
	case "SELL", "SHORT":
		return models.Sell, nil
	case "BUY_LIMIT", "BUYLIMIT":
		return models.BuyLimit, nil
	case "BUY_STOP", "BUYSTOP":
		return models.BuyStop, nil
	case "SELL_LIMIT", "SELLLIMIT":
		return models.SellLimit, nil
	case "SELL_STOP", "SELLSTOP":
		return models.SellStop, nil
	}
	return "", &models.ValidationError{Field: "action", Reason: "unparseable side " + action}
}

func knownInstrument(symbol string, instruments []string) bool {
	for _, inst := range instruments {
		if strings.EqualFold(inst, symbol) {
			return true
		}
	}
	return false
}
