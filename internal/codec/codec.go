// Package codec parses and serializes the protocol-surface messages:
// inbound signal messages and outbound status/heartbeat records.
package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Alias1177/Executor/models"
)

// wireSignal mirrors the external message schema. Pointers distinguish
// "absent" from zero, which matters for entry/lot defaults downstream.
type wireSignal struct {
	Pair       string          `json:"pair"`
	Action     string          `json:"action"`
	EntryPrice *float64        `json:"entry_price"`
	StopLoss   *float64        `json:"stop_loss"`
	TakeProfit json.RawMessage `json:"take_profit"`
	LotSize    *float64        `json:"lot_size"`
	SignalID   string          `json:"signal_id"`
	Comment    string          `json:"comment"`
}

// DecodeSignal parses a signal message. It tolerates keys in any order and
// absent optional fields, and returns a *models.DecodeError naming the
// offending field on malformed input.
func DecodeSignal(data []byte) (models.Signal, error) {
	var w wireSignal
	if err := json.Unmarshal(data, &w); err != nil {
		return models.Signal{}, &models.DecodeError{Field: fieldFromJSONError(err), Reason: err.Error()}
	}

	if strings.TrimSpace(w.Pair) == "" {
		return models.Signal{}, &models.DecodeError{Field: "pair", Reason: "missing or empty"}
	}
	if strings.TrimSpace(w.Action) == "" {
		return models.Signal{}, &models.DecodeError{Field: "action", Reason: "missing or empty"}
	}

	sig := models.Signal{
		Pair:     strings.TrimSpace(w.Pair),
		Action:   strings.TrimSpace(w.Action),
		SignalID: w.SignalID,
		Comment:  w.Comment,
	}
	if w.EntryPrice != nil {
		sig.EntryPrice = *w.EntryPrice
		sig.HasEntry = true
	}
	if w.StopLoss != nil {
		sig.StopLoss = *w.StopLoss
		sig.HasStopLoss = true
	}
	if w.LotSize != nil {
		if *w.LotSize < 0 {
			return models.Signal{}, &models.DecodeError{Field: "lot_size", Reason: "negative"}
		}
		sig.LotSize = *w.LotSize
		sig.HasLotSize = true
	}

	tps, err := decodeTakeProfit(w.TakeProfit)
	if err != nil {
		return models.Signal{}, err
	}
	sig.TakeProfits = tps

	return sig, nil
}

// decodeTakeProfit accepts a single number, an array of numbers, or nothing.
func decodeTakeProfit(raw json.RawMessage) ([]float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var one float64
	if err := json.Unmarshal(raw, &one); err == nil {
		return []float64{one}, nil
	}

	var many []float64
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, &models.DecodeError{Field: "take_profit", Reason: "expected number or array of numbers"}
	}
	return many, nil
}

// wireCommand mirrors the pre-parsed provider command schema.
type wireCommand struct {
	Command  string  `json:"command"`
	SignalID string  `json:"signal_id"`
	Ticket   int64   `json:"ticket"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Price    float64 `json:"price"`
	Percent  float64 `json:"percent"`
	Volume   float64 `json:"volume"`
}

var knownCommands = map[models.CommandKind]bool{
	models.CmdCloseFull:       true,
	models.CmdClosePartial:    true,
	models.CmdClosePending:    true,
	models.CmdTriggerPending:  true,
	models.CmdBreakEven:       true,
	models.CmdMoveSL:          true,
	models.CmdMoveTP:          true,
	models.CmdMoveEntry:       true,
	models.CmdRemoveSL:        true,
	models.CmdCloseByPercent:  true,
	models.CmdCloseAll:        true,
	models.CmdCloseAllPending: true,
	models.CmdCloseOpposite:   true,
}

// DecodeCommand parses a provider command message. The command name must be
// one of the known kinds; anything else is a *models.DecodeError.
func DecodeCommand(data []byte) (models.Command, error) {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return models.Command{}, &models.DecodeError{Field: fieldFromJSONError(err), Reason: err.Error()}
	}

	kind := models.CommandKind(strings.ToLower(strings.TrimSpace(w.Command)))
	if !knownCommands[kind] {
		return models.Command{}, &models.DecodeError{Field: "command", Reason: "unknown command " + w.Command}
	}

	return models.Command{
		Kind:     kind,
		SignalID: w.SignalID,
		Ticket:   w.Ticket,
		Symbol:   strings.ToUpper(strings.TrimSpace(w.Symbol)),
		Side:     models.OrderSide(strings.ToUpper(strings.TrimSpace(w.Side))),
		Price:    w.Price,
		Percent:  w.Percent,
		Volume:   w.Volume,
	}, nil
}

// EncodeStatus serializes a status record for the protocol surface.
func EncodeStatus(rec models.StatusRecord) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding status: %w", err)
	}
	return b, nil
}

// EncodeHeartbeat serializes a heartbeat record.
func EncodeHeartbeat(rec models.HeartbeatRecord) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding heartbeat: %w", err)
	}
	return b, nil
}

// fieldFromJSONError pulls the field name out of a json type error so the
// caller sees which key was malformed rather than a generic parse failure.
func fieldFromJSONError(err error) string {
	if ute, ok := err.(*json.UnmarshalTypeError); ok && ute.Field != "" {
		return ute.Field
	}
	return "message"
}
