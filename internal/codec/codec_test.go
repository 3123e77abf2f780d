package codec

import (
	"errors"
	"strings"
	"testing"

	"github.com/Alias1177/Executor/models"
)

func TestDecodeSignal(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   bool
		wantField string
		check     func(t *testing.T, sig models.Signal)
	}{
		{
			name:  "full signal with TP array",
			input: `{"pair":"EURUSD","action":"BUY","entry_price":1.0850,"stop_loss":1.0800,"take_profit":[1.0900,1.0950,1.1000],"lot_size":0.1,"signal_id":"sig-1","comment":"scalp"}`,
			check: func(t *testing.T, sig models.Signal) {
				if sig.Pair != "EURUSD" || sig.Action != "BUY" {
					t.Errorf("pair/action = %q/%q", sig.Pair, sig.Action)
				}
				if !sig.HasEntry || sig.EntryPrice != 1.0850 {
					t.Errorf("entry = %v (has=%v)", sig.EntryPrice, sig.HasEntry)
				}
				if len(sig.TakeProfits) != 3 || sig.TakeProfits[2] != 1.1000 {
					t.Errorf("take profits = %v", sig.TakeProfits)
				}
			},
		},
		{
			name:  "scalar take_profit",
			input: `{"pair":"GBPUSD","action":"SELL","take_profit":1.2500}`,
			check: func(t *testing.T, sig models.Signal) {
				if len(sig.TakeProfits) != 1 || sig.TakeProfits[0] != 1.2500 {
					t.Errorf("take profits = %v", sig.TakeProfits)
				}
			},
		},
		{
			name:  "keys in arbitrary order, absent numerics flagged unset",
			input: `{"signal_id":"x","action":"BUY","pair":"GOLD"}`,
			check: func(t *testing.T, sig models.Signal) {
				if sig.HasEntry || sig.HasStopLoss || sig.HasLotSize {
					t.Errorf("absent fields flagged present: %+v", sig)
				}
			},
		},
		{
			name:  "explicit zero lot is present, not absent",
			input: `{"pair":"GOLD","action":"BUY","lot_size":0,"entry_price":0}`,
			check: func(t *testing.T, sig models.Signal) {
				if !sig.HasLotSize || !sig.HasEntry {
					t.Errorf("explicit zeros should be flagged present: %+v", sig)
				}
			},
		},
		{
			name:      "missing pair",
			input:     `{"action":"BUY"}`,
			wantErr:   true,
			wantField: "pair",
		},
		{
			name:      "missing action",
			input:     `{"pair":"EURUSD"}`,
			wantErr:   true,
			wantField: "action",
		},
		{
			name:      "negative lot",
			input:     `{"pair":"EURUSD","action":"BUY","lot_size":-1}`,
			wantErr:   true,
			wantField: "lot_size",
		},
		{
			name:      "take_profit wrong type",
			input:     `{"pair":"EURUSD","action":"BUY","take_profit":"soon"}`,
			wantErr:   true,
			wantField: "take_profit",
		},
		{
			name:      "entry_price wrong type",
			input:     `{"pair":"EURUSD","action":"BUY","entry_price":"high"}`,
			wantErr:   true,
			wantField: "entry_price",
		},
		{
			name:    "not json at all",
			input:   `BUY EURUSD NOW`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := DecodeSignal([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", sig)
				}
				var de *models.DecodeError
				if !errors.As(err, &de) {
					t.Fatalf("expected *DecodeError, got %T: %v", err, err)
				}
				if tt.wantField != "" && de.Field != tt.wantField {
					t.Errorf("error field = %q, want %q", de.Field, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, sig)
			}
		})
	}
}

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   bool
		wantField string
		check     func(t *testing.T, cmd models.Command)
	}{
		{
			name:  "partial close by percent",
			input: `{"command":"close_partial","signal_id":"s1","percent":50}`,
			check: func(t *testing.T, cmd models.Command) {
				if cmd.Kind != models.CmdClosePartial || cmd.SignalID != "s1" || cmd.Percent != 50 {
					t.Errorf("command = %+v", cmd)
				}
			},
		},
		{
			name:  "move sl by ticket",
			input: `{"command":"move_sl","ticket":1001,"price":1.0820}`,
			check: func(t *testing.T, cmd models.Command) {
				if cmd.Kind != models.CmdMoveSL || cmd.Ticket != 1001 || cmd.Price != 1.0820 {
					t.Errorf("command = %+v", cmd)
				}
			},
		},
		{
			name:  "close opposite normalizes symbol and side",
			input: `{"command":"CLOSE_OPPOSITE","symbol":"eurusd","side":"buy"}`,
			check: func(t *testing.T, cmd models.Command) {
				if cmd.Kind != models.CmdCloseOpposite || cmd.Symbol != "EURUSD" || cmd.Side != models.Buy {
					t.Errorf("command = %+v", cmd)
				}
			},
		},
		{
			name:      "unknown command",
			input:     `{"command":"do_a_flip"}`,
			wantErr:   true,
			wantField: "command",
		},
		{
			name:      "missing command",
			input:     `{"signal_id":"s1"}`,
			wantErr:   true,
			wantField: "command",
		},
		{
			name:    "not json",
			input:   `close everything`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := DecodeCommand([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", cmd)
				}
				var de *models.DecodeError
				if !errors.As(err, &de) {
					t.Fatalf("expected *DecodeError, got %T: %v", err, err)
				}
				if tt.wantField != "" && de.Field != tt.wantField {
					t.Errorf("error field = %q, want %q", de.Field, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cmd)
			}
		})
	}
}

func TestEncodeStatusRoundTrips(t *testing.T) {
	rec := models.StatusRecord{Status: "executed", Message: "order placed", Terminal: "mt5", Account: "12345"}
	b, err := EncodeStatus(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, key := range []string{`"status":"executed"`, `"terminal":"mt5"`, `"account":"12345"`} {
		if !strings.Contains(string(b), key) {
			t.Errorf("encoded status missing %s: %s", key, b)
		}
	}
}

func TestEncodeHeartbeatFields(t *testing.T) {
	rec := models.HeartbeatRecord{TerminalConnected: true, AutoTradeEnabled: true, Account: "12345", Balance: 10000, Equity: 10050}
	b, err := EncodeHeartbeat(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, key := range []string{`"terminal_connected":true`, `"auto_trade_enabled":true`, `"balance":10000`} {
		if !strings.Contains(string(b), key) {
			t.Errorf("encoded heartbeat missing %s: %s", key, b)
		}
	}
}
