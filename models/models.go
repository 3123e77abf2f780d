package models

import (
	"time"
)

// OrderSide is the direction/type of a trade instruction.
type OrderSide string

const (
	Buy       OrderSide = "BUY"
	Sell      OrderSide = "SELL"
	BuyLimit  OrderSide = "BUY_LIMIT"
	BuyStop   OrderSide = "BUY_STOP"
	SellLimit OrderSide = "SELL_LIMIT"
	SellStop  OrderSide = "SELL_STOP"
)

// IsPending reports whether the side is a pending order type (limit/stop).
func (s OrderSide) IsPending() bool {
	return s != Buy && s != Sell
}

// IsLong reports whether the side profits from a rising price.
func (s OrderSide) IsLong() bool {
	return s == Buy || s == BuyLimit || s == BuyStop
}

// Signal is a decoded trade instruction exactly as the message carried it.
// Absent numeric fields are flagged, never silently zeroed.
type Signal struct {
	Pair        string
	Action      string
	EntryPrice  float64
	HasEntry    bool
	StopLoss    float64
	HasStopLoss bool
	TakeProfits []float64
	LotSize     float64
	HasLotSize  bool
	SignalID    string
	Comment     string
}

// NormalizedSignal is a Signal after alias resolution and side parsing.
// Immutable once produced; orders reference it by SignalID.
type NormalizedSignal struct {
	Symbol      string
	Side        OrderSide
	EntryPrice  float64
	HasEntry    bool
	StopLoss    float64
	HasStopLoss bool
	TakeProfits []float64
	LotSize     float64
	HasLotSize  bool
	SignalID    string
	Comment     string
}

// OrderStatus tracks an order through its lifecycle.
type OrderStatus string

const (
	OrderPending         OrderStatus = "PENDING"
	OrderOpen            OrderStatus = "OPEN"
	OrderPartiallyClosed OrderStatus = "PARTIALLY_CLOSED"
	OrderClosed          OrderStatus = "CLOSED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderCancelled       OrderStatus = "CANCELLED"
)

// Live reports whether the order still has exposure or can gain it.
func (s OrderStatus) Live() bool {
	return s == OrderPending || s == OrderOpen || s == OrderPartiallyClosed
}

// Order is one terminal-side position or pending order.
type Order struct {
	Ticket      int64
	SignalID    string
	Symbol      string
	Side        OrderSide
	Volume      float64
	EntryPrice  float64
	StopLoss    float64
	TakeProfits []float64
	NextTP      int // index of the next unreached take-profit level
	Status      OrderStatus
	Magic       int
	Comment     string
	OpenedAt    time.Time
	InitialRisk float64 // |entry - initial SL| in price units, for R:R math
	HiddenSL    bool    // SL/TP held engine-side only (stealth)
}

// RiskPolicy selects how trade volume is computed.
type RiskPolicy string

const (
	PolicyFixedLot       RiskPolicy = "fixed_lot"
	PolicyPercentBalance RiskPolicy = "percent_balance"
	PolicyPercentEquity  RiskPolicy = "percent_equity"
	PolicyRiskPerTrade   RiskPolicy = "risk_per_trade"
	PolicyFromSignal     RiskPolicy = "from_signal"
)

// RiskConfig is the sizing and slippage policy for the engine.
type RiskConfig struct {
	Policy          RiskPolicy
	FixedLot        float64
	RiskPercent     float64 // percent of balance/equity per trade
	RiskAmount      float64 // account currency risked per trade (risk_per_trade)
	MaxSlippagePips float64
	PairCaps        map[string]float64 // cumulative open volume cap per symbol
	DefaultPairCap  float64            // 0 = uncapped
}

// PairCap returns the cumulative volume cap for a symbol, 0 meaning uncapped.
func (c RiskConfig) PairCap(symbol string) float64 {
	if v, ok := c.PairCaps[symbol]; ok {
		return v
	}
	return c.DefaultPairCap
}

// GuardianConfig configures the account-level circuit breaker.
type GuardianConfig struct {
	Enabled           bool
	DailyProfitTarget float64 // absolute gain or percent, per UsePercent
	DailyLossLimit    float64 // positive number; loss of this much trips
	UsePercent        bool
	DrawdownPct       float64 // open-position drawdown trigger, 0 = disabled
}

// StealthConfig configures execution obfuscation.
type StealthConfig struct {
	Enabled       bool
	MinDelay      time.Duration
	MaxDelay      time.Duration
	LotJitterPct  float64 // e.g. 5 = up to ±5% volume jitter
	StripComments bool
	HideLevels    bool // omit SL/TP from terminal, enforce engine-side
	PairCaps      map[string]float64
}

// AccountSnapshot is a point-in-time view of the trading account and
// the broker's lot constraints.
type AccountSnapshot struct {
	Account    string
	Currency   string
	Balance    float64
	Equity     float64
	MinLot     float64
	MaxLot     float64
	LotStep    float64
	OpenVolume map[string]float64 // per-symbol open volume
	At         time.Time
}

// Tick is the current quote for a symbol.
type Tick struct {
	Symbol string
	Bid    float64
	Ask    float64
	At     time.Time
}

// StatusRecord is published to the protocol surface after state changes.
type StatusRecord struct {
	Status    string    `json:"status"` // initialized | executed | error | stopped
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Terminal  string    `json:"terminal"`
	Account   string    `json:"account"`
}

// HeartbeatRecord is published periodically; overwritten each cycle.
type HeartbeatRecord struct {
	Timestamp         time.Time `json:"timestamp"`
	TerminalConnected bool      `json:"terminal_connected"`
	AutoTradeEnabled  bool      `json:"auto_trade_enabled"`
	Account           string    `json:"account"`
	Balance           float64   `json:"balance"`
	Equity            float64   `json:"equity"`
}

// JournalEntry is one immutable record of an execution attempt.
type JournalEntry struct {
	Time           time.Time
	SignalID       string
	Outcome        string // success | failure
	Symbol         string
	Side           OrderSide
	Volume         float64
	RequestedPrice float64
	FilledPrice    float64
	StopLoss       float64
	TakeProfit     float64
	Code           int // terminal return code, 0 when not applicable
	Detail         string
}

// CommandKind identifies a provider command pre-parsed by the upstream layer.
type CommandKind string

const (
	CmdCloseFull       CommandKind = "close_full"
	CmdClosePartial    CommandKind = "close_partial"
	CmdClosePending    CommandKind = "close_pending"
	CmdTriggerPending  CommandKind = "trigger_pending"
	CmdBreakEven       CommandKind = "break_even"
	CmdMoveSL          CommandKind = "move_sl"
	CmdMoveTP          CommandKind = "move_tp"
	CmdMoveEntry       CommandKind = "move_entry"
	CmdRemoveSL        CommandKind = "remove_sl"
	CmdCloseByPercent  CommandKind = "close_by_percent"
	CmdCloseAll        CommandKind = "close_all"
	CmdCloseAllPending CommandKind = "close_all_pending"
	CmdCloseOpposite   CommandKind = "close_opposite"
)

// Command targets live orders by signal id or explicit ticket.
type Command struct {
	Kind     CommandKind
	SignalID string
	Ticket   int64
	Symbol   string
	Side     OrderSide // reference side for close_opposite
	Price    float64   // target price for move_* commands
	Percent  float64   // for close_partial / close_by_percent
	Volume   float64   // absolute volume for close_partial
}

// OrderRequest is what the engine asks the terminal to do.
type OrderRequest struct {
	Symbol     string
	Side       OrderSide
	Volume     float64
	Price      float64 // 0 = market
	StopLoss   float64 // 0 = none
	TakeProfit float64 // 0 = none
	Comment    string
	Magic      int
}

// OrderResult is the terminal's answer to an OrderRequest.
type OrderResult struct {
	Ticket      int64
	FilledPrice float64
	Code        int
}
