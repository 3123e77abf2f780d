package terminal

import (
	"context"
	"sync"

	"github.com/Alias1177/Executor/models"
)

// Mock is an in-memory scripted terminal. Safe for concurrent use; every
// call is recorded so tests can assert on terminal traffic.
type Mock struct {
	mu sync.Mutex

	nextTicket int64
	ticks      map[string]models.Tick
	snapshot   models.AccountSnapshot
	symbols    []string

	// Scripted failures.
	SendErr   error
	ModifyErr error
	CloseErr  error

	Sent     []models.OrderRequest
	Modified map[int64][2]float64 // ticket -> {sl, tp}
	Closed   map[int64][]float64  // ticket -> close volumes, in order
	Deleted  []int64
}

// NewMock creates a mock with a sane default account.
func NewMock() *Mock {
	return &Mock{
		nextTicket: 1000,
		ticks:      make(map[string]models.Tick),
		snapshot: models.AccountSnapshot{
			Account:    "mock-1",
			Currency:   "USD",
			Balance:    10000,
			Equity:     10000,
			MinLot:     0.01,
			MaxLot:     100,
			LotStep:    0.01,
			OpenVolume: map[string]float64{},
		},
		symbols:  []string{"EURUSD", "GBPUSD", "USDJPY", "XAUUSD", "XAGUSD"},
		Modified: make(map[int64][2]float64),
		Closed:   make(map[int64][]float64),
	}
}

// SetTick scripts the quote returned for a symbol.
func (m *Mock) SetTick(symbol string, bid, ask float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks[symbol] = models.Tick{Symbol: symbol, Bid: bid, Ask: ask}
}

// SetAccount replaces the scripted account snapshot.
func (m *Mock) SetAccount(snap models.AccountSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = snap
}

// SetInstruments replaces the instrument list.
func (m *Mock) SetInstruments(symbols []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbols = symbols
}

func (m *Mock) OrderSend(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendErr != nil {
		return models.OrderResult{}, m.SendErr
	}

	m.nextTicket++
	m.Sent = append(m.Sent, req)

	filled := req.Price
	if filled == 0 {
		if t, ok := m.ticks[req.Symbol]; ok {
			if req.Side.IsLong() {
				filled = t.Ask
			} else {
				filled = t.Bid
			}
		}
	}
	m.snapshot.OpenVolume[req.Symbol] += req.Volume
	return models.OrderResult{Ticket: m.nextTicket, FilledPrice: filled}, nil
}

func (m *Mock) OrderModify(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ModifyErr != nil {
		return m.ModifyErr
	}
	m.Modified[ticket] = [2]float64{stopLoss, takeProfit}
	return nil
}

func (m *Mock) OrderClose(ctx context.Context, ticket int64, volume float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CloseErr != nil {
		return m.CloseErr
	}
	m.Closed[ticket] = append(m.Closed[ticket], volume)
	return nil
}

func (m *Mock) OrderDelete(ctx context.Context, ticket int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, ticket)
	return nil
}

func (m *Mock) Tick(ctx context.Context, symbol string) (models.Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.ticks[symbol]
	if !ok {
		return models.Tick{}, &models.ExecutionError{Reason: "no quote for " + symbol}
	}
	return t, nil
}

func (m *Mock) Account(ctx context.Context) (models.AccountSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot
	snap.OpenVolume = make(map[string]float64, len(m.snapshot.OpenVolume))
	for k, v := range m.snapshot.OpenVolume {
		snap.OpenVolume[k] = v
	}
	return snap, nil
}

func (m *Mock) Instruments(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.symbols...), nil
}

// SentCount returns how many orders reached the terminal.
func (m *Mock) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
