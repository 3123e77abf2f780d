package models

import (
	"context"
	"time"
)

// TerminalAPI is the synchronous surface the terminal bridge exposes.
// OrderClose with a volume below the order's size is a partial close.
type TerminalAPI interface {
	OrderSend(ctx context.Context, req OrderRequest) (OrderResult, error)
	OrderModify(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error
	OrderClose(ctx context.Context, ticket int64, volume float64) error
	OrderDelete(ctx context.Context, ticket int64) error
	Tick(ctx context.Context, symbol string) (Tick, error)
	Account(ctx context.Context) (AccountSnapshot, error)
	Instruments(ctx context.Context) ([]string, error)
}

// Journal records every execution attempt and outcome, append-only.
type Journal interface {
	Record(entry JournalEntry) error
	Close() error
}

// Notifier delivers operator-facing messages (guardian trips, errors).
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Clock abstracts time so loops can be driven by a virtual clock in tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}
