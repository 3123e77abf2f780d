package journal

import (
	"database/sql"
	"fmt"

	"github.com/Alias1177/Executor/models"

	_ "github.com/lib/pq"
)

// PostgresJournal mirrors journal entries into a trade_journal table so the
// external analytics stack can query them. Optional; the file journal is
// always the source of truth.
type PostgresJournal struct {
	db *sql.DB
}

// ConnectionParams holds PostgreSQL connection parameters.
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewPostgres connects and ensures the journal table exists.
func NewPostgres(params ConnectionParams) (*PostgresJournal, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &PostgresJournal{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trade_journal (
			id BIGSERIAL PRIMARY KEY,
			recorded_at TIMESTAMP NOT NULL,
			signal_id TEXT,
			outcome TEXT NOT NULL,
			symbol TEXT,
			side TEXT,
			volume DOUBLE PRECISION,
			requested_price DOUBLE PRECISION,
			filled_price DOUBLE PRECISION,
			stop_loss DOUBLE PRECISION,
			take_profit DOUBLE PRECISION,
			terminal_code INTEGER,
			detail TEXT
		)
	`)
	return err
}

// Record inserts one entry; entries are never updated or deleted.
func (p *PostgresJournal) Record(e models.JournalEntry) error {
	_, err := p.db.Exec(`
		INSERT INTO trade_journal (
			recorded_at, signal_id, outcome, symbol, side, volume,
			requested_price, filled_price, stop_loss, take_profit, terminal_code, detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		e.Time, e.SignalID, e.Outcome, e.Symbol, string(e.Side), e.Volume,
		e.RequestedPrice, e.FilledPrice, e.StopLoss, e.TakeProfit, e.Code, e.Detail)
	return err
}

// Close closes the connection pool.
func (p *PostgresJournal) Close() error {
	return p.db.Close()
}
