// Package journal records every execution attempt to an append-only,
// pipe-delimited log file. Lines are never rewritten; external analytics
// consume the file as-is.
package journal

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Alias1177/Executor/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FileJournal appends one line per execution attempt.
type FileJournal struct {
	mu     sync.Mutex
	f      *os.File
	logger zerolog.Logger
}

// NewFile opens (or creates) the journal file in append mode.
func NewFile(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	return &FileJournal{
		f:      f,
		logger: log.With().Str("component", "journal").Logger(),
	}, nil
}

// Record appends an entry. Fields are pipe-delimited in a fixed order:
// timestamp|outcome|symbol|side|volume|requested|filled|sl|tp|code|signal_id|detail
func (j *FileJournal) Record(e models.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	line := FormatLine(e)
	if _, err := j.f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("appending journal entry: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

// FormatLine renders an entry in the journal's line format. Pipes inside
// free-text fields are replaced so the field count stays stable.
func FormatLine(e models.JournalEntry) string {
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return strings.Join([]string{
		ts.UTC().Format(time.RFC3339),
		sanitize(e.Outcome),
		sanitize(e.Symbol),
		sanitize(string(e.Side)),
		fmt.Sprintf("%.2f", e.Volume),
		fmt.Sprintf("%.5f", e.RequestedPrice),
		fmt.Sprintf("%.5f", e.FilledPrice),
		fmt.Sprintf("%.5f", e.StopLoss),
		fmt.Sprintf("%.5f", e.TakeProfit),
		fmt.Sprintf("%d", e.Code),
		sanitize(e.SignalID),
		sanitize(e.Detail),
	}, "|")
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "|", "/")
	return strings.ReplaceAll(s, "\n", " ")
}

// Multi fans a record out to several journals; the first error wins but all
// sinks are attempted.
type Multi struct {
	sinks []models.Journal
}

// NewMulti wraps the given sinks.
func NewMulti(sinks ...models.Journal) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Record(e models.JournalEntry) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Record(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Multi) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
