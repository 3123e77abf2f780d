// Package ipc is the filesystem-as-transport protocol handler: it polls a
// directory for inbound signal and command messages and publishes the
// engine's status and heartbeat records. It is the only package that touches
// the transport directories.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Executor/internal/codec"
	"github.com/Alias1177/Executor/models"
)

// SignalSink consumes decoded signals. Satisfied by the execution controller.
type SignalSink interface {
	HandleSignal(ctx context.Context, sig models.Signal) error
}

// CommandSink consumes decoded provider commands.
type CommandSink interface {
	HandleCommand(ctx context.Context, cmd models.Command) error
}

// Config holds the transport paths. CommandDir may be empty when the
// deployment has no command channel.
type Config struct {
	SignalDir     string
	CommandDir    string
	ArchiveDir    string
	StatusPath    string
	HeartbeatPath string
}

// Handler polls the transport directories and publishes protocol records.
type Handler struct {
	cfg      Config
	signals  SignalSink
	commands CommandSink
	logger   zerolog.Logger

	// Files that failed to decode stay on disk untouched; remembering them
	// keeps each from being re-read and re-logged every cycle.
	undecodable map[string]bool
}

// New creates a handler. The sink arguments must not be nil; CommandDir
// polling is skipped when commands is nil or the directory is unset.
func New(cfg Config, signals SignalSink, commands CommandSink) *Handler {
	return &Handler{
		cfg:         cfg,
		signals:     signals,
		commands:    commands,
		logger:      log.With().Str("component", "ipc").Logger(),
		undecodable: make(map[string]bool),
	}
}

// Poll processes every pending signal message in file-mtime order, oldest
// first. Each consumed message is archived after the execution attempt
// completes, whatever its outcome; only undecodable files stay in place.
func (h *Handler) Poll(ctx context.Context) {
	for _, path := range h.pending(h.cfg.SignalDir) {
		if ctx.Err() != nil {
			return
		}
		h.processSignal(ctx, path)
	}
}

// PollCommands processes pending provider command messages, mtime order.
func (h *Handler) PollCommands(ctx context.Context) {
	if h.commands == nil || h.cfg.CommandDir == "" {
		return
	}
	for _, path := range h.pending(h.cfg.CommandDir) {
		if ctx.Err() != nil {
			return
		}
		h.processCommand(ctx, path)
	}
}

// pending lists the directory's .json files sorted by modification time.
func (h *Handler) pending(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		h.logger.Warn().Err(err).Str("dir", dir).Msg("Transport directory unreadable")
		return nil
	}

	type candidate struct {
		path  string
		mtime time.Time
	}
	var found []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if h.undecodable[path] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, candidate{path: path, mtime: info.ModTime()})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].mtime.Before(found[j].mtime) })

	out := make([]string, len(found))
	for i, c := range found {
		out[i] = c.path
	}
	return out
}

func (h *Handler) processSignal(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		h.logger.Warn().Err(err).Str("file", path).Msg("Signal file unreadable")
		return
	}

	sig, err := codec.DecodeSignal(data)
	if err != nil {
		h.markUndecodable(path, err)
		return
	}

	h.logger.Info().Str("file", filepath.Base(path)).Str("signal_id", sig.SignalID).Msg("Signal received")

	// Taxonomy errors (validation, risk, execution) are already journaled by
	// the controller; the message is consumed either way. An aborted
	// execution never reached the terminal: the file stays for the next
	// cycle (or the restarted engine) to reprocess.
	if err := h.signals.HandleSignal(ctx, sig); err != nil {
		if errors.Is(err, models.ErrExecutionAborted) {
			h.logger.Warn().Str("signal_id", sig.SignalID).Msg("Execution aborted, message left for reprocessing")
			return
		}
		h.logger.Warn().Err(err).Str("signal_id", sig.SignalID).Msg("Signal rejected")
	}
	h.archive(path)
}

func (h *Handler) processCommand(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		h.logger.Warn().Err(err).Str("file", path).Msg("Command file unreadable")
		return
	}

	cmd, err := codec.DecodeCommand(data)
	if err != nil {
		h.markUndecodable(path, err)
		return
	}

	h.logger.Info().Str("command", string(cmd.Kind)).Str("signal_id", cmd.SignalID).Msg("Command received")

	if err := h.commands.HandleCommand(ctx, cmd); err != nil {
		h.logger.Warn().Err(err).Str("command", string(cmd.Kind)).Msg("Command failed")
	}
	h.archive(path)
}

func (h *Handler) markUndecodable(path string, err error) {
	var de *models.DecodeError
	if errors.As(err, &de) {
		h.logger.Error().Str("file", path).Str("field", de.Field).Str("reason", de.Reason).Msg("Undecodable message left in place")
	} else {
		h.logger.Error().Err(err).Str("file", path).Msg("Undecodable message left in place")
	}
	h.undecodable[path] = true
}

// archive moves a consumed message into a dated archive directory. When the
// rename fails the file is deleted outright: a lossy fallback, but leaving it
// behind would re-execute the signal on the next cycle.
func (h *Handler) archive(path string) {
	day := time.Now().UTC().Format("2006-01-02")
	dir := filepath.Join(h.cfg.ArchiveDir, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		h.logger.Error().Err(err).Str("file", path).Msg("Archive dir unavailable, deleting message")
		h.remove(path)
		return
	}

	target := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		h.logger.Error().Err(err).Str("file", path).Msg("Archive rename failed, deleting message")
		h.remove(path)
		return
	}
	h.logger.Debug().Str("file", filepath.Base(path)).Str("archive", target).Msg("Message archived")
}

func (h *Handler) remove(path string) {
	if err := os.Remove(path); err != nil {
		h.logger.Error().Err(err).Str("file", path).Msg("Delete fallback failed, message may reprocess")
	}
}

// WriteStatus publishes the status record, overwriting the previous one.
func (h *Handler) WriteStatus(rec models.StatusRecord) error {
	data, err := codec.EncodeStatus(rec)
	if err != nil {
		return err
	}
	return writeAtomic(h.cfg.StatusPath, data)
}

// WriteHeartbeat publishes the heartbeat record, overwriting the previous one.
func (h *Handler) WriteHeartbeat(rec models.HeartbeatRecord) error {
	data, err := codec.EncodeHeartbeat(rec)
	if err != nil {
		return err
	}
	return writeAtomic(h.cfg.HeartbeatPath, data)
}

// writeAtomic writes via a temp file in the target directory plus rename, so
// a reader never observes a half-written record.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publishing %s: %w", path, err)
	}
	return nil
}
