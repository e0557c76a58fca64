// Package persist implements the durable snapshot mirror on disk.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/quotewatch/quotewatchd/internal/market"
	"github.com/quotewatch/quotewatchd/internal/metrics"
)

// Writer atomically mirrors snapshots to a primary file, keeping the previous
// primary contents in a backup file. A crash at any point leaves the primary
// either untouched or fully replaced, never partially written.
type Writer struct {
	primary string
	backup  string
	logger  *zap.Logger
}

// NewWriter returns a writer targeting the given primary and backup paths.
// The backup path may be empty to disable backups.
func NewWriter(primary, backup string, logger *zap.Logger) (*Writer, error) {
	if primary == "" {
		return nil, fmt.Errorf("primary path is required")
	}
	return &Writer{
		primary: primary,
		backup:  backup,
		logger:  logger,
	}, nil
}

// Write persists the snapshot. An empty snapshot is skipped entirely so a
// previously good primary file is never clobbered by no data.
func (w *Writer) Write(snap market.Snapshot) error {
	if snap.Empty() {
		return nil
	}

	if err := w.write(snap); err != nil {
		metrics.PersistErrors.Inc()
		return err
	}
	metrics.PersistWrites.Inc()
	return nil
}

func (w *Writer) write(snap market.Snapshot) error {
	payload, err := json.MarshalIndent(snap.Records, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(w.primary)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if err := writeAndSync(tmp, payload); err != nil {
		removeTemp(tmpPath, w.logger)
		return err
	}

	// The backup is best effort: a failure here must not block the new
	// primary from landing.
	w.copyPrimaryToBackup()

	if err := os.Rename(tmpPath, w.primary); err != nil {
		removeTemp(tmpPath, w.logger)
		return fmt.Errorf("rename %s to %s: %w", tmpPath, w.primary, err)
	}
	return nil
}

// writeAndSync flushes payload to stable storage before the file is closed.
// The fsync is the durability barrier: after it returns, a crash cannot
// surface a half-written temp file as the primary.
func writeAndSync(f *os.File, payload []byte) error {
	if _, err := f.Write(payload); err != nil {
		closeQuietly(f)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		closeQuietly(f)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return nil
}

func (w *Writer) copyPrimaryToBackup() {
	if w.backup == "" {
		return
	}
	current, err := os.ReadFile(w.primary)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("read primary for backup failed", zap.String("path", w.primary), zap.Error(err))
		}
		return
	}
	if err := os.WriteFile(w.backup, current, 0o600); err != nil {
		w.logger.Warn("write backup failed", zap.String("path", w.backup), zap.Error(err))
	}
}

func closeQuietly(f *os.File) {
	_ = f.Close()
}

func removeTemp(path string, logger *zap.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("remove temp file failed", zap.String("path", path), zap.Error(err))
	}
}
