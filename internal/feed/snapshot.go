package feed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"fleet_tracker/internal/metrics"
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// SnapshotWatcher polls exported payload files and ingests each one when
// its content changes. Files are trusted local input, so they skip the
// key check and always land under the "file:<path>" source.
type SnapshotWatcher struct {
	paths    []string
	interval time.Duration
	ingest   Ingestor
	logger   *slog.Logger

	// seen maps path to the hash of the last content handled, accepted or
	// not, so a bad file is not retried every tick.
	seen map[string][sha256.Size]byte
}

// NewSnapshotWatcher builds a watcher over paths. interval <= 0 falls back
// to 30 seconds.
func NewSnapshotWatcher(paths []string, interval time.Duration, ingest Ingestor, logger *slog.Logger) *SnapshotWatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotWatcher{
		paths:    paths,
		interval: interval,
		ingest:   ingest,
		logger:   logger.With("component", "snapshot_feed"),
		seen:     make(map[string][sha256.Size]byte),
	}
}

// Run scans once immediately, then on every tick until ctx is cancelled.
func (w *SnapshotWatcher) Run(ctx context.Context) {
	w.scan(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *SnapshotWatcher) scan(ctx context.Context) {
	for _, path := range w.paths {
		w.scanFile(ctx, path)
	}
}

func (w *SnapshotWatcher) scanFile(ctx context.Context, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("reading snapshot", "path", path, "error", err)
		}
		return
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	sum := sha256.Sum256(raw)
	if w.seen[path] == sum {
		return
	}
	w.seen[path] = sum

	n, err := w.ingest.Ingest(ctx, "file:"+path, raw, time.Now().UTC())
	if err != nil {
		metrics.IncFeedMessage("file", "invalid")
		w.logger.Warn("snapshot rejected", "path", path, "error", err)
		return
	}
	metrics.IncFeedMessage("file", "ok")
	w.logger.Info("snapshot ingested", "path", path, "accounts", n)
}
