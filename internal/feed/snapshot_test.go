package feed

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSnapshotWatcher(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.json")

	ing := &captureIngestor{n: 1}
	w := NewSnapshotWatcher([]string{path}, time.Minute, ing, nil)

	// Missing file is quietly skipped.
	w.scan(ctx)
	if ing.calls != 0 {
		t.Fatalf("calls = %d before the file exists", ing.calls)
	}

	payload := `{"accounts":[{"nickname":"main"}],"timestamp":"2026-03-01T10:00:00Z"}`
	withBOM := append(append([]byte(nil), utf8BOM...), []byte(payload)...)
	if err := os.WriteFile(path, withBOM, 0o644); err != nil {
		t.Fatal(err)
	}

	w.scan(ctx)
	if ing.calls != 1 {
		t.Fatalf("calls = %d after first scan, want 1", ing.calls)
	}
	if ing.source != "file:"+path {
		t.Errorf("source = %q, want file:%s", ing.source, path)
	}
	if bytes.HasPrefix(ing.raw, utf8BOM) {
		t.Error("BOM should be stripped before ingest")
	}
	if string(ing.raw) != payload {
		t.Errorf("ingested %s", ing.raw)
	}

	// Unchanged content is not re-ingested.
	w.scan(ctx)
	if ing.calls != 1 {
		t.Fatalf("calls = %d after rescan of unchanged file, want 1", ing.calls)
	}

	changed := `{"accounts":[{"nickname":"alt"}],"timestamp":"2026-03-01T11:00:00Z"}`
	if err := os.WriteFile(path, []byte(changed), 0o644); err != nil {
		t.Fatal(err)
	}
	w.scan(ctx)
	if ing.calls != 2 {
		t.Fatalf("calls = %d after content change, want 2", ing.calls)
	}
}

func TestSnapshotWatcherRemembersRejects(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.json")

	ing := &captureIngestor{err: errors.New("bad payload")}
	w := NewSnapshotWatcher([]string{path}, 0, ing, nil)
	if w.interval != 30*time.Second {
		t.Errorf("interval fallback = %v, want 30s", w.interval)
	}

	if err := os.WriteFile(path, []byte(`{broken`), 0o644); err != nil {
		t.Fatal(err)
	}

	w.scan(ctx)
	if ing.calls != 1 {
		t.Fatalf("calls = %d, want 1", ing.calls)
	}

	// The same broken content is not retried on the next tick.
	w.scan(ctx)
	if ing.calls != 1 {
		t.Fatalf("calls = %d after rescan, want 1", ing.calls)
	}
}
