package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxpipe/voxd/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.HistoryConfig{RetentionMode: "ephemeral"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Append(context.Background(), Entry{Kind: KindSpeak}); err != nil {
		t.Fatalf("append should be a no-op: %v", err)
	}
	entries, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent should be a no-op: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected no entries, got %v", entries)
	}
}

func TestAppendAndRecent(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{Path: filepath.Join(tmp, "history.db"), RetentionMode: "session"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	entry := Entry{
		RequestID:   "req-1",
		Kind:        KindSpeak,
		Voice:       "af_bella",
		Speed:       1.5,
		TextPreview: "Hello world",
		OK:          true,
	}
	if err := s.Append(context.Background(), entry); err != nil {
		t.Fatalf("append entry: %v", err)
	}

	entries, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.Kind != KindSpeak || got.Voice != "af_bella" || got.Speed != 1.5 {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.TextPreview != "Hello world" || !got.OK {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{Path: filepath.Join(tmp, "history.db"), RetentionMode: "session"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.Append(context.Background(), Entry{Kind: KindStartup, OK: true}); err != nil {
		t.Fatalf("append: %v", err)
	}
	s.clock = func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) }
	if err := s.Append(context.Background(), Entry{Kind: KindSpeak, OK: true}); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != KindSpeak {
		t.Fatalf("expected newest entry first, got %+v", entries[0])
	}
}

func TestPruneByAgeAndCap(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{
		Path:          filepath.Join(tmp, "history.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxUtterances: 1,
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.Append(context.Background(), Entry{Kind: KindSpeak, TextPreview: "old"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	s.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := s.Append(context.Background(), Entry{Kind: KindSpeak, TextPreview: "new"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	entries, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected old entry pruned, got %d entries", len(entries))
	}
	if entries[0].TextPreview != "new" {
		t.Fatalf("expected newest entry kept, got %+v", entries[0])
	}
}
