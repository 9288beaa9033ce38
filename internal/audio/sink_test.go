package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	s := NewSink(nil, 10*time.Second, newLogger())
	s.tmpDir = t.TempDir()
	return s
}

func tone() []float32 {
	samples := make([]float32, 240)
	for i := range samples {
		samples[i] = 0.1
	}
	return samples
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no leaked temp files, found %d", len(entries))
	}
}

func TestPlayUsesFirstSucceedingPlayer(t *testing.T) {
	s := newTestSink(t)
	var invoked []string
	s.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	s.runPlayer = func(_ context.Context, bin string, args []string) error {
		invoked = append(invoked, filepath.Base(bin))
		path := args[len(args)-1]
		if !strings.HasSuffix(path, ".wav") {
			t.Fatalf("expected wav path as final argument, got %q", path)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("temp file missing during playback: %v", err)
		}
		return nil
	}

	if !s.Play(context.Background(), tone(), 24000) {
		t.Fatal("expected playback to succeed")
	}
	if len(invoked) != 1 || invoked[0] != "pw-play" {
		t.Fatalf("expected single pw-play invocation, got %v", invoked)
	}
	assertNoTempFiles(t, s.tmpDir)
}

func TestPlaySkipsMissingExecutables(t *testing.T) {
	s := newTestSink(t)
	var invoked []string
	s.lookPath = func(name string) (string, error) {
		if name == "pw-play" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + name, nil
	}
	s.runPlayer = func(_ context.Context, bin string, _ []string) error {
		invoked = append(invoked, filepath.Base(bin))
		return nil
	}

	if !s.Play(context.Background(), tone(), 24000) {
		t.Fatal("expected playback to succeed via fallback")
	}
	if len(invoked) != 1 || invoked[0] != "paplay" {
		t.Fatalf("expected paplay after pw-play skipped, got %v", invoked)
	}
}

func TestPlayTimeoutAdvancesToNextCandidate(t *testing.T) {
	s := newTestSink(t)
	var invoked []string
	s.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	s.runPlayer = func(_ context.Context, bin string, _ []string) error {
		invoked = append(invoked, filepath.Base(bin))
		if len(invoked) == 1 {
			return context.DeadlineExceeded
		}
		return nil
	}

	if !s.Play(context.Background(), tone(), 24000) {
		t.Fatal("expected playback to succeed after timeout")
	}
	if len(invoked) != 2 || invoked[1] != "paplay" {
		t.Fatalf("expected fallback to paplay, got %v", invoked)
	}
}

func TestPlayNonZeroExitAdvances(t *testing.T) {
	s := newTestSink(t)
	var invoked []string
	s.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	s.runPlayer = func(_ context.Context, bin string, _ []string) error {
		invoked = append(invoked, filepath.Base(bin))
		if len(invoked) == 1 {
			return errors.New("exit status 1")
		}
		return nil
	}

	if !s.Play(context.Background(), tone(), 24000) {
		t.Fatal("expected playback to succeed after non-zero exit")
	}
	if len(invoked) != 2 {
		t.Fatalf("expected 2 invocations, got %v", invoked)
	}
}

func TestPlayNoCandidateAvailable(t *testing.T) {
	s := newTestSink(t)
	s.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	s.runPlayer = func(context.Context, string, []string) error {
		t.Fatal("no player should run")
		return nil
	}

	if s.Play(context.Background(), tone(), 24000) {
		t.Fatal("expected playback failure with no players installed")
	}
	assertNoTempFiles(t, s.tmpDir)
}

func TestPlayCleansUpWhenAllPlayersFail(t *testing.T) {
	s := newTestSink(t)
	s.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	s.runPlayer = func(context.Context, string, []string) error {
		return errors.New("exit status 1")
	}

	if s.Play(context.Background(), tone(), 24000) {
		t.Fatal("expected playback failure")
	}
	assertNoTempFiles(t, s.tmpDir)
}

func TestPlayAplayGetsQuietFlag(t *testing.T) {
	s := newTestSink(t)
	var gotArgs []string
	s.lookPath = func(name string) (string, error) {
		if name != "aplay" {
			return "", errors.New("not found")
		}
		return "/usr/bin/aplay", nil
	}
	s.runPlayer = func(_ context.Context, _ string, args []string) error {
		gotArgs = args
		return nil
	}

	if !s.Play(context.Background(), tone(), 24000) {
		t.Fatal("expected aplay playback to succeed")
	}
	if len(gotArgs) != 2 || gotArgs[0] != "-q" {
		t.Fatalf("expected [-q <file>], got %v", gotArgs)
	}
}

func TestParseCandidates(t *testing.T) {
	got, err := ParseCandidates([]string{"pw-play --volume 1.0", "aplay -q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Name != "pw-play" || len(got[0].Args) != 2 {
		t.Fatalf("unexpected first candidate: %+v", got[0])
	}

	if _, err := ParseCandidates([]string{"aplay 'unterminated"}); err == nil {
		t.Fatal("expected error for bad quoting")
	}
	if _, err := ParseCandidates(nil); err == nil {
		t.Fatal("expected error for empty player list")
	}
}
