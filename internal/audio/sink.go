// Package audio renders synthesized samples through external system players.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
)

// Candidate is one external player invocation. The temp file path is appended
// as the final argument.
type Candidate struct {
	Name string
	Args []string
}

// DefaultCandidates returns the built-in playback fallback order: PipeWire
// first, then PulseAudio, then plain ALSA.
func DefaultCandidates() []Candidate {
	return []Candidate{
		{Name: "pw-play"},
		{Name: "paplay"},
		{Name: "aplay", Args: []string{"-q"}},
	}
}

// ParseCandidates turns shell-style command strings from config into
// candidates.
func ParseCandidates(specs []string) ([]Candidate, error) {
	parser := shellwords.NewParser()
	var out []Candidate
	for _, spec := range specs {
		args, err := parser.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("parse player command %q: %w", spec, err)
		}
		if len(args) == 0 {
			continue
		}
		out = append(out, Candidate{Name: args[0], Args: args[1:]})
	}
	if len(out) == 0 {
		return nil, errors.New("no usable player commands")
	}
	return out, nil
}

// Sink writes samples to a temporary WAV file and plays it through the first
// candidate player that succeeds.
type Sink struct {
	candidates []Candidate
	timeout    time.Duration
	log        *slog.Logger
	tmpDir     string

	lookPath  func(name string) (string, error)
	runPlayer func(ctx context.Context, bin string, args []string) error
}

func NewSink(candidates []Candidate, timeout time.Duration, log *slog.Logger) *Sink {
	if len(candidates) == 0 {
		candidates = DefaultCandidates()
	}
	return &Sink{
		candidates: candidates,
		timeout:    timeout,
		log:        log.With(slog.String("component", "audio-sink")),
		lookPath:   exec.LookPath,
		runPlayer:  runPlayer,
	}
}

// Play reports whether some player produced audio. Missing executables and
// timed-out players advance to the next candidate; the temp file is removed
// on every path out of this function.
func (s *Sink) Play(ctx context.Context, samples []float32, sampleRate int) bool {
	path, err := s.writeWAV(samples, sampleRate)
	if err != nil {
		s.log.Error("failed to write audio file", slog.String("error", err.Error()))
		return false
	}
	defer os.Remove(path)

	attempted := false
	for _, c := range s.candidates {
		bin, err := s.lookPath(c.Name)
		if err != nil {
			continue
		}
		attempted = true

		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		args := append(append([]string{}, c.Args...), path)
		err = s.runPlayer(runCtx, bin, args)
		cancel()
		if err == nil {
			s.log.Info("playback finished", slog.String("player", c.Name))
			return true
		}
		if errors.Is(err, context.DeadlineExceeded) {
			s.log.Warn("player timed out", slog.String("player", c.Name))
			continue
		}
		s.log.Warn("player failed",
			slog.String("player", c.Name),
			slog.String("error", err.Error()))
	}

	if !attempted {
		s.log.Error("no audio player available on this system")
	} else {
		s.log.Error("all audio players failed")
	}
	return false
}

func (s *Sink) writeWAV(samples []float32, sampleRate int) (string, error) {
	file, err := os.CreateTemp(s.tmpDir, "voxd_*.wav")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}

	buffer := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   make([]int, len(samples)),
	}
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		buffer.Data[i] = int(v * 32767)
	}

	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", fmt.Errorf("close wav encoder: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return file.Name(), nil
}

func runPlayer(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return context.DeadlineExceeded
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%v: %s", err, msg)
		}
		return err
	}
	return nil
}
