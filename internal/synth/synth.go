package synth

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxpipe/voxd/internal/config"
)

// Audio holds decoded samples ready to hand to a playback sink.
type Audio struct {
	Samples    []float32
	SampleRate int
}

// Request contains parameters for one synthesis call.
type Request struct {
	Text  string
	Voice string
	Speed float64
}

var (
	ErrUnknownVoice = errors.New("unknown voice")
	ErrInvalidSpeed = errors.New("speed must be positive")
	ErrSynthesis    = errors.New("synthesis failed")
)

// Synthesizer is the contract for producing audio from text.
type Synthesizer interface {
	Voices() []string
	Synthesize(ctx context.Context, req Request) (Audio, error)
}

// New builds a synthesizer for the configured mode. Failure here is fatal to
// the daemon: the server loop never starts without a working synthesizer.
func New(ctx context.Context, cfg config.SynthConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMock(cfg.SampleRate), nil
	case "exec":
		return NewExec(ctx, cfg.Command, cfg.SampleRate)
	default:
		return nil, fmt.Errorf("unsupported synth mode %q", cfg.Mode)
	}
}
