package synth

import (
	"context"
	"fmt"
	"math"
)

var mockVoices = []string{
	"af_bella",
	"af_sarah",
	"af_sky",
	"am_adam",
	"am_michael",
	"bf_emma",
	"bm_george",
}

type mockSynth struct {
	sampleRate int
	voices     []string
}

// NewMock returns a synthesizer that produces a short tone instead of speech.
// Useful for development on machines without a voice model.
func NewMock(sampleRate int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, voices: mockVoices}
}

func (m *mockSynth) Voices() []string {
	out := make([]string, len(m.voices))
	copy(out, m.voices)
	return out
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if req.Speed <= 0 {
		return Audio{}, fmt.Errorf("%w: %v", ErrInvalidSpeed, req.Speed)
	}
	known := false
	for _, v := range m.voices {
		if v == req.Voice {
			known = true
			break
		}
	}
	if !known {
		return Audio{}, fmt.Errorf("%w: %q", ErrUnknownVoice, req.Voice)
	}
	if err := ctx.Err(); err != nil {
		return Audio{}, err
	}

	// A 300ms tone at speed 1.0; faster speech means shorter audio.
	n := int(float64(m.sampleRate) * 0.3 / req.Speed)
	if n < 1 {
		n = 1
	}
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.2 * float32(math.Sin(2*math.Pi*220*float64(i)/float64(m.sampleRate)))
	}
	return Audio{Samples: samples, SampleRate: m.sampleRate}, nil
}
