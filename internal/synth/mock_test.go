package synth

import (
	"context"
	"errors"
	"testing"
)

func TestMockRejectsUnknownVoice(t *testing.T) {
	m := NewMock(24000)
	_, err := m.Synthesize(context.Background(), Request{Text: "hi", Voice: "nonexistent", Speed: 1.0})
	if !errors.Is(err, ErrUnknownVoice) {
		t.Fatalf("expected ErrUnknownVoice, got %v", err)
	}
}

func TestMockRejectsNonPositiveSpeed(t *testing.T) {
	m := NewMock(24000)
	for _, speed := range []float64{0, -1.5} {
		_, err := m.Synthesize(context.Background(), Request{Text: "hi", Voice: "af_bella", Speed: speed})
		if !errors.Is(err, ErrInvalidSpeed) {
			t.Fatalf("speed %v: expected ErrInvalidSpeed, got %v", speed, err)
		}
	}
}

func TestMockProducesAudio(t *testing.T) {
	m := NewMock(24000)
	audio, err := m.Synthesize(context.Background(), Request{Text: "hello", Voice: "af_bella", Speed: 1.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if audio.SampleRate != 24000 {
		t.Fatalf("expected sample rate 24000, got %d", audio.SampleRate)
	}
	if len(audio.Samples) == 0 {
		t.Fatal("expected non-empty samples")
	}
}

func TestMockSpeedShortensAudio(t *testing.T) {
	m := NewMock(24000)
	slow, err := m.Synthesize(context.Background(), Request{Text: "hello", Voice: "af_bella", Speed: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fast, err := m.Synthesize(context.Background(), Request{Text: "hello", Voice: "af_bella", Speed: 2.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fast.Samples) >= len(slow.Samples) {
		t.Fatalf("expected faster speech to be shorter: fast=%d slow=%d", len(fast.Samples), len(slow.Samples))
	}
}

func TestMockVoiceSetIncludesDefault(t *testing.T) {
	m := NewMock(24000)
	found := false
	for _, v := range m.Voices() {
		if v == "af_bella" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected af_bella in voice set, got %v", m.Voices())
	}
}
