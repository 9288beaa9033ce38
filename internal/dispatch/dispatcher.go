// Package dispatch parses protocol lines and executes them against the
// synthesizer and playback sink.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voxpipe/voxd/internal/config"
	"github.com/voxpipe/voxd/internal/history"
	"github.com/voxpipe/voxd/internal/synth"
)

// Response is the one-token outcome of handling a single input line.
type Response int

const (
	// RespNone means no output line is emitted (empty input).
	RespNone Response = iota
	RespOK
	RespError
	// RespShutdown terminates the read loop with no output line.
	RespShutdown
)

// Session is the only mutable state: current voice, current speed, and
// whether the daemon is still accepting requests. Reset on every start.
type Session struct {
	Voice   string
	Speed   float64
	Running bool
}

// Player renders decoded samples; reports whether audio was produced.
type Player interface {
	Play(ctx context.Context, samples []float32, sampleRate int) bool
}

// Recorder appends handled commands to the persistent history trail.
type Recorder interface {
	Append(ctx context.Context, e history.Entry) error
}

const (
	prefixSpeak = "SPEAK:"
	prefixVoice = "VOICE:"
	prefixSpeed = "SPEED:"
	cmdQuit     = "QUIT"
)

const previewRunes = 50

// Dispatcher owns the session and routes parsed commands to its
// collaborators. Single-threaded by design: one line is fully processed
// before the next is read, so the session needs no locking.
type Dispatcher struct {
	synth        synth.Synthesizer
	sink         Player
	recorder     Recorder
	metrics      *Metrics
	session      Session
	voices       map[string]struct{}
	synthTimeout time.Duration
	log          *slog.Logger
}

// New builds a dispatcher. The configured default voice must be in the
// synthesizer's voice set.
func New(syn synth.Synthesizer, sink Player, rec Recorder, m *Metrics, cfg config.SynthConfig, log *slog.Logger) (*Dispatcher, error) {
	voices := make(map[string]struct{})
	for _, v := range syn.Voices() {
		voices[v] = struct{}{}
	}
	if _, ok := voices[cfg.DefaultVoice]; !ok {
		return nil, fmt.Errorf("default voice %q not in synthesizer voice set", cfg.DefaultVoice)
	}
	return &Dispatcher{
		synth:    syn,
		sink:     sink,
		recorder: rec,
		metrics:  m,
		session: Session{
			Voice:   cfg.DefaultVoice,
			Speed:   1.0,
			Running: true,
		},
		voices:       voices,
		synthTimeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		log:          log.With(slog.String("component", "dispatcher")),
	}, nil
}

// Session returns a copy of the current session state.
func (d *Dispatcher) Session() Session {
	return d.session
}

// Stop marks the session as no longer running. Called from the signal
// handler before the process exits.
func (d *Dispatcher) Stop() {
	d.session.Running = false
}

// Handle processes one input line. Anything unanticipated during command
// execution is mapped to RespError; failures never terminate the server.
func (d *Dispatcher) Handle(ctx context.Context, line string) (resp Response) {
	line = strings.TrimSpace(line)
	if line == "" {
		return RespNone
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("request handling panicked", slog.Any("panic", r))
			resp = RespError
		}
	}()

	resp = d.dispatch(ctx, line)
	d.metrics.countRequest(ctx, commandName(line), resp)
	return resp
}

// dispatch checks prefixes in strict priority order, case-sensitively. A
// non-empty line matching no prefix is spoken literally.
func (d *Dispatcher) dispatch(ctx context.Context, line string) Response {
	switch {
	case strings.HasPrefix(line, prefixSpeak):
		d.speak(ctx, strings.TrimSpace(line[len(prefixSpeak):]))
		return RespOK
	case strings.HasPrefix(line, prefixVoice):
		return d.setVoice(ctx, strings.TrimSpace(line[len(prefixVoice):]))
	case strings.HasPrefix(line, prefixSpeed):
		return d.setSpeed(ctx, strings.TrimSpace(line[len(prefixSpeed):]))
	case line == cmdQuit:
		d.log.Info("quit command received")
		d.session.Running = false
		d.record(ctx, history.Entry{Kind: history.KindShutdown, OK: true})
		return RespShutdown
	default:
		d.speak(ctx, line)
		return RespOK
	}
}

// speak swallows synthesis and playback failures: they are logged and
// recorded, but the caller still receives OK. Voice and speed errors are the
// only ones surfaced as ERROR.
func (d *Dispatcher) speak(ctx context.Context, text string) {
	preview := truncate(text, previewRunes)
	d.log.Info("generating speech",
		slog.String("voice", d.session.Voice),
		slog.Float64("speed", d.session.Speed),
		slog.String("text", preview))

	sctx := ctx
	if d.synthTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, d.synthTimeout)
		defer cancel()
	}

	start := time.Now()
	audio, err := d.synth.Synthesize(sctx, synth.Request{
		Text:  text,
		Voice: d.session.Voice,
		Speed: d.session.Speed,
	})
	d.metrics.observeSynth(ctx, time.Since(start), err == nil)
	if err != nil {
		d.log.Error("speech generation failed", slog.String("error", err.Error()))
		d.record(ctx, history.Entry{Kind: history.KindSpeak, TextPreview: preview})
		return
	}

	played := d.sink.Play(ctx, audio.Samples, audio.SampleRate)
	d.metrics.countPlayback(ctx, played)
	if played {
		d.log.Info("speech completed")
	} else {
		d.log.Error("audio playback failed")
	}
	d.record(ctx, history.Entry{Kind: history.KindSpeak, TextPreview: preview, OK: played})
}

func (d *Dispatcher) setVoice(ctx context.Context, name string) Response {
	if _, ok := d.voices[name]; !ok {
		d.log.Warn("voice not available, keeping current",
			slog.String("requested", name),
			slog.String("current", d.session.Voice))
		d.record(ctx, history.Entry{Kind: history.KindVoice, TextPreview: name})
		return RespError
	}
	d.session.Voice = name
	d.log.Info("voice changed", slog.String("voice", name))
	d.record(ctx, history.Entry{Kind: history.KindVoice, OK: true})
	return RespOK
}

func (d *Dispatcher) setSpeed(ctx context.Context, token string) Response {
	value, err := strconv.ParseFloat(token, 64)
	if err != nil {
		d.log.Warn("invalid speed value", slog.String("token", token))
		d.record(ctx, history.Entry{Kind: history.KindSpeed, TextPreview: token})
		return RespError
	}
	d.session.Speed = value
	d.log.Info("speed changed", slog.Float64("speed", value))
	d.record(ctx, history.Entry{Kind: history.KindSpeed, OK: true})
	return RespOK
}

// record is best-effort: a failed history write never affects the response.
func (d *Dispatcher) record(ctx context.Context, e history.Entry) {
	if d.recorder == nil {
		return
	}
	e.RequestID = uuid.NewString()
	e.Voice = d.session.Voice
	e.Speed = d.session.Speed
	if err := d.recorder.Append(ctx, e); err != nil {
		d.log.Warn("failed to record history entry", slog.String("error", err.Error()))
	}
}

func commandName(line string) string {
	switch {
	case strings.HasPrefix(line, prefixSpeak):
		return "speak"
	case strings.HasPrefix(line, prefixVoice):
		return "voice"
	case strings.HasPrefix(line, prefixSpeed):
		return "speed"
	case line == cmdQuit:
		return "quit"
	default:
		return "speak_default"
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
