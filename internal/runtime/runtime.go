// Package runtime wires configuration, telemetry, the history store and the
// collaborators into a running daemon.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/voxpipe/voxd/internal/audio"
	"github.com/voxpipe/voxd/internal/config"
	"github.com/voxpipe/voxd/internal/dispatch"
	"github.com/voxpipe/voxd/internal/history"
	"github.com/voxpipe/voxd/internal/server"
	"github.com/voxpipe/voxd/internal/synth"
)

type Runtime struct {
	cfg        config.Config
	log        *slog.Logger
	httpServer *http.Server
	ready      atomic.Bool
	wg         sync.WaitGroup
}

func New(cfg config.Config, log *slog.Logger) *Runtime {
	return &Runtime{cfg: cfg, log: log}
}

// Run starts the daemon and blocks until end of input or a quit command. A
// synthesizer initialization failure is returned before the server loop ever
// starts; the caller exits non-zero.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.log)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}

	store, err := history.Open(ctx, r.cfg.History, r.log)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	syn, err := synth.New(ctx, r.cfg.Synth)
	if err != nil {
		return fmt.Errorf("initialize synthesizer: %w", err)
	}
	r.log.Info("synthesizer initialized",
		slog.String("mode", r.cfg.Synth.Mode),
		slog.String("default_voice", r.cfg.Synth.DefaultVoice),
		slog.Int("voices", len(syn.Voices())))

	candidates := audio.DefaultCandidates()
	if len(r.cfg.Playback.Players) > 0 {
		candidates, err = audio.ParseCandidates(r.cfg.Playback.Players)
		if err != nil {
			return fmt.Errorf("configure players: %w", err)
		}
	}
	sink := audio.NewSink(candidates,
		time.Duration(r.cfg.Playback.TimeoutMS)*time.Millisecond, r.log)

	metrics, err := dispatch.NewMetrics(otel.Meter("voxd"))
	if err != nil {
		r.log.Warn("metrics disabled", slog.String("error", err.Error()))
		metrics = nil
	}

	disp, err := dispatch.New(syn, sink, store, metrics, r.cfg.Synth, r.log)
	if err != nil {
		return fmt.Errorf("initialize dispatcher: %w", err)
	}

	if err := store.Append(ctx, history.Entry{
		RequestID: uuid.NewString(),
		Kind:      history.KindStartup,
		Voice:     r.cfg.Synth.DefaultVoice,
		Speed:     1.0,
		OK:        true,
	}); err != nil {
		r.log.Warn("failed to record startup", slog.String("error", err.Error()))
	}

	if r.cfg.HTTP.Enabled {
		r.startHTTP(metricsHandler)
	}
	r.ready.Store(true)

	srv := server.New(os.Stdin, os.Stdout, disp, r.log)
	srv.HandleSignals()
	runErr := srv.Run(ctx)

	r.ready.Store(false)
	r.stopHTTP()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if shutdownTelemetry != nil {
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			r.log.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return runErr
}

// startHTTP serves health and metrics only; the speech protocol is never
// exposed on the network.
func (r *Runtime) startHTTP(metricsHandler http.Handler) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.log.Error("http server failed", slog.String("error", err.Error()))
		}
	}()
	r.log.Info("observability endpoint started", slog.String("addr", addr))
}

func (r *Runtime) stopHTTP() {
	if r.httpServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.log.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
