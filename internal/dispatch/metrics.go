package dispatch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the dispatcher's instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	requests      metric.Int64Counter
	synthDuration metric.Float64Histogram
	playback      metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	requests, err := meter.Int64Counter("voxd.requests",
		metric.WithDescription("Handled protocol commands by outcome"))
	if err != nil {
		return nil, err
	}
	synthDuration, err := meter.Float64Histogram("voxd.synth.duration",
		metric.WithDescription("Synthesis latency in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	playback, err := meter.Int64Counter("voxd.playback",
		metric.WithDescription("Playback attempts by outcome"))
	if err != nil {
		return nil, err
	}
	return &Metrics{requests: requests, synthDuration: synthDuration, playback: playback}, nil
}

func (m *Metrics) countRequest(ctx context.Context, command string, resp Response) {
	if m == nil {
		return
	}
	status := "ok"
	switch resp {
	case RespError:
		status = "error"
	case RespShutdown:
		status = "shutdown"
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("status", status)))
}

func (m *Metrics) observeSynth(ctx context.Context, d time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.synthDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.Bool("ok", ok)))
}

func (m *Metrics) countPlayback(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	outcome := "played"
	if !ok {
		outcome = "failed"
	}
	m.playback.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome)))
}
