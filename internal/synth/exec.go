package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

// execSynth runs an external model runner per request. The runner receives a
// JSON request on stdin and answers with a single JSON object on stdout;
// invoked with --list-voices it prints a JSON array of voice identifiers.
type execSynth struct {
	cmd        []string
	sampleRate int
	voices     []string
	mu         sync.Mutex
}

type execRequest struct {
	Text       string  `json:"text"`
	Voice      string  `json:"voice"`
	Speed      float64 `json:"speed"`
	SampleRate int     `json:"sample_rate"`
}

type execResponse struct {
	PCMBase64  string `json:"pcm_base64"`
	SampleRate int    `json:"sample_rate"`
}

const listVoicesTimeout = 30 * time.Second

// NewExec parses the runner command and queries it for its voice set. An
// error here means the model runner is unusable and the daemon must not start.
func NewExec(ctx context.Context, command string, sampleRate int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synth command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synth command is empty")
	}

	listCtx, cancel := context.WithTimeout(ctx, listVoicesTimeout)
	defer cancel()
	listArgs := append(append([]string{}, args[1:]...), "--list-voices")
	out, err := exec.CommandContext(listCtx, args[0], listArgs...).Output()
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	var voices []string
	if err := json.Unmarshal(bytes.TrimSpace(out), &voices); err != nil {
		return nil, fmt.Errorf("decode voice list: %w", err)
	}
	if len(voices) == 0 {
		return nil, fmt.Errorf("synth command reported no voices")
	}

	return &execSynth{cmd: args, sampleRate: sampleRate, voices: voices}, nil
}

func (e *execSynth) Voices() []string {
	out := make([]string, len(e.voices))
	copy(out, e.voices)
	return out
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) (Audio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.Speed <= 0 {
		return Audio{}, fmt.Errorf("%w: %v", ErrInvalidSpeed, req.Speed)
	}
	known := false
	for _, v := range e.voices {
		if v == req.Voice {
			known = true
			break
		}
	}
	if !known {
		return Audio{}, fmt.Errorf("%w: %q", ErrUnknownVoice, req.Voice)
	}

	payload, err := json.Marshal(execRequest{
		Text:       req.Text,
		Voice:      req.Voice,
		Speed:      req.Speed,
		SampleRate: e.sampleRate,
	})
	if err != nil {
		return Audio{}, fmt.Errorf("%w: encode request: %v", ErrSynthesis, err)
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return Audio{}, fmt.Errorf("%w: %v: %s", ErrSynthesis, err, msg)
		}
		return Audio{}, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	var resp execResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		return Audio{}, fmt.Errorf("%w: decode response: %v", ErrSynthesis, err)
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
	if err != nil {
		return Audio{}, fmt.Errorf("%w: decode pcm: %v", ErrSynthesis, err)
	}
	if len(pcm)%2 != 0 {
		return Audio{}, fmt.Errorf("%w: pcm payload not aligned", ErrSynthesis)
	}

	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	rate := resp.SampleRate
	if rate <= 0 {
		rate = e.sampleRate
	}
	return Audio{Samples: samples, SampleRate: rate}, nil
}
