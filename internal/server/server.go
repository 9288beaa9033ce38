// Package server runs the read-dispatch-respond loop over stdin/stdout.
package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/voxpipe/voxd/internal/dispatch"
)

const maxLineBytes = 1 << 20

// Server reads one command line at a time, routes it to the dispatcher and
// writes the single-token response. Strictly sequential: a command is fully
// processed before the next line is read.
type Server struct {
	in         io.Reader
	out        io.Writer
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger
	exit       func(code int)
}

func New(in io.Reader, out io.Writer, d *dispatch.Dispatcher, log *slog.Logger) *Server {
	return &Server{
		in:         in,
		out:        out,
		dispatcher: d,
		log:        log.With(slog.String("component", "server")),
		exit:       os.Exit,
	}
}

// HandleSignals installs SIGINT/SIGTERM handlers that log, mark the session
// stopped and terminate the process immediately. An in-flight request is
// aborted, not drained.
func (s *Server) HandleSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-ch
		s.log.Info("received shutdown signal", slog.String("signal", sig.String()))
		s.dispatcher.Stop()
		s.exit(0)
	}()
}

// Run processes input until end of stream or a quit command. Both end the
// loop cleanly; only a read or write failure returns an error.
func (s *Server) Run(ctx context.Context) error {
	out := bufio.NewWriter(s.out)
	s.log.Info("server ready, waiting for requests")

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		switch s.dispatcher.Handle(ctx, scanner.Text()) {
		case dispatch.RespShutdown:
			s.log.Info("server shutting down")
			return nil
		case dispatch.RespOK:
			if err := writeLine(out, "OK"); err != nil {
				return err
			}
		case dispatch.RespError:
			if err := writeLine(out, "ERROR"); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	s.log.Info("input stream closed, server shutting down")
	return nil
}

// writeLine flushes after every response so the caller never blocks on
// buffering.
func writeLine(out *bufio.Writer, token string) error {
	if _, err := fmt.Fprintln(out, token); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("flush response: %w", err)
	}
	return nil
}
