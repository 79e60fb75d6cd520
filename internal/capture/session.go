package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrCaptureFailed marks failures of the capture process itself. The
// runner treats it as fatal regardless of the pipeline failure policy.
var ErrCaptureFailed = errors.New("capture process failed")

// Process is a running capture tool.
type Process interface {
	// Lines yields diagnostic output and is closed when the process
	// closes its diagnostic stream.
	Lines() <-chan string
	// Stop asks the process to finalize the file and exit.
	Stop() error
	// Wait blocks until exit. Call it only after Lines is drained.
	Wait() error
}

// Recorder launches capture processes writing to outPath.
type Recorder interface {
	Start(outPath string) (Process, error)
}

type SessionOptions struct {
	SilenceDelay time.Duration
	// MaxDuration of zero records until silence or interrupt.
	MaxDuration time.Duration
}

// Result describes a finalized clip.
type Result struct {
	Path     string
	Reason   StopReason
	Duration time.Duration
	Lines    []string
}

// Session drives one recording cycle: it feeds the diagnostic stream into
// a Controller and turns the resulting actions into timers and stop
// commands. All state is confined to the Run goroutine.
type Session struct {
	outPath    string
	recorder   Recorder
	opts       SessionOptions
	logger     *slog.Logger
	controller *Controller
	after      func(time.Duration) <-chan time.Time
	now        func() time.Time
}

func NewSession(recorder Recorder, outPath string, opts SessionOptions, logger *slog.Logger) *Session {
	if opts.SilenceDelay <= 0 {
		opts.SilenceDelay = time.Second
	}
	return &Session{
		outPath:    outPath,
		recorder:   recorder,
		opts:       opts,
		logger:     logger.With(slog.String("component", "capture")),
		controller: NewController(),
		after:      time.After,
		now:        time.Now,
	}
}

// Run records until silence, interrupt (ctx cancellation) or process exit.
// Cancelling ctx stops the recording gracefully; the finalized clip is
// still returned with ReasonInterrupt.
func (s *Session) Run(ctx context.Context) (Result, error) {
	started := s.now()
	proc, err := s.recorder.Start(s.outPath)
	if err != nil {
		return Result{Path: s.outPath}, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	s.logger.Info("recording started", slog.String("path", s.outPath), slog.Duration("silence_delay", s.opts.SilenceDelay))

	var (
		lines    = proc.Lines()
		done     = ctx.Done()
		timerC   <-chan time.Time
		timerGen uint64
		limitC   <-chan time.Time
	)
	if s.opts.MaxDuration > 0 {
		limitC = s.after(s.opts.MaxDuration)
	}

	apply := func(act Action) {
		switch {
		case act.Schedule:
			s.logger.Debug("silence detected, scheduling stop", slog.Duration("delay", s.opts.SilenceDelay))
			timerGen = act.Generation
			timerC = s.after(s.opts.SilenceDelay)
		case act.Cancel:
			s.logger.Debug("sound resumed, cancelling scheduled stop")
			timerC = nil
		case act.Stop:
			timerC = nil
			limitC = nil
			s.logger.Info("stopping recording", slog.String("reason", string(act.Reason)))
			if err := proc.Stop(); err != nil {
				s.logger.Warn("capture stop command failed, waiting for process exit", slog.String("error", err.Error()))
			}
		}
	}

	for lines != nil {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			s.logger.Debug("capture output", slog.String("line", line))
			apply(s.controller.HandleLine(line))
		case <-timerC:
			timerC = nil
			apply(s.controller.Fire(timerGen))
		case <-limitC:
			limitC = nil
			apply(s.controller.StopWith(ReasonTimeout))
		case <-done:
			done = nil
			apply(s.controller.Interrupt())
		}
	}

	waitErr := proc.Wait()
	s.controller.StopWith(ReasonExited)
	res := Result{
		Path:     s.outPath,
		Reason:   s.controller.Reason(),
		Duration: s.now().Sub(started),
		Lines:    s.controller.Lines(),
	}
	if waitErr != nil {
		// A terminal interrupt reaches the capture tool too, which then
		// exits non-zero after writing the trailer.
		if res.Reason == ReasonInterrupt {
			s.logger.Debug("capture exited after interrupt", slog.String("error", waitErr.Error()))
			return res, nil
		}
		return res, fmt.Errorf("%w: %w%s", ErrCaptureFailed, waitErr, tail(res.Lines, 5))
	}
	s.logger.Info("recording finished", slog.String("path", s.outPath), slog.String("reason", string(res.Reason)), slog.Duration("elapsed", res.Duration))
	return res, nil
}

func tail(lines []string, n int) string {
	if len(lines) == 0 {
		return ""
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return ": " + strings.Join(lines, " | ")
}
