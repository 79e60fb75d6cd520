// Package pipeline runs the assistant cycle: record until silence,
// transcribe, answer, speak, and optionally start over.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/jarvis/internal/capture"
	"github.com/loqalabs/jarvis/internal/config"
	"github.com/loqalabs/jarvis/internal/conversation"
	"github.com/loqalabs/jarvis/internal/llm"
	"github.com/loqalabs/jarvis/internal/logging"
	"github.com/loqalabs/jarvis/internal/player"
	"github.com/loqalabs/jarvis/internal/protocol"
	"github.com/loqalabs/jarvis/internal/stt"
	"github.com/loqalabs/jarvis/internal/tts"
)

// ErrInterrupted is returned by RunOnce when the operator cancelled the
// cycle. Run treats it as a clean finish.
var ErrInterrupted = errors.New("interrupted")

// Cycle outcomes, as journaled and counted.
const (
	OutcomeReplied     = "replied"
	OutcomeCanned      = "canned"
	OutcomeSkipped     = "skipped"
	OutcomeExit        = "exit"
	OutcomeFailed      = "failed"
	OutcomeInterrupted = "interrupted"
)

const blankAudio = "[BLANK_AUDIO]"

// Journal records the cycle timeline. *eventstore.Store implements it.
type Journal interface {
	BeginCycle(ctx context.Context, cycleID, device string) error
	FinishCycle(ctx context.Context, cycleID, outcome string) error
	AppendJSON(ctx context.Context, cycleID, traceID, typ string, payload any) error
}

// Publisher announces cycle progress. *bus.Client implements it.
type Publisher interface {
	Publish(subject string, v any) error
}

// Dependencies are the collaborators of an Assistant. The first five are
// required.
type Dependencies struct {
	Recognizer   stt.Recognizer
	Generator    llm.Generator
	Synthesizer  tts.Synthesizer
	Player       player.Player
	Conversation *conversation.Log

	ResolveDevice func(ctx context.Context) (capture.Device, error)
	NewRecorder   func(device capture.Device) (capture.Recorder, error)
	ClipDuration  func(path string) (time.Duration, error)
	Journal       Journal
	Publisher     Publisher
	Metrics       *Metrics
}

type Assistant struct {
	cfg     config.Config
	deps    Dependencies
	logger  *slog.Logger
	matcher *Matcher
	tracer  trace.Tracer
}

func New(cfg config.Config, deps Dependencies, logger *slog.Logger) (*Assistant, error) {
	switch {
	case deps.Recognizer == nil:
		return nil, errors.New("pipeline: recognizer required")
	case deps.Generator == nil:
		return nil, errors.New("pipeline: generator required")
	case deps.Synthesizer == nil:
		return nil, errors.New("pipeline: synthesizer required")
	case deps.Player == nil:
		return nil, errors.New("pipeline: player required")
	case deps.Conversation == nil:
		return nil, errors.New("pipeline: conversation log required")
	}
	logger = logger.With(slog.String("component", "pipeline"))

	if deps.ResolveDevice == nil {
		deps.ResolveDevice = func(ctx context.Context) (capture.Device, error) {
			return capture.ResolveDevice(ctx, cfg.Capture)
		}
	}
	if deps.NewRecorder == nil {
		deps.NewRecorder = func(device capture.Device) (capture.Recorder, error) {
			return capture.NewFFmpeg(cfg.Capture.Command, device, capture.FFmpegOptions{
				NoiseThresholdDB: cfg.Capture.NoiseThresholdDB,
				MinSilence:       millis(cfg.Capture.MinSilenceMS),
				SampleRate:       cfg.Capture.SampleRate,
				Channels:         cfg.Capture.Channels,
			}, logger)
		}
	}
	if deps.ClipDuration == nil {
		deps.ClipDuration = capture.ClipDuration
	}
	if deps.Journal == nil {
		deps.Journal = nopJournal{}
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Metrics == nil {
		m, err := NewMetrics(nil)
		if err != nil {
			return nil, fmt.Errorf("pipeline metrics: %w", err)
		}
		deps.Metrics = m
	}

	return &Assistant{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		matcher: NewMatcher(cfg.Pipeline.MatchRatio),
		tracer:  otel.Tracer(instrumentationName),
	}, nil
}

// Run resolves the capture device once and runs cycles until the
// configured mode says to stop. Interrupts end the run without error.
func (a *Assistant) Run(ctx context.Context) error {
	recorder, device, err := a.prepare(ctx)
	if err != nil {
		return err
	}
	for {
		outcome, err := a.cycle(ctx, recorder, device)
		switch {
		case errors.Is(err, ErrInterrupted):
			a.logger.Info("interrupted, shutting down")
			return nil
		case err != nil:
			if !a.restartOnError(err) {
				return err
			}
			a.logger.Error("cycle failed, restarting", logging.Err(err))
			a.speakError(ctx)
		case outcome == OutcomeExit:
			a.logger.Info("exit phrase heard, shutting down")
			return nil
		}
		if !a.cfg.Pipeline.Loop || ctx.Err() != nil {
			return nil
		}
	}
}

// RunOnce performs a single cycle including device resolution.
func (a *Assistant) RunOnce(ctx context.Context) (string, error) {
	recorder, device, err := a.prepare(ctx)
	if err != nil {
		return OutcomeFailed, err
	}
	return a.cycle(ctx, recorder, device)
}

func (a *Assistant) restartOnError(err error) bool {
	if !a.cfg.Pipeline.Loop || a.cfg.Pipeline.OnError != "restart" {
		return false
	}
	return !errors.Is(err, capture.ErrCaptureFailed)
}

func (a *Assistant) prepare(ctx context.Context) (capture.Recorder, string, error) {
	device, err := a.deps.ResolveDevice(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("resolve capture device: %w", err)
	}
	recorder, err := a.deps.NewRecorder(device)
	if err != nil {
		return nil, "", fmt.Errorf("capture recorder: %w", err)
	}
	a.logger.Info("capture device resolved", slog.String("device", device.String()))
	return recorder, device.String(), nil
}

// cycleState carries the identifiers of one cycle through its stages.
type cycleState struct {
	id      string
	traceID string
	logger  *slog.Logger
	reason  capture.StopReason
}

func (a *Assistant) cycle(ctx context.Context, recorder capture.Recorder, device string) (string, error) {
	cs := &cycleState{id: uuid.NewString()}
	ctx, span := a.tracer.Start(ctx, "assistant.cycle", trace.WithAttributes(attribute.String("cycle.id", cs.id)))
	defer span.End()
	if sc := span.SpanContext(); sc.HasTraceID() {
		cs.traceID = sc.TraceID().String()
	}
	cs.logger = a.logger.With(slog.String("cycle_id", cs.id))

	// Timeline writes outlive an interrupt so the final state is recorded.
	jctx := context.WithoutCancel(ctx)
	a.journal(cs, a.deps.Journal.BeginCycle(jctx, cs.id, device))

	outcome, err := a.exchange(ctx, cs, recorder, device)
	if err != nil && !errors.Is(err, ErrInterrupted) {
		outcome = OutcomeFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.journal(cs, a.deps.Journal.AppendJSON(jctx, cs.id, cs.traceID, "pipeline.error", map[string]string{"error": err.Error()}))
	}
	span.SetAttributes(attribute.String("cycle.outcome", outcome))

	status := protocol.CycleStatus{
		CycleID:    cs.id,
		Stage:      "finished",
		StopReason: string(cs.reason),
		Outcome:    outcome,
		Timestamp:  time.Now().UTC(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	a.publish(cs, protocol.SubjectCycle, status)
	a.journal(cs, a.deps.Journal.FinishCycle(jctx, cs.id, outcome))
	a.deps.Metrics.cycle(jctx, outcome)
	cs.logger.Info("cycle finished", slog.String("outcome", outcome))
	return outcome, err
}

func (a *Assistant) exchange(ctx context.Context, cs *cycleState, recorder capture.Recorder, device string) (string, error) {
	jctx := context.WithoutCancel(ctx)

	// capture
	a.publish(cs, protocol.SubjectCycle, protocol.CycleStatus{CycleID: cs.id, Stage: "capture", Timestamp: time.Now().UTC()})
	a.journal(cs, a.deps.Journal.AppendJSON(jctx, cs.id, cs.traceID, "capture.started", map[string]string{
		"device": device,
		"path":   a.cfg.Capture.OutputPath,
	}))
	var clip capture.Result
	err := a.stage(ctx, "capture", func(ctx context.Context) error {
		session := capture.NewSession(recorder, a.cfg.Capture.OutputPath, capture.SessionOptions{
			SilenceDelay: millis(a.cfg.Capture.SilenceDelayMS),
			MaxDuration:  millis(a.cfg.Capture.MaxDurationMS),
		}, cs.logger)
		var err error
		clip, err = session.Run(ctx)
		return err
	})
	cs.reason = clip.Reason
	if clip.Reason != "" {
		a.deps.Metrics.stop(jctx, string(clip.Reason))
	}
	a.journal(cs, a.deps.Journal.AppendJSON(jctx, cs.id, cs.traceID, "capture.stopped", map[string]any{
		"reason":      string(clip.Reason),
		"duration_ms": clip.Duration.Milliseconds(),
	}))
	if err != nil {
		return OutcomeFailed, err
	}
	if clip.Reason == capture.ReasonInterrupt || ctx.Err() != nil {
		cs.logger.Info("recording interrupted, clip kept", slog.String("path", clip.Path))
		return OutcomeInterrupted, ErrInterrupted
	}

	if minClip := millis(a.cfg.Capture.MinClipMS); minClip > 0 {
		length, err := a.deps.ClipDuration(clip.Path)
		if err != nil {
			cs.logger.Warn("clip unreadable, skipping", logging.Err(err))
			return OutcomeSkipped, nil
		}
		if length < minClip {
			cs.logger.Info("clip too short, skipping", slog.Duration("length", length), slog.Duration("min", minClip))
			return OutcomeSkipped, nil
		}
	}

	// transcribe
	var transcript stt.TranscriptResult
	err = a.stage(ctx, "transcribe", func(ctx context.Context) error {
		ctx, cancel := a.callContext(ctx)
		defer cancel()
		var err error
		transcript, err = a.deps.Recognizer.Transcribe(ctx, clip.Path)
		return err
	})
	if err != nil {
		return a.callFailed(ctx, "transcribe", err)
	}
	text := strings.TrimSpace(transcript.Text)
	cs.logger.Info("transcribed", slog.String("text", text))
	a.journal(cs, a.deps.Journal.AppendJSON(jctx, cs.id, cs.traceID, "stt.transcript", map[string]string{
		"text":     text,
		"language": transcript.Language,
	}))
	if text == "" || text == blankAudio {
		cs.logger.Info("nothing heard, skipping")
		return OutcomeSkipped, nil
	}
	a.publish(cs, protocol.SubjectTranscriptFinal, protocol.Transcript{
		CycleID:   cs.id,
		Text:      text,
		Language:  transcript.Language,
		Timestamp: time.Now().UTC(),
	})

	// answer
	outcome := OutcomeReplied
	source := "llm"
	var reply llm.Reply
	switch answer, ok := a.matcher.Reply(a.cfg.Pipeline.Replies, text); {
	case a.matcher.AnyWhole(a.cfg.Pipeline.ExitPhrases, text):
		outcome, source = OutcomeExit, "farewell"
		reply.Content = strings.TrimSpace(a.cfg.Pipeline.Farewell)
	case ok:
		outcome, source = OutcomeCanned, "canned"
		reply.Content = answer
	default:
		err = a.stage(ctx, "complete", func(ctx context.Context) error {
			ctx, cancel := a.callContext(ctx)
			defer cancel()
			req := llm.OptionsFromConfig(a.cfg.LLM)
			req.SessionID = cs.id
			req.TraceID = cs.traceID
			req.Messages = a.deps.Conversation.Pending(text, a.cfg.LLM.HistoryLimit)
			var err error
			reply, err = llm.Complete(ctx, a.deps.Generator, req)
			if err == nil && reply.Content == "" {
				err = errors.New("empty completion")
			}
			return err
		})
		if err != nil {
			return a.callFailed(ctx, "complete", err)
		}
	}
	if reply.Content == "" {
		return outcome, nil
	}

	a.deps.Conversation.Append(text, reply.Content)
	if err := a.deps.Conversation.Save(); err != nil {
		return OutcomeFailed, fmt.Errorf("save conversation: %w", err)
	}
	cs.logger.Info("reply ready", slog.String("source", source), slog.String("text", reply.Content))
	a.journal(cs, a.deps.Journal.AppendJSON(jctx, cs.id, cs.traceID, "llm.reply", map[string]any{
		"text":              reply.Content,
		"source":            source,
		"prompt_tokens":     reply.PromptTokens,
		"completion_tokens": reply.CompletionTokens,
	}))
	a.publish(cs, protocol.SubjectReplyFinal, protocol.Reply{
		CycleID:          cs.id,
		Text:             reply.Content,
		Source:           source,
		PromptTokens:     reply.PromptTokens,
		CompletionTokens: reply.CompletionTokens,
		LatencyMS:        reply.Latency.Milliseconds(),
		Timestamp:        time.Now().UTC(),
	})

	// speak
	err = a.stage(ctx, "speak", func(ctx context.Context) error {
		return a.speak(ctx, cs.id, reply.Content)
	})
	if err != nil {
		return a.callFailed(ctx, "speak", err)
	}
	a.journal(cs, a.deps.Journal.AppendJSON(jctx, cs.id, cs.traceID, "tts.played", map[string]int{"chars": len(reply.Content)}))
	return outcome, nil
}

func (a *Assistant) speak(ctx context.Context, cycleID, text string) error {
	ctx, cancel := a.callContext(ctx)
	defer cancel()
	req := tts.RequestFromConfig(a.cfg.TTS, text)
	req.SessionID = cycleID
	stream, err := a.deps.Synthesizer.Synthesize(ctx, req)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	defer stream.Close()
	if err := a.deps.Player.Play(ctx, stream); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

func (a *Assistant) speakError(ctx context.Context) {
	text := strings.TrimSpace(a.cfg.Pipeline.ErrorReply)
	if text == "" || ctx.Err() != nil {
		return
	}
	if err := a.speak(ctx, "", text); err != nil {
		a.logger.Warn("error reply failed", logging.Err(err))
	}
}

// stage runs fn inside a child span and records its latency.
func (a *Assistant) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := a.tracer.Start(ctx, "assistant."+name)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	a.deps.Metrics.stage(context.WithoutCancel(ctx), name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (a *Assistant) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout := millis(a.cfg.Pipeline.CallTimeout); timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func (a *Assistant) callFailed(ctx context.Context, stage string, err error) (string, error) {
	if ctx.Err() != nil {
		return OutcomeInterrupted, ErrInterrupted
	}
	return OutcomeFailed, fmt.Errorf("%s: %w", stage, err)
}

func (a *Assistant) journal(cs *cycleState, err error) {
	if err != nil {
		cs.logger.Warn("event store write failed", logging.Err(err))
	}
}

func (a *Assistant) publish(cs *cycleState, subject string, v any) {
	if err := a.deps.Publisher.Publish(subject, v); err != nil {
		cs.logger.Warn("bus publish failed", slog.String("subject", subject), logging.Err(err))
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

type nopJournal struct{}

func (nopJournal) BeginCycle(context.Context, string, string) error  { return nil }
func (nopJournal) FinishCycle(context.Context, string, string) error { return nil }
func (nopJournal) AppendJSON(context.Context, string, string, string, any) error {
	return nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) error { return nil }
