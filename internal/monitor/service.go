// Package monitor follows a running assistant over the bus and reports
// one summary per finished cycle.
package monitor

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/loqalabs/jarvis/internal/bus"
	"github.com/loqalabs/jarvis/internal/logging"
	"github.com/loqalabs/jarvis/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Summary joins the messages published for one cycle.
type Summary struct {
	CycleID    string
	Transcript string
	Reply      string
	Source     string
	StopReason string
	Outcome    string
	Error      string
}

// finishedMemory bounds how many finished cycle IDs are remembered for
// discarding late messages.
const finishedMemory = 128

type Service struct {
	bus      *bus.Client
	logger   *slog.Logger
	onCycle  func(Summary)
	subs     []*nats.Subscription
	msgs     chan *nats.Msg
	quit     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	inFlight map[string]*Summary
	finished map[string]struct{}
	order    []string
}

// NewService reports finished cycles to onCycle; a nil onCycle logs them.
func NewService(busClient *bus.Client, logger *slog.Logger, onCycle func(Summary)) *Service {
	s := &Service{
		bus:      busClient,
		logger:   logger.With(slog.String("component", "monitor")),
		onCycle:  onCycle,
		inFlight: make(map[string]*Summary),
		finished: make(map[string]struct{}),
	}
	if s.onCycle == nil {
		s.onCycle = s.logSummary
	}
	return s
}

// Start subscribes to the cycle subjects. All of them feed one channel so
// messages are handled in publish order.
func (s *Service) Start() error {
	s.msgs = make(chan *nats.Msg, 256)
	s.quit = make(chan struct{})
	for _, subject := range []string{protocol.SubjectTranscriptFinal, protocol.SubjectReplyFinal, protocol.SubjectCycle} {
		sub, err := s.bus.Conn().ChanSubscribe(subject, s.msgs)
		if err != nil {
			s.Close()
			return err
		}
		s.subs = append(s.subs, sub)
	}
	s.wg.Add(1)
	go s.dispatch(s.msgs, s.quit)
	return s.bus.Conn().Flush()
}

func (s *Service) dispatch(msgs <-chan *nats.Msg, quit <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-quit:
			return
		case msg := <-msgs:
			s.handle(msg)
		}
	}
}

func (s *Service) handle(msg *nats.Msg) {
	switch msg.Subject {
	case protocol.SubjectTranscriptFinal:
		s.handleTranscript(msg)
	case protocol.SubjectReplyFinal:
		s.handleReply(msg)
	case protocol.SubjectCycle:
		s.handleCycle(msg)
	}
}

func (s *Service) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
	if s.quit != nil {
		close(s.quit)
		s.wg.Wait()
		s.quit = nil
	}
}

func (s *Service) Healthy() bool {
	return len(s.subs) == 3 && s.bus.Healthy()
}

// entry returns the in-flight summary for cycleID, or nil once the cycle
// has been reported.
func (s *Service) entry(cycleID string) *Summary {
	if _, done := s.finished[cycleID]; done {
		return nil
	}
	sum := s.inFlight[cycleID]
	if sum == nil {
		sum = &Summary{CycleID: cycleID}
		s.inFlight[cycleID] = sum
	}
	return sum
}

func (s *Service) handleTranscript(msg *nats.Msg) {
	var transcript protocol.Transcript
	if err := json.Unmarshal(msg.Data, &transcript); err != nil {
		s.logger.Warn("monitor failed to decode transcript", logging.Err(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := s.entry(transcript.CycleID)
	if sum == nil {
		s.logger.Debug("late transcript ignored", slog.String("cycle_id", transcript.CycleID))
		return
	}
	sum.Transcript = transcript.Text
}

func (s *Service) handleReply(msg *nats.Msg) {
	var reply protocol.Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		s.logger.Warn("monitor failed to decode reply", logging.Err(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := s.entry(reply.CycleID)
	if sum == nil {
		s.logger.Debug("late reply ignored", slog.String("cycle_id", reply.CycleID))
		return
	}
	sum.Reply, sum.Source = reply.Text, reply.Source
}

func (s *Service) handleCycle(msg *nats.Msg) {
	var status protocol.CycleStatus
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		s.logger.Warn("monitor failed to decode cycle status", logging.Err(err))
		return
	}
	if status.Stage != "finished" {
		s.logger.Debug("cycle stage", slog.String("cycle_id", status.CycleID), slog.String("stage", status.Stage))
		return
	}

	s.mu.Lock()
	sum := s.entry(status.CycleID)
	if sum == nil {
		s.mu.Unlock()
		s.logger.Debug("duplicate finish ignored", slog.String("cycle_id", status.CycleID))
		return
	}
	delete(s.inFlight, status.CycleID)
	s.markFinished(status.CycleID)
	s.mu.Unlock()

	sum.StopReason, sum.Outcome, sum.Error = status.StopReason, status.Outcome, status.Error
	s.onCycle(*sum)
}

func (s *Service) markFinished(cycleID string) {
	s.finished[cycleID] = struct{}{}
	s.order = append(s.order, cycleID)
	if len(s.order) > finishedMemory {
		delete(s.finished, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *Service) logSummary(sum Summary) {
	attrs := []any{
		slog.String("cycle_id", sum.CycleID),
		slog.String("outcome", sum.Outcome),
		slog.String("stop_reason", sum.StopReason),
	}
	if sum.Transcript != "" {
		attrs = append(attrs, slog.String("heard", sum.Transcript))
	}
	if sum.Reply != "" {
		attrs = append(attrs, slog.String("replied", sum.Reply), slog.String("source", sum.Source))
	}
	if sum.Error != "" {
		attrs = append(attrs, slog.String("error", sum.Error))
	}
	s.logger.Info("cycle", attrs...)
}
