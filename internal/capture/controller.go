package capture

import "strings"

// State is the lifecycle position of a recording session.
type State int

const (
	Recording State = iota
	SilencePending
	Stopped
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case SilencePending:
		return "silence_pending"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopReason records why a session left the recording states.
type StopReason string

const (
	ReasonSilence   StopReason = "silence"
	ReasonInterrupt StopReason = "interrupt"
	ReasonExited    StopReason = "exited"
	ReasonTimeout   StopReason = "timeout"
)

const (
	markerSilenceStart = "silence_start"
	markerSilenceEnd   = "silence_end"
)

// Action tells the session runner what to do after feeding the controller.
// At most one of Schedule, Cancel and Stop is set.
type Action struct {
	Schedule   bool
	Cancel     bool
	Stop       bool
	Generation uint64
	Reason     StopReason
}

// Controller is the silence debounce state machine. It never touches
// timers or processes; the caller owns both and reports back through
// HandleLine, Fire and Interrupt. Not safe for concurrent use.
type Controller struct {
	state      State
	generation uint64
	reason     StopReason
	lines      []string
}

func NewController() *Controller {
	return &Controller{state: Recording}
}

func (c *Controller) State() State { return c.state }

// Reason is empty until the controller reaches Stopped.
func (c *Controller) Reason() StopReason { return c.reason }

// Lines returns every diagnostic line seen so far, in arrival order.
func (c *Controller) Lines() []string {
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

// HandleLine consumes one diagnostic line from the capture process.
func (c *Controller) HandleLine(line string) Action {
	c.lines = append(c.lines, line)

	switch {
	case strings.Contains(line, markerSilenceStart):
		if c.state != Recording {
			return Action{}
		}
		c.generation++
		c.state = SilencePending
		return Action{Schedule: true, Generation: c.generation}
	case strings.Contains(line, markerSilenceEnd):
		if c.state != SilencePending {
			return Action{}
		}
		// Bumping the generation makes any timer already in flight stale.
		c.generation++
		c.state = Recording
		return Action{Cancel: true}
	}
	return Action{}
}

// Fire reports that the debounce timer for generation elapsed.
func (c *Controller) Fire(generation uint64) Action {
	if c.state != SilencePending || generation != c.generation {
		return Action{}
	}
	return c.stop(ReasonSilence)
}

// Interrupt stops the session immediately from any recording state.
func (c *Controller) Interrupt() Action {
	return c.StopWith(ReasonInterrupt)
}

// StopWith forces Stopped for reasons outside the silence protocol.
func (c *Controller) StopWith(reason StopReason) Action {
	if c.state == Stopped {
		return Action{}
	}
	return c.stop(reason)
}

func (c *Controller) stop(reason StopReason) Action {
	c.generation++
	c.state = Stopped
	c.reason = reason
	return Action{Stop: true, Reason: reason}
}
