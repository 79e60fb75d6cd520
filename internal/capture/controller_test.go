package capture

import "testing"

const (
	lineStart = "[silencedetect @ 0x7f] silence_start: 2.504"
	lineEnd   = "[silencedetect @ 0x7f] silence_end: 3.112 | silence_duration: 0.608"
	lineSize  = "size=      42kB time=00:00:02.68 bitrate= 128.0kbits/s speed=1x"
)

func TestSilenceStartSchedulesStop(t *testing.T) {
	c := NewController()
	act := c.HandleLine(lineStart)
	if !act.Schedule || act.Generation == 0 {
		t.Fatalf("expected schedule action, got %+v", act)
	}
	if c.State() != SilencePending {
		t.Fatalf("expected silence pending, got %s", c.State())
	}
	stop := c.Fire(act.Generation)
	if !stop.Stop || stop.Reason != ReasonSilence {
		t.Fatalf("expected silence stop, got %+v", stop)
	}
	if c.State() != Stopped || c.Reason() != ReasonSilence {
		t.Fatalf("expected stopped by silence, got %s/%s", c.State(), c.Reason())
	}
}

func TestSilenceEndCancelsPendingStop(t *testing.T) {
	c := NewController()
	act := c.HandleLine(lineStart)
	cancel := c.HandleLine(lineEnd)
	if !cancel.Cancel {
		t.Fatalf("expected cancel action, got %+v", cancel)
	}
	if c.State() != Recording {
		t.Fatalf("expected recording, got %s", c.State())
	}
	if stale := c.Fire(act.Generation); stale.Stop {
		t.Fatal("stale timer must not stop the session")
	}
	if c.State() != Recording {
		t.Fatalf("expected recording after stale fire, got %s", c.State())
	}
}

func TestRepeatedSilenceStartKeepsSinglePendingStop(t *testing.T) {
	c := NewController()
	first := c.HandleLine(lineStart)
	second := c.HandleLine(lineStart)
	if second.Schedule {
		t.Fatal("second silence_start must not schedule another stop")
	}
	if stop := c.Fire(first.Generation); !stop.Stop {
		t.Fatalf("original pending stop should still fire, got %+v", stop)
	}
	if again := c.Fire(first.Generation); again.Stop {
		t.Fatal("stop must be issued only once")
	}
}

func TestReScheduleAfterCancel(t *testing.T) {
	c := NewController()
	first := c.HandleLine(lineStart)
	c.HandleLine(lineEnd)
	second := c.HandleLine(lineStart)
	if !second.Schedule || second.Generation == first.Generation {
		t.Fatalf("expected fresh generation, got %+v after %+v", second, first)
	}
	if stale := c.Fire(first.Generation); stale.Stop {
		t.Fatal("first timer must stay cancelled")
	}
	if stop := c.Fire(second.Generation); !stop.Stop {
		t.Fatal("second timer should stop the session")
	}
}

func TestSilenceEndWithoutPendingIsIgnored(t *testing.T) {
	c := NewController()
	if act := c.HandleLine(lineEnd); act != (Action{}) {
		t.Fatalf("expected no action, got %+v", act)
	}
	if c.State() != Recording {
		t.Fatalf("expected recording, got %s", c.State())
	}
}

func TestInterruptFromEveryRecordingState(t *testing.T) {
	c := NewController()
	if act := c.Interrupt(); !act.Stop || act.Reason != ReasonInterrupt {
		t.Fatalf("expected interrupt stop from recording, got %+v", act)
	}

	c = NewController()
	pending := c.HandleLine(lineStart)
	if act := c.Interrupt(); !act.Stop || act.Reason != ReasonInterrupt {
		t.Fatalf("expected interrupt stop from pending, got %+v", act)
	}
	if late := c.Fire(pending.Generation); late.Stop {
		t.Fatal("timer firing after interrupt must be a no-op")
	}
	if again := c.Interrupt(); again.Stop {
		t.Fatal("second interrupt must be a no-op")
	}
	if c.Reason() != ReasonInterrupt {
		t.Fatalf("expected interrupt reason, got %s", c.Reason())
	}
}

func TestLinesAfterStopAreRecordedOnly(t *testing.T) {
	c := NewController()
	c.Interrupt()
	if act := c.HandleLine(lineStart); act.Schedule {
		t.Fatal("stopped controller must not schedule")
	}
	if c.State() != Stopped {
		t.Fatalf("expected stopped, got %s", c.State())
	}
}

func TestAllLinesAccumulate(t *testing.T) {
	c := NewController()
	input := []string{lineSize, lineStart, lineSize, lineEnd, "Press [q] to stop"}
	for _, line := range input {
		c.HandleLine(line)
	}
	got := c.Lines()
	if len(got) != len(input) {
		t.Fatalf("expected %d lines, got %d", len(input), len(got))
	}
	for i := range input {
		if got[i] != input[i] {
			t.Fatalf("line %d: expected %q, got %q", i, input[i], got[i])
		}
	}
}
