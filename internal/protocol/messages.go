package protocol

import "time"

// Transcript is the recognized text of one captured clip.
type Transcript struct {
	CycleID   string    `json:"cycle_id"`
	Text      string    `json:"text"`
	Language  string    `json:"language,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Reply is the assistant's answer to a transcript.
type Reply struct {
	CycleID          string    `json:"cycle_id"`
	Text             string    `json:"text"`
	Source           string    `json:"source"` // llm, canned, farewell, error
	PromptTokens     int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
	LatencyMS        int64     `json:"latency_ms,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// CycleStatus reports stage transitions of a record→reply cycle.
type CycleStatus struct {
	CycleID    string    `json:"cycle_id"`
	Stage      string    `json:"stage"`
	StopReason string    `json:"stop_reason,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	SubjectTranscriptFinal = "stt.text.final"
	SubjectReplyFinal      = "llm.response.final"
	SubjectCycle           = "assistant.cycle"
)
