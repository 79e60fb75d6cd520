// Package conversation persists the chat history exchanged with the
// completion service as a pretty-printed JSON array of role/content
// entries.
package conversation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the log.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Log is the ordered conversation history backed by a file. The file is
// rewritten in full on every Save and never truncated.
type Log struct {
	path     string
	mu       sync.Mutex
	messages []Message
}

// Load reads path if it exists. A missing or empty file starts a new log
// holding only the system prompt.
func Load(path, systemPrompt string) (*Log, error) {
	l := &Log{path: path}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read conversation log: %w", err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &l.messages); err != nil {
			return nil, fmt.Errorf("parse conversation log %s: %w", path, err)
		}
	}
	if len(l.messages) == 0 {
		l.messages = []Message{{Role: RoleSystem, Content: systemPrompt}}
	}
	return l, nil
}

func (l *Log) Path() string { return l.path }

// Len returns the number of entries, 1 + 2N after N exchanges.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// Messages returns a copy of the full history.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Window returns the leading system entry plus the last max entries. A
// max of zero returns everything.
func (l *Log) Window(max int) []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	if max <= 0 || len(l.messages)-1 <= max {
		out := make([]Message, len(l.messages))
		copy(out, l.messages)
		return out
	}
	out := make([]Message, 0, max+1)
	out = append(out, l.messages[0])
	return append(out, l.messages[len(l.messages)-max:]...)
}

// Pending returns the request history for a new user turn without
// recording it.
func (l *Log) Pending(user string, max int) []Message {
	return append(l.Window(max), Message{Role: RoleUser, Content: user})
}

// Append records one completed exchange.
func (l *Log) Append(user, assistant string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages,
		Message{Role: RoleUser, Content: user},
		Message{Role: RoleAssistant, Content: assistant},
	)
}

// Save overwrites the backing file through a temp file and rename.
func (l *Log) Save() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	l.mu.Lock()
	err := enc.Encode(l.messages)
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode conversation log: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create conversation dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".conversation-*.json")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp log: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("replace conversation log: %w", err)
	}
	return nil
}
