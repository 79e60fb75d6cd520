package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// execSynth writes a JSON request to a local command and streams the
// encoded audio it prints on stdout.
type execSynth struct {
	cmd []string
}

type execRequest struct {
	Text   string  `json:"text"`
	Voice  string  `json:"voice,omitempty"`
	Model  string  `json:"model,omitempty"`
	Speed  float64 `json:"speed,omitempty"`
	Format string  `json:"format,omitempty"`
}

func NewExecSynth(command string) (Synthesizer, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req SynthRequest) (io.ReadCloser, error) {
	data, err := json.Marshal(execRequest{
		Text:   req.Text,
		Voice:  req.Voice,
		Model:  req.Model,
		Speed:  req.Speed,
		Format: req.Format,
	})
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start tts command: %w", err)
	}
	return &execStream{cmd: cmd, stdout: stdout, stderr: &stderr}, nil
}

type execStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	eof    bool
}

func (s *execStream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if errors.Is(err, io.EOF) {
		s.eof = true
		if waitErr := s.wait(); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}

func (s *execStream) wait() error {
	if s.cmd == nil {
		return nil
	}
	cmd := s.cmd
	s.cmd = nil
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("tts command failed: %w: %s", err, strings.TrimSpace(s.stderr.String()))
	}
	return nil
}

// Close reaps the command. Closing before EOF kills it.
func (s *execStream) Close() error {
	if s.cmd != nil && !s.eof && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.wait()
		return nil
	}
	return s.wait()
}
