package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

// FFmpegOptions shape the capture command line.
type FFmpegOptions struct {
	NoiseThresholdDB float64
	MinSilence       time.Duration
	SampleRate       int
	Channels         int
}

// FFmpeg records a device to mp3 with the silencedetect filter enabled so
// silence boundaries show up on stderr.
type FFmpeg struct {
	cmd    []string
	device Device
	opts   FFmpegOptions
	logger *slog.Logger
}

func NewFFmpeg(command string, device Device, opts FFmpegOptions, logger *slog.Logger) (*FFmpeg, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("capture command empty")
	}
	if opts.MinSilence <= 0 {
		opts.MinSilence = time.Second
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 44100
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	return &FFmpeg{cmd: args, device: device, opts: opts, logger: logger.With(slog.String("component", "ffmpeg"))}, nil
}

// Args returns the full argument list after the binary for outPath.
func (f *FFmpeg) Args(outPath string) []string {
	filter := fmt.Sprintf("silencedetect=n=%sdB:d=%s",
		strconv.FormatFloat(f.opts.NoiseThresholdDB, 'f', -1, 64),
		strconv.FormatFloat(f.opts.MinSilence.Seconds(), 'f', -1, 64))
	args := append([]string{}, f.cmd[1:]...)
	return append(args,
		"-hide_banner", "-nostats", "-loglevel", "info",
		"-f", f.device.Format,
		"-i", f.device.Input,
		"-af", filter,
		"-c:a", "libmp3lame",
		"-f", "mp3",
		"-ac", strconv.Itoa(f.opts.Channels),
		"-ar", strconv.Itoa(f.opts.SampleRate),
		"-y", outPath,
	)
}

func (f *FFmpeg) Start(outPath string) (Process, error) {
	// Not bound to a context: interrupts must go through Stop so the
	// mp3 trailer is written.
	cmd := exec.Command(f.cmd[0], f.Args(outPath)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		f.logger.Warn("capture control channel unavailable", slog.String("error", err.Error()))
		stdin = nil
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("capture stderr pipe: %w", err)
	}
	f.logger.Debug("starting capture", slog.String("cmd", cmd.String()))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", f.cmd[0], err)
	}
	p := &ffmpegProcess{cmd: cmd, stdin: stdin, lines: make(chan string, 64)}
	go p.scan(stderr)
	return p, nil
}

type ffmpegProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string
	mu    sync.Mutex
}

func (p *ffmpegProcess) Lines() <-chan string { return p.lines }

func (p *ffmpegProcess) scan(r io.Reader) {
	defer close(p.lines)
	scanner := bufio.NewScanner(r)
	scanner.Split(scanLogLines)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			p.lines <- line
		}
	}
}

// Stop writes the interactive quit command.
func (p *ffmpegProcess) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil {
		return errors.New("no control channel")
	}
	if _, err := io.WriteString(p.stdin, "q"); err != nil {
		return fmt.Errorf("write quit command: %w", err)
	}
	return nil
}

func (p *ffmpegProcess) Wait() error {
	return p.cmd.Wait()
}

// scanLogLines splits on \n or \r; ffmpeg rewrites status lines in place.
func scanLogLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, bytes.TrimSpace(data[:i]), nil
	}
	if atEOF {
		return len(data), bytes.TrimSpace(data), nil
	}
	return 0, nil, nil
}
