package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/alucardeht/ytscribe-mcp/internal/logger"
	"github.com/alucardeht/ytscribe-mcp/pkg/protocol"
)

var log = logger.ForComponent("transport")

const (
	DefaultGracePeriod = 3 * time.Second
	stderrHistory      = 20
)

type inbound struct {
	msg protocol.Message
	err error
}

// Transport owns one child process and exchanges newline-delimited JSON
// messages over its stdin and stdout. stderr is captured for diagnostics only.
type Transport struct {
	gracePeriod time.Duration
	env         []string

	mu      sync.Mutex
	started bool
	command string
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  io.ReadCloser

	writeMu sync.Mutex
	stdin   io.WriteCloser

	inbox    chan inbound
	eof      chan struct{}
	stopping chan struct{}
	exited   chan struct{}
	readers  sync.WaitGroup
	waitErr  error
	stopOnce sync.Once

	stderrMu    sync.Mutex
	stderrLines []string
}

type Option func(*Transport)

func WithGracePeriod(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.gracePeriod = d
		}
	}
}

// WithEnv replaces the child's environment. nil inherits the parent's.
func WithEnv(env []string) Option {
	return func(t *Transport) {
		t.env = env
	}
}

func New(opts ...Option) *Transport {
	t := &Transport{
		gracePeriod: DefaultGracePeriod,
		inbox:       make(chan inbound),
		eof:         make(chan struct{}),
		stopping:    make(chan struct{}),
		exited:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start spawns command with args and begins reading its output streams.
func (t *Transport) Start(command string, args ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return ErrAlreadyStarted
	}
	if command == "" {
		return &SpawnError{Command: command, Err: errors.New("empty command")}
	}

	cmd := exec.Command(command, args...)
	cmd.Env = t.env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &SpawnError{Command: command, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return &SpawnError{Command: command, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return &SpawnError{Command: command, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return &SpawnError{Command: command, Err: err}
	}

	t.started = true
	t.command = command
	t.cmd = cmd
	t.stdin = stdin
	t.stdout = stdout
	t.stderr = stderr

	t.readers.Add(2)
	go t.readStdout(stdout)
	go t.readStderr(stderr)

	go func() {
		// Wait closes the pipes, so it must not run before both readers hit EOF.
		t.readers.Wait()
		t.waitErr = cmd.Wait()
		close(t.exited)
		log.Debug("child exited", "command", command, "pid", cmd.Process.Pid, "status", t.waitErr)
	}()

	log.Debug("child started", "command", command, "pid", cmd.Process.Pid)
	return nil
}

func (t *Transport) readStdout(r io.Reader) {
	defer t.readers.Done()
	defer close(t.eof)

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if len(bytes.TrimSpace(line)) > 0 {
				log.Warn("discarding partial line at end of stream", "bytes", len(line))
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				log.Debug("stdout read failed", "error", err)
			}
			return
		}

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}

		item := inbound{}
		msg, err := protocol.Decode(trimmed)
		if err != nil {
			log.Warn("malformed message from child", "error", err)
			item.err = &ProtocolError{Line: append([]byte(nil), trimmed...), Err: err}
		} else {
			item.msg = msg
		}

		select {
		case t.inbox <- item:
		case <-t.stopping:
			return
		}
	}
}

func (t *Transport) readStderr(r io.Reader) {
	defer t.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		log.Debug("child stderr", "line", line)

		t.stderrMu.Lock()
		t.stderrLines = append(t.stderrLines, line)
		if len(t.stderrLines) > stderrHistory {
			t.stderrLines = t.stderrLines[len(t.stderrLines)-stderrHistory:]
		}
		t.stderrMu.Unlock()
	}
}

// Send writes msg as one line and returns once the bytes reach the pipe.
func (t *Transport) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.stdin == nil {
		return ErrNotStarted
	}
	select {
	case <-t.stopping:
		return ErrConnectionClosed
	default:
	}

	if _, err := t.stdin.Write(data); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	return nil
}

// Receive blocks for the next complete message. It returns a *ProtocolError
// for an undecodable line, ErrConnectionClosed once stdout has ended, or the
// context error when ctx is done first.
func (t *Transport) Receive(ctx context.Context) (protocol.Message, error) {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return nil, ErrNotStarted
	}

	select {
	case item := <-t.inbox:
		return item.msg, item.err
	case <-t.eof:
		return nil, ErrConnectionClosed
	case <-t.stopping:
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop closes stdin, interrupts the child and waits for it to exit. After the
// grace period, or when ctx is done, the child is killed. Safe to call more
// than once.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return nil
	}

	var err error
	t.stopOnce.Do(func() {
		close(t.stopping)

		t.writeMu.Lock()
		t.stdin.Close()
		t.writeMu.Unlock()

		select {
		case <-t.exited:
			return
		default:
		}

		proc := t.cmd.Process
		if sigErr := proc.Signal(os.Interrupt); sigErr != nil && !errors.Is(sigErr, os.ErrProcessDone) {
			log.Debug("interrupt failed, killing", "command", t.command, "error", sigErr)
			err = t.kill()
			return
		}

		timer := time.NewTimer(t.gracePeriod)
		defer timer.Stop()

		select {
		case <-t.exited:
		case <-timer.C:
			log.Warn("child ignored interrupt, killing", "command", t.command, "grace", t.gracePeriod)
			err = t.kill()
		case <-ctx.Done():
			err = t.kill()
		}
	})
	return err
}

func (t *Transport) kill() error {
	err := t.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		err = nil
	}
	// A grandchild holding the pipes open must not keep the readers alive.
	t.stdout.Close()
	t.stderr.Close()
	<-t.exited
	return err
}

// Done is closed once the child has exited and its streams are drained.
func (t *Transport) Done() <-chan struct{} {
	return t.exited
}

// ExitErr is the child's exit status. Only meaningful after Done is closed.
func (t *Transport) ExitErr() error {
	select {
	case <-t.exited:
		return t.waitErr
	default:
		return nil
	}
}

// RecentStderr returns the last lines the child wrote to stderr.
func (t *Transport) RecentStderr() []string {
	t.stderrMu.Lock()
	defer t.stderrMu.Unlock()
	return append([]string(nil), t.stderrLines...)
}
