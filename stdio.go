package toolhost

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// StdIO is a Transport that speaks newline-delimited JSON-RPC over an
// io.Reader/io.Writer pair. It does not own the reader or writer; closing
// the transport stops its internal goroutines but leaves both streams open.
//
// Writes are funneled through a single goroutine so that concurrent Send
// calls never interleave on the wire.
type StdIO struct {
	reader io.Reader
	writer io.Writer
	logger *slog.Logger

	writeMessages chan stdioOutgoing
	done          chan struct{}
	writeClosed   chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
}

type stdioOutgoing struct {
	msg  []byte
	errs chan error
}

// StdIOOption configures a StdIO transport created by NewStdIO.
type StdIOOption func(*StdIO)

// WithStdIOLogger sets the logger used for transport-level diagnostics.
func WithStdIOLogger(logger *slog.Logger) StdIOOption {
	return func(s *StdIO) {
		s.logger = logger
	}
}

// NewStdIO creates a transport reading peer messages from reader and
// writing its own to writer.
func NewStdIO(reader io.Reader, writer io.Writer, options ...StdIOOption) *StdIO {
	s := &StdIO{
		reader:        reader,
		writer:        writer,
		logger:        slog.Default(),
		writeMessages: make(chan stdioOutgoing),
		done:          make(chan struct{}),
		writeClosed:   make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Start launches the write pump. The streams are assumed connected already,
// so no network establishment happens here.
func (s *StdIO) Start(_ context.Context) error {
	s.startOnce.Do(func() {
		go s.processWriteMessages()
	})
	return nil
}

// Send queues msg for writing and waits for the write to finish. A newline
// is appended to maintain message framing.
func (s *StdIO) Send(ctx context.Context, msg JSONRPCMessage) error {
	msgBs, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	msgBs = append(msgBs, '\n')

	out := stdioOutgoing{
		msg:  msgBs,
		errs: make(chan error, 1),
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrTransportClosed
	case s.writeMessages <- out:
	}

	select {
	case err := <-out.errs:
		if err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrTransportClosed
	}
}

// Messages yields messages read from the peer, one JSON document per line.
// Blank lines are skipped and unparseable lines are logged and dropped so a
// single garbled message cannot end the session. The sequence ends on EOF,
// on a read error, or when the transport is closed.
func (s *StdIO) Messages() iter.Seq[JSONRPCMessage] {
	return func(yield func(JSONRPCMessage) bool) {
		// bufio.Reader instead of bufio.Scanner to avoid max token size
		// errors on large payloads.
		reader := bufio.NewReader(s.reader)
		for {
			type lineWithErr struct {
				line string
				err  error
			}

			lines := make(chan lineWithErr, 1)

			// Read in a goroutine so a blocked read cannot stop us from
			// noticing the transport is closed.
			go func() {
				line, err := reader.ReadString('\n')
				if err != nil {
					lines <- lineWithErr{err: err}
					return
				}
				lines <- lineWithErr{line: strings.TrimSuffix(line, "\n")}
			}()

			var lwe lineWithErr
			select {
			case <-s.done:
				return
			case lwe = <-lines:
			}

			if lwe.err != nil {
				if !errors.Is(lwe.err, io.EOF) {
					s.logger.Error("failed to read message", "err", lwe.err)
				}
				return
			}

			if strings.TrimSpace(lwe.line) == "" {
				continue
			}

			var msg JSONRPCMessage
			if err := json.Unmarshal([]byte(lwe.line), &msg); err != nil {
				s.logger.Error("failed to unmarshal message", "err", err)
				continue
			}

			if !yield(msg) {
				return
			}
		}
	}
}

// Close stops the write pump and ends the message sequence. It never
// closes the underlying streams.
func (s *StdIO) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

func (s *StdIO) processWriteMessages() {
	defer close(s.writeClosed)

	for {
		var out stdioOutgoing
		select {
		case <-s.done:
			return
		case out = <-s.writeMessages:
		}

		_, err := s.writer.Write(out.msg)

		out.errs <- err
	}
}

const defaultProcessKillDelay = 5 * time.Second

// Process is a Transport that runs a tool server as a child process and
// speaks newline-delimited JSON-RPC over its stdin and stdout. The child's
// stderr is drained into a bounded buffer so its tail can be attached to
// failure reports.
//
// The process lifetime is owned by the transport, not by the Start context:
// Close asks the child to exit by closing its stdin and kills it if it is
// still running after a grace period.
type Process struct {
	command   string
	args      []string
	env       map[string]string
	logger    *slog.Logger
	killDelay time.Duration

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	inner  *StdIO
	stderr *tailBuffer

	mu       sync.Mutex
	exitCode int
	exited   bool

	waitDone chan struct{}
}

// ProcessOption configures a Process transport created by NewProcess.
type ProcessOption func(*Process)

// WithProcessLogger sets the logger used for process lifecycle diagnostics.
func WithProcessLogger(logger *slog.Logger) ProcessOption {
	return func(p *Process) {
		p.logger = logger
	}
}

// WithProcessKillDelay sets how long Close waits for the child to exit on
// its own before killing it.
func WithProcessKillDelay(d time.Duration) ProcessOption {
	return func(p *Process) {
		p.killDelay = d
	}
}

// NewProcess creates a transport that will run command with args. The
// child inherits the parent environment with env entries layered on top.
func NewProcess(command string, args []string, env map[string]string, options ...ProcessOption) *Process {
	p := &Process{
		command:   command,
		args:      args,
		env:       env,
		logger:    slog.Default(),
		killDelay: defaultProcessKillDelay,
		stderr:    newTailBuffer(4096),
		waitDone:  make(chan struct{}),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Start spawns the child process and wires its pipes. Spawn failures are
// reported as ErrSpawn.
func (p *Process) Start(ctx context.Context) error {
	cmd := exec.Command(p.command, p.args...)
	cmd.Env = os.Environ()
	for k, v := range p.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = p.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSpawn, p.command, err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.inner = NewStdIO(stdout, stdin, WithStdIOLogger(p.logger))

	go p.wait()

	return p.inner.Start(ctx)
}

// Send delivers one message to the child's stdin.
func (p *Process) Send(ctx context.Context, msg JSONRPCMessage) error {
	if p.inner == nil {
		return ErrTransportClosed
	}
	return p.inner.Send(ctx, msg)
}

// Messages yields messages read from the child's stdout. The sequence ends
// when the child exits or the transport is closed.
func (p *Process) Messages() iter.Seq[JSONRPCMessage] {
	if p.inner == nil {
		return func(yield func(JSONRPCMessage) bool) {}
	}
	return p.inner.Messages()
}

// Close shuts the child down: it closes stdin so a well-behaved server sees
// EOF and exits, then kills the process if it is still around after the
// grace period. It always waits for the process to be reaped so no child
// is left running unobserved.
func (p *Process) Close() error {
	if p.cmd == nil {
		return nil
	}

	_ = p.inner.Close()
	_ = p.stdin.Close()

	select {
	case <-p.waitDone:
	case <-time.After(p.killDelay):
		p.logger.Warn("tool server did not exit after stdin close, killing", "command", p.command)
		if err := p.cmd.Process.Kill(); err != nil {
			p.logger.Warn("failed to kill tool server", "command", p.command, "err", err)
		}
		<-p.waitDone
	}
	return nil
}

// ExitState reports how the child ended. exited is false while it runs.
func (p *Process) ExitState() (code int, stderr string, exited bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.stderr.String(), p.exited
}

func (p *Process) wait() {
	defer close(p.waitDone)

	err := p.cmd.Wait()

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	p.mu.Lock()
	p.exitCode = code
	p.exited = true
	p.mu.Unlock()
}

// tailBuffer is an io.Writer that keeps only the most recent limit bytes
// written to it. Safe for concurrent use.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if len(b.buf) > b.limit {
		b.buf = append(b.buf[:0], b.buf[len(b.buf)-b.limit:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
