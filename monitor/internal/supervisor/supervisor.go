// Package supervisor owns the lifecycle of the external telemetry producer.
//
// A Supervisor runs exactly one producer process. It reads stdout as a
// lazy line sequence, drains stderr on its own goroutine, waits for the
// process as soon as it starts, and guarantees termination on Stop. It
// never restarts a producer that exits.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cybermonitor/monitor-stack/common/logging"
	"github.com/cybermonitor/monitor-stack/monitor/internal/metrics"
)

// DefaultStopTimeout is how long a producer gets to exit after an
// interrupt before it is killed.
const DefaultStopTimeout = 5 * time.Second

// errOutputDiscarded ends a stdout read when the session is stopped and
// nobody consumed the remaining output.
var errOutputDiscarded = errors.New("supervisor: producer output discarded")

// maxLineSize bounds a single stdout or stderr line. Process tables can
// be large, so this is well above bufio's default.
const maxLineSize = 4 * 1024 * 1024

// LaunchConfig is resolved once by the caller and passed to Start.
// The supervisor does not consult the environment or the current
// directory beyond what is given here.
type LaunchConfig struct {
	// ExecutablePath is a bare command name looked up on PATH, or a path.
	// Relative paths resolve against WorkingDirectory.
	ExecutablePath string
	// ScriptPath is passed as the final argument. Relative paths resolve
	// against WorkingDirectory. Empty means no script argument.
	ScriptPath string
	// WorkingDirectory is the producer's working directory.
	WorkingDirectory string
	// Args are passed before the script path.
	Args []string
	// StopTimeout is the grace period between interrupt and kill.
	StopTimeout time.Duration
}

// State is the supervisor's lifecycle state.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateStopping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ProcessHandle is a snapshot of the producer process.
type ProcessHandle struct {
	PID       int
	Running   bool
	StartedAt time.Time
	ExitedAt  time.Time
	ExitCode  int
}

// Supervisor runs one producer session.
type Supervisor struct {
	sink   Sink
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	handle      ProcessHandle
	cmd         *exec.Cmd
	stdout      *io.PipeReader
	cancel      context.CancelFunc
	stopTimeout time.Duration
	waitErr     error

	exited     chan struct{}
	stderrDone chan struct{}
	waitOnce   sync.Once
}

// New creates a supervisor. A nil sink discards diagnostics; a nil logger
// uses slog.Default().
func New(sink Sink, logger *slog.Logger) *Supervisor {
	if sink == nil {
		sink = SinkFunc(func(int, string) {})
	}
	return &Supervisor{
		sink:   sink,
		logger: logging.OrDefault(logger),
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Handle returns a snapshot of the process handle. It is the zero value
// before a successful Start.
func (s *Supervisor) Handle() ProcessHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// resolve checks the launch config and returns the absolute executable
// and script paths.
func resolve(cfg LaunchConfig) (exe string, script string, err error) {
	if cfg.WorkingDirectory == "" {
		return "", "", &ConfigurationError{Field: "working directory", Err: errors.New("not set")}
	}
	if info, statErr := os.Stat(cfg.WorkingDirectory); statErr != nil {
		return "", "", &ConfigurationError{Field: "working directory", Path: cfg.WorkingDirectory, Err: statErr}
	} else if !info.IsDir() {
		return "", "", &ConfigurationError{Field: "working directory", Path: cfg.WorkingDirectory, Err: errors.New("not a directory")}
	}

	switch {
	case cfg.ExecutablePath == "":
		return "", "", &ConfigurationError{Field: "executable", Err: errors.New("not set")}
	case !strings.ContainsRune(cfg.ExecutablePath, filepath.Separator):
		exe, err = exec.LookPath(cfg.ExecutablePath)
		if err != nil {
			return "", "", &ConfigurationError{Field: "executable", Path: cfg.ExecutablePath, Err: err}
		}
	default:
		exe = absFrom(cfg.WorkingDirectory, cfg.ExecutablePath)
		if _, statErr := os.Stat(exe); statErr != nil {
			return "", "", &ConfigurationError{Field: "executable", Path: exe, Err: statErr}
		}
	}

	if cfg.ScriptPath != "" {
		script = absFrom(cfg.WorkingDirectory, cfg.ScriptPath)
		if _, statErr := os.Stat(script); statErr != nil {
			return "", "", &ConfigurationError{Field: "script", Path: script, Err: statErr}
		}
	}
	return exe, script, nil
}

func absFrom(dir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}

// Start launches the producer with stdout and stderr captured. On any
// error the state stays NotStarted and no process is left running.
// Cancelling ctx interrupts the producer.
//
// The process is waited for from the moment it starts. Once it exits,
// output still held open by processes it left behind is cut off after
// the stop timeout, so the line sequence ends with the producer.
func (s *Supervisor) Start(ctx context.Context, cfg LaunchConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNotStarted {
		return ErrAlreadyStarted
	}

	exe, script, err := resolve(cfg)
	if err != nil {
		return err
	}

	stopTimeout := cfg.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}

	args := append([]string(nil), cfg.Args...)
	if script != "" {
		args = append(args, script)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(sessionCtx, exe, args...)
	cmd.Dir = cfg.WorkingDirectory
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = stopTimeout

	// Non-file writers make exec copy the output itself, which lets
	// WaitDelay close the pipes once the process has exited.
	stdout, stdoutW := io.Pipe()
	stderr, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		cancel()
		stdoutW.Close()
		stderrW.Close()
		metrics.SessionsTotal.WithLabelValues("launch_failed").Inc()
		return &LaunchError{Path: exe, Err: err}
	}

	s.cmd = cmd
	s.stdout = stdout
	s.cancel = cancel
	s.stopTimeout = stopTimeout
	s.state = StateRunning
	s.handle = ProcessHandle{
		PID:       cmd.Process.Pid,
		Running:   true,
		StartedAt: time.Now(),
	}
	s.exited = make(chan struct{})
	s.stderrDone = make(chan struct{})

	metrics.SessionRunning.Set(1)
	s.logger.Info("producer started",
		logging.PID(cmd.Process.Pid),
		slog.String("executable", exe),
		slog.String("script", script),
		slog.String("dir", cfg.WorkingDirectory),
	)

	go s.drainStderr(cmd.Process.Pid, stderr)
	go s.wait(cmd, cancel, stdoutW, stderrW)

	return nil
}

// wait reaps the process, then closes the output streams so readers see
// EOF and records how the process ended.
func (s *Supervisor) wait(cmd *exec.Cmd, cancel context.CancelFunc, stdout, stderr *io.PipeWriter) {
	err := cmd.Wait()
	cancel()
	stdout.Close()
	stderr.Close()

	s.mu.Lock()
	s.waitErr = err
	s.mu.Unlock()
	close(s.exited)

	s.reap()
}

// drainStderr forwards each non-blank stderr line to the sink until the
// stream closes. A long-lived producer's stream closes only at exit, so
// lines go out one at a time rather than batched per drain. Sink
// failures are swallowed.
func (s *Supervisor) drainStderr(pid int, r io.Reader) {
	defer close(s.stderrDone)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.deliverDiagnostic(pid, line)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		s.logger.Debug("stderr drain ended", logging.PID(pid), logging.Error(err))
	}
}

func (s *Supervisor) deliverDiagnostic(pid int, line string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("stderr sink panicked", logging.PID(pid), slog.Any("panic", r))
		}
	}()
	s.sink.Diagnostic(pid, line)
}

// ReadLines returns the producer's stdout as a lazy sequence of lines
// without trailing newlines. The sequence ends without error when the
// process exits or ctx is cancelled; cancelling ctx also stops the
// session. Output still held open by the producer's children is cut off
// one stop timeout after the producer exits. It yields nothing before
// Start.
func (s *Supervisor) ReadLines(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		s.mu.Lock()
		stdout := s.stdout
		pid := s.handle.PID
		s.mu.Unlock()
		if stdout == nil {
			return
		}

		stop := context.AfterFunc(ctx, s.Stop)
		defer stop()

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, errOutputDiscarded) {
			s.logger.Warn("producer stdout read failed", logging.PID(pid), logging.Error(err))
		}

		// The stream is closed only after the process has been waited for.
		s.reap()
	}
}

// Stop interrupts the producer, kills it if it has not exited within the
// stop timeout, and joins the stderr drain. It is safe to call more than
// once, concurrently, before Start, and after the process has exited on
// its own. Termination errors are logged and discarded.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		started := s.cmd != nil
		s.mu.Unlock()
		if started {
			s.reap()
		}
		return
	}
	s.state = StateStopping
	cancel := s.cancel
	pid := s.handle.PID
	s.mu.Unlock()

	s.logger.Info("stopping producer", logging.PID(pid))
	cancel()
	s.reap()
}

// reap blocks until the process has been waited for and records how it
// ended, exactly once. Concurrent callers block until the first finishes.
func (s *Supervisor) reap() {
	s.waitOnce.Do(func() {
		s.mu.Lock()
		cmd, stdout, grace := s.cmd, s.stdout, s.stopTimeout
		s.mu.Unlock()

		// Unread stdout blocks the exec copy and with it Wait. Past the
		// grace period the remaining output is dropped.
		select {
		case <-s.exited:
		case <-time.After(grace):
			stdout.CloseWithError(errOutputDiscarded)
			<-s.exited
		}
		<-s.stderrDone

		exitCode := -1
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}

		s.mu.Lock()
		waitErr := s.waitErr
		prev := s.state
		s.state = StateTerminated
		s.handle.Running = false
		s.handle.ExitedAt = time.Now()
		s.handle.ExitCode = exitCode
		pid := s.handle.PID
		s.mu.Unlock()

		metrics.SessionRunning.Set(0)
		if prev == StateStopping {
			metrics.SessionsTotal.WithLabelValues("stopped").Inc()
			s.logger.Info("producer stopped", logging.PID(pid), slog.Int("exit_code", exitCode))
			return
		}

		metrics.SessionsTotal.WithLabelValues("exited").Inc()
		attrs := []any{logging.PID(pid), slog.Int("exit_code", exitCode)}
		if waitErr != nil {
			attrs = append(attrs, logging.Error(waitErr))
		}
		s.logger.Warn("producer exited", attrs...)
	})
}
