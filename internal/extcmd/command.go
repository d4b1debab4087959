package extcmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"recut/internal/logging"
	"recut/internal/progress"
	"recut/internal/services"
)

const stderrTailLimit = 4 * 1024

// Command is one configured collaborator invocation.
type Command struct {
	step   string
	argv   []string
	env    []string
	logger *slog.Logger
}

// New returns a command for step. An empty argv is allowed; Run then fails
// with a configuration error.
func New(step string, argv []string, logger *slog.Logger) *Command {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Command{
		step:   step,
		argv:   append([]string(nil), argv...),
		logger: logging.NewComponentLogger(logger, "extcmd").With(logging.String(logging.FieldStep, step)),
	}
}

// WithEnv returns a copy of c that adds KEY=value pairs to the child's
// environment.
func (c *Command) WithEnv(env ...string) *Command {
	clone := *c
	clone.env = append(append([]string(nil), c.env...), env...)
	return &clone
}

// Configured reports whether a command line was provided.
func (c *Command) Configured() bool { return c != nil && len(c.argv) > 0 }

type line struct {
	progress.Event
	Result json.RawMessage `json:"result,omitempty"`
}

// Run executes the command with request on stdin, forwarding progress to
// report and decoding the terminal result into result (which may be nil).
func (c *Command) Run(ctx context.Context, request any, report progress.ReportFunc, result any) error {
	if !c.Configured() {
		return services.Wrap(services.ErrConfiguration, c.step, "run", "no command configured", nil)
	}
	if report == nil {
		report = progress.Discard
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return services.Wrap(services.ErrValidation, c.step, "encode request", "request is not serializable", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.argv[0], c.argv[1:]...) //nolint:gosec
	cmd.Stdin = bytes.NewReader(payload)
	if len(c.env) > 0 {
		cmd.Env = append(cmd.Environ(), c.env...)
	}
	stderr := &tailBuffer{limit: stderrTailLimit}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return services.Wrap(services.ErrExternalStep, c.step, "start", "open stdout", err)
	}
	// Run the tool in its own process group so cancellation also reaches
	// helpers it spawned while they hold stdout open.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return unix.Kill(-cmd.Process.Pid, unix.SIGKILL) }
	cmd.WaitDelay = 5 * time.Second
	if err := cmd.Start(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return services.Wrap(services.ErrStreamAborted, c.step, "start", "cancelled", ctxErr)
		}
		return services.Wrap(services.ErrExternalStep, c.step, "start", c.argv[0], err)
	}
	c.logger.Debug("command started",
		logging.String(logging.FieldEventType, "command_start"),
		logging.String("command", strings.Join(c.argv, " ")),
	)

	terminal, readErr := c.read(stdout, report)
	if readErr != nil {
		cancel()
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return services.Wrap(services.ErrStreamAborted, c.step, "run", "cancelled", ctxErr)
	}
	if readErr != nil {
		if services.IsAborted(readErr) {
			return readErr
		}
		return services.Wrap(services.ErrExternalStep, c.step, "read output", "malformed progress stream", readErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			detail := fmt.Sprintf("exited with status %d", exitErr.ExitCode())
			if terminal != nil && terminal.Status == progress.StatusError {
				detail = terminal.Error
			} else if tail := strings.TrimSpace(stderr.String()); tail != "" {
				detail += ": " + lastLine(tail)
			}
			return services.Wrap(services.ErrExternalStep, c.step, "run", detail, nil)
		}
		return services.Wrap(services.ErrExternalStep, c.step, "run", "wait", waitErr)
	}
	if terminal == nil {
		return services.Wrap(services.ErrExternalStep, c.step, "run", "command exited without a result", nil)
	}
	if terminal.Status == progress.StatusError {
		return services.Wrap(services.ErrExternalStep, c.step, "run", terminal.Error, nil)
	}
	if result != nil {
		if len(terminal.Result) == 0 {
			return services.Wrap(services.ErrExternalStep, c.step, "decode result", "complete event has no result", nil)
		}
		if err := json.Unmarshal(terminal.Result, result); err != nil {
			return services.Wrap(services.ErrExternalStep, c.step, "decode result", "malformed result", err)
		}
	}
	return nil
}

func (c *Command) read(r io.Reader, report progress.ReportFunc) (*line, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var terminal *line
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if raw[0] != '{' {
			c.logger.Debug("command output", logging.String("line", string(raw)))
			continue
		}
		if terminal != nil {
			return terminal, errors.New("output after terminal event")
		}
		var entry line
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, err
		}
		if err := entry.Validate(); err != nil {
			return nil, err
		}
		if entry.Terminal() {
			terminal = &entry
			continue
		}
		if err := report(entry.PercentOr(-1), entry.Message); err != nil {
			return nil, err
		}
	}
	return terminal, scanner.Err()
}

type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func lastLine(s string) string {
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}
