package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/tabletalk/tabletalk/internal/answer"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/query/duckdb"
)

const (
	defaultDeadline       = 3 * time.Second
	defaultMaxConcurrent  = 4
	defaultQueueTimeout   = 5 * time.Second
	defaultMaxOutputBytes = 1 << 20
	maxStderrBytes        = 16 << 10
	waitDelay             = 250 * time.Millisecond
)

const (
	messageCanceled      = "execution canceled"
	messageBusy          = "too many executions in progress, try again"
	messageWorkerFailure = "sandbox worker failed"
)

type Options struct {
	// Command starts a worker. Empty means the current executable with WorkerArg.
	Command        []string
	Deadline       time.Duration
	MaxConcurrent  int
	QueueTimeout   time.Duration
	MemoryLimit    string
	Threads        int
	MaxOutputBytes int
	// Env is appended to the otherwise empty worker environment.
	Env    []string
	Logger *slog.Logger
}

// Runner executes generated programs in short-lived worker processes.
type Runner struct {
	opts     Options
	command  []string
	snapshot string
	table    string
	checker  *Checker
	slots    *semaphore.Weighted
	logger   *slog.Logger
}

func NewRunner(opts Options, snapshotPath, table string, checker *Checker) (*Runner, error) {
	if strings.TrimSpace(snapshotPath) == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	if checker == nil {
		return nil, fmt.Errorf("policy checker is required")
	}
	if opts.Deadline <= 0 {
		opts.Deadline = defaultDeadline
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.QueueTimeout <= 0 {
		opts.QueueTimeout = defaultQueueTimeout
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = defaultMaxOutputBytes
	}
	if opts.Threads <= 0 {
		opts.Threads = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}

	command := opts.Command
	if len(command) == 0 {
		executable, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve worker executable: %w", err)
		}
		command = []string{executable, WorkerArg}
	}

	return &Runner{
		opts:     opts,
		command:  command,
		snapshot: snapshotPath,
		table:    table,
		checker:  checker,
		slots:    semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		logger:   logger,
	}, nil
}

// WorkerPath is the executable a worker is started from.
func (r *Runner) WorkerPath() string {
	return r.command[0]
}

// Execute runs program against a private copy of the snapshot. It always
// returns an Outcome; infrastructure failures become runtime failures.
func (r *Runner) Execute(ctx context.Context, program string) answer.Outcome {
	ctx = observability.ContextWithExecutionID(ctx, uuid.NewString())
	logger := r.logger.With(observability.RequestAttrs(ctx)...)
	program = duckdb.StripTrailingSemicolons(program)

	if err := r.checker.Check(ctx, program); err != nil {
		var programErr *ProgramError
		if errors.As(err, &programErr) {
			logger.Info("program rejected", "reason", programErr.Message)
			observability.ObserveSandboxExecution("rejected", 0)
			return answer.RuntimeFailure(programErr.Message, program)
		}
		if ctx.Err() != nil {
			return answer.RuntimeFailure(messageCanceled, program)
		}
		logger.Error("program check failed", "error", err)
		observability.ObserveSandboxExecution("error", 0)
		return answer.RuntimeFailure(messageWorkerFailure, program)
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, r.opts.QueueTimeout)
	err := r.slots.Acquire(waitCtx, 1)
	cancelWait()
	if err != nil {
		if ctx.Err() != nil {
			return answer.RuntimeFailure(messageCanceled, program)
		}
		logger.Warn("sandbox queue wait exceeded", "queue_timeout_ms", r.opts.QueueTimeout.Milliseconds())
		observability.ObserveSandboxExecution("busy", 0)
		return answer.RuntimeFailure(messageBusy, program)
	}
	defer r.slots.Release(1)
	done := observability.TrackSandboxInflight()
	defer done()

	start := time.Now()
	outcome := r.run(ctx, logger, program)
	elapsed := time.Since(start)
	observability.ObserveSandboxExecution(outcome.Kind.String(), elapsed)
	logger.Info("program executed", "outcome", outcome.Kind.String(), "duration_ms", elapsed.Milliseconds())
	return outcome
}

func (r *Runner) run(ctx context.Context, logger *slog.Logger, program string) answer.Outcome {
	workDir, err := os.MkdirTemp("", "tabletalk-exec-")
	if err != nil {
		logger.Error("create sandbox work dir", "error", err)
		return answer.RuntimeFailure(messageWorkerFailure, program)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	job, err := json.Marshal(Job{
		Program:        program,
		Snapshot:       r.snapshot,
		Table:          r.table,
		MemoryLimit:    r.opts.MemoryLimit,
		Threads:        r.opts.Threads,
		CPUSeconds:     uint64(r.opts.Deadline/time.Second) + 1,
		MaxOutputBytes: r.opts.MaxOutputBytes,
	})
	if err != nil {
		logger.Error("encode sandbox job", "error", err)
		return answer.RuntimeFailure(messageWorkerFailure, program)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.opts.Deadline)
	defer cancel()

	stdout := &limitedBuffer{limit: r.opts.MaxOutputBytes + 1}
	stderr := &limitedBuffer{limit: maxStderrBytes}
	cmd := exec.CommandContext(runCtx, r.command[0], r.command[1:]...)
	cmd.Dir = workDir
	cmd.Env = append([]string{"HOME=" + workDir, "TMPDIR=" + workDir}, r.opts.Env...)
	cmd.Stdin = bytes.NewReader(job)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	isolate(cmd)

	err = cmd.Run()
	switch {
	case err == nil:
		if stdout.overflowed() {
			return answer.RuntimeFailure(fmt.Sprintf("program output exceeded %d bytes", r.opts.MaxOutputBytes), program)
		}
		return answer.Success(stdout.String(), program)
	case ctx.Err() != nil:
		return answer.RuntimeFailure(messageCanceled, program)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return answer.TimedOut(program)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == exitProgramFault {
		message := strings.TrimSpace(stderr.String())
		if message == "" {
			message = "program failed"
		}
		return answer.RuntimeFailure(message, program)
	}
	logger.Error("sandbox worker failed",
		"error", err,
		"stderr", strings.TrimSpace(stderr.String()),
	)
	return answer.RuntimeFailure(messageWorkerFailure, program)
}

// limitedBuffer keeps the first limit bytes and silently drops the rest so a
// chatty worker never blocks on a full pipe.
type limitedBuffer struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	limit   int
	dropped bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.dropped = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.dropped = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *limitedBuffer) overflowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped || b.buf.Len() >= b.limit
}
