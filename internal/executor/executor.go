// Package executor runs generated analysis blocks in a Python subprocess.
//
// Each block runs in a fresh interpreter with a namespace holding file_path,
// output_dir, pd and os. Stdout is captured as the block output. An uncaught
// exception is reported as its message followed by the formatted traceback.
// Files that appear in the output directory during the run are reported as
// artifacts.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultPythonBin is the interpreter used when none is configured.
const DefaultPythonBin = "python3"

// Config configures an Executor.
type Config struct {
	// PythonBin is the interpreter to launch.
	PythonBin string
	// Timeout bounds a single block run. Zero disables the limit.
	Timeout time.Duration
	// Env holds extra KEY=VALUE entries appended to the inherited environment.
	Env []string
}

// Result is the outcome of running one block.
type Result struct {
	// Output is everything the block wrote to stdout.
	Output string
	// Error is empty on success. Otherwise it holds the exception message and
	// traceback, or a description of why the interpreter failed.
	Error string
	// Artifacts lists entry names created in the output directory, sorted.
	Artifacts []string
	// Duration is the wall-clock time of the run.
	Duration time.Duration
}

// Failed reports whether the block raised or the interpreter failed.
func (r *Result) Failed() bool { return r.Error != "" }

// Executor runs blocks one at a time per call. It holds no per-run state and
// is safe for concurrent use.
type Executor struct {
	cfg    Config
	logger *zap.Logger
}

// New returns an Executor. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *Executor {
	if cfg.PythonBin == "" {
		cfg.PythonBin = DefaultPythonBin
	}
	if cfg.Timeout < 0 {
		cfg.Timeout = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{cfg: cfg, logger: logger}
}

// Execute runs code against the dataset at filePath, with outputDir as the
// artifact directory (created if missing).
//
// Block failures are reported in Result.Error. The returned error is non-nil
// only when the run could not be attempted or ctx was canceled.
func (e *Executor) Execute(ctx context.Context, code, filePath, outputDir string) (*Result, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	harness, err := HarnessPath()
	if err != nil {
		return nil, err
	}
	before, err := snapshot(outputDir)
	if err != nil {
		return nil, err
	}
	report, err := os.CreateTemp("", "statm8-report-*.txt")
	if err != nil {
		return nil, fmt.Errorf("create report file: %w", err)
	}
	reportPath := report.Name()
	report.Close()
	defer os.Remove(reportPath)

	runCtx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, e.cfg.PythonBin, harness, filePath, outputDir, reportPath)
	cmd.Stdin = strings.NewReader(code)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), "MPLBACKEND=Agg", "PYTHONIOENCODING=utf-8", "PYTHONUNBUFFERED=1")
	cmd.Env = append(cmd.Env, e.cfg.Env...)
	// Children that inherit the pipes must not keep Wait blocked after a kill.
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	runErr := cmd.Run()
	res := &Result{Output: stdout.String(), Duration: time.Since(start)}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if runErr != nil {
		res.Error = e.describeFailure(runCtx, runErr, reportPath, stderr.String())
	}

	after, err := snapshot(outputDir)
	if err != nil {
		return nil, err
	}
	res.Artifacts = newEntries(before, after)

	e.logger.Debug("block executed",
		zap.Duration("duration", res.Duration),
		zap.Bool("failed", res.Failed()),
		zap.Int("artifacts", len(res.Artifacts)))
	return res, nil
}

func (e *Executor) describeFailure(runCtx context.Context, runErr error, reportPath, stderr string) string {
	if b, err := os.ReadFile(reportPath); err == nil && len(b) > 0 {
		return string(b)
	}
	var msg string
	var exitErr *exec.ExitError
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		msg = fmt.Sprintf("execution timed out after %s", e.cfg.Timeout)
	case errors.As(runErr, &exitErr):
		msg = fmt.Sprintf("python exited with code %d", exitErr.ExitCode())
	default:
		msg = fmt.Sprintf("failed to run %s: %v", e.cfg.PythonBin, runErr)
	}
	if s := strings.TrimSpace(stderr); s != "" {
		msg += "\n\n" + s
	}
	return msg
}
