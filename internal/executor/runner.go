// Package executor runs the target program once per input and reports its coverage.
package executor

import (
	"bytes"
	"context"
	"covfuzz/config"
	"covfuzz/internal/coverage"
	"covfuzz/internal/types"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	CurInputName = ".cur_input"
	FileArgToken = "@@"

	waitDelay = time.Second
)

var Module = fx.Provide(NewRunner)

// Options describes how to launch the target.
type Options struct {
	TargetArgs []string      // target command line, may contain @@
	OutputDir  string        // holds the current input file
	Timeout    time.Duration // per-execution deadline
}

// Runner executes the target with one input at a time. It is not safe for concurrent use:
// the coverage map and the current input file are shared between executions.
type Runner struct {
	logger   *zap.Logger
	args     []string
	useFile  bool
	curInput string
	timeout  time.Duration
	env      []string

	covMap coverage.Map
	virgin *coverage.Virgin
}

type RunnerParams struct {
	fx.In

	Lc        fx.Lifecycle
	Logger    *zap.Logger
	AppConfig *config.AppConfig
}

// NewRunner allocates the shared memory coverage map and prepares the target command line.
func NewRunner(p RunnerParams) (*Runner, error) {
	covMap, err := coverage.NewShmMap(p.AppConfig.FuzzConfig.MapSize)
	if err != nil {
		return nil, err
	}

	r, err := New(p.Logger, Options{
		TargetArgs: p.AppConfig.TargetArgs,
		OutputDir:  p.AppConfig.OutputDir,
		Timeout:    p.AppConfig.FuzzConfig.ExecTimeout,
	}, covMap, coverage.NewVirgin(p.AppConfig.FuzzConfig.MapSize))
	if err != nil {
		return nil, multierr.Append(err, covMap.Close())
	}

	p.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return r.Close()
		},
	})
	return r, nil
}

func New(logger *zap.Logger, opts Options, covMap coverage.Map, virgin *coverage.Virgin) (*Runner, error) {
	if len(opts.TargetArgs) == 0 {
		return nil, errors.New("empty target command line")
	}
	// check if the target is correctly installed
	if _, err := exec.LookPath(opts.TargetArgs[0]); err != nil {
		return nil, fmt.Errorf("target %s not found: %w", opts.TargetArgs[0], err)
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	r := &Runner{
		logger:   logger.Named("executor"),
		curInput: filepath.Join(opts.OutputDir, CurInputName),
		timeout:  opts.Timeout,
		env:      targetEnv(os.Environ(), defaultTargetEnv(), covMap.Env()),
		covMap:   covMap,
		virgin:   virgin,
	}
	if r.timeout <= 0 {
		r.timeout = time.Second
	}

	for _, arg := range opts.TargetArgs {
		if strings.Contains(arg, FileArgToken) {
			r.useFile = true
			arg = strings.ReplaceAll(arg, FileArgToken, r.curInput)
		}
		r.args = append(r.args, arg)
	}

	r.logger.Info("target prepared",
		zap.Strings("args", r.args),
		zap.Bool("file_input", r.useFile),
		zap.Duration("timeout", r.timeout))
	return r, nil
}

// Run executes the target once with input. Coverage is folded into the run-wide seen set
// regardless of the status. The error is only set when the target could not be executed.
func (r *Runner) Run(ctx context.Context, input []byte) (types.Status, types.Feedback, error) {
	if err := ctx.Err(); err != nil {
		return types.Normal, types.Feedback{}, err
	}

	r.covMap.Reset()

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.args[0], r.args[1:]...)
	cmd.Env = r.env
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	if r.useFile {
		if err := os.WriteFile(r.curInput, input, 0600); err != nil {
			return types.Normal, types.Feedback{}, fmt.Errorf("failed to write current input: %w", err)
		}
	} else {
		cmd.Stdin = bytes.NewReader(input)
	}

	runErr := cmd.Run()

	// the parent going away is not a property of the input
	if err := ctx.Err(); err != nil {
		return types.Normal, types.Feedback{}, err
	}

	status, err := classify(runCtx, runErr)
	if err != nil {
		return types.Normal, types.Feedback{}, err
	}

	fb := r.virgin.Classify(r.covMap.Bytes())
	if status != types.Normal {
		r.logger.Debug("abnormal execution",
			zap.Stringer("status", status),
			zap.Int("input_size", len(input)),
			zap.Uint64("newnode", fb.NewNode))
	}
	return status, fb, nil
}

func classify(runCtx context.Context, runErr error) (types.Status, error) {
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return types.Timeout, nil
	}
	if runErr == nil {
		return types.Normal, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(runErr, &exitErr) {
		return types.Normal, fmt.Errorf("failed to run target: %w", runErr)
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return types.Crash, nil
	}
	// a non-zero exit code is ordinary program behavior
	return types.Normal, nil
}

// Close releases the coverage map and removes the current input file.
func (r *Runner) Close() error {
	var err error
	if rmErr := os.Remove(r.curInput); rmErr != nil && !os.IsNotExist(rmErr) {
		err = multierr.Append(err, rmErr)
	}
	return multierr.Append(err, r.covMap.Close())
}

func defaultTargetEnv() []string {
	return []string{
		// sanitizers must abort so that findings surface as signals
		"ASAN_OPTIONS=abort_on_error=1:detect_leaks=0:symbolize=0:allocator_may_return_null=1",
		"UBSAN_OPTIONS=halt_on_error=1:abort_on_error=1:symbolize=0",
		"MSAN_OPTIONS=exit_code=86:abort_on_error=1:symbolize=0",
	}
}

// targetEnv builds the target environment from base. A default only applies when base does not
// set the variable already; the coverage map variables always win.
func targetEnv(base, defaults, required []string) []string {
	env := filterOtelEnv(base)
	set := make(map[string]struct{}, len(env))
	for _, kv := range env {
		key, _, _ := strings.Cut(kv, "=")
		set[key] = struct{}{}
	}
	for _, kv := range defaults {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := set[key]; !ok {
			env = append(env, kv)
		}
	}
	return append(env, required...)
}

// the fuzzer's own OpenTelemetry settings are not meant for the target
func filterOtelEnv(env []string) []string {
	filtered := make([]string, 0, len(env))
	for _, e := range env {
		if strings.HasPrefix(e, "OTEL_") || strings.HasPrefix(e, "OTLP_") {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}
