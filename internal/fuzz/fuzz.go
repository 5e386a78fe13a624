// Package fuzz implements the coverage feedback loop: calibration of the initial corpus,
// bounded mutation attempts per seed and the unbounded exploration loop.
package fuzz

import (
	"context"
	"covfuzz/internal/corpus"
	"covfuzz/internal/stats"
	"covfuzz/internal/types"
	"covfuzz/pkg/telemetry"
	"errors"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// MaxAttempts is the number of candidates FuzzOne tries before giving up on a seed.
const MaxAttempts = 10

var ErrEmptyCorpus = errors.New("corpus is empty")

type Fuzzer struct {
	oracle   Oracle
	mutator  Mutator
	state    *stats.State
	rng      corpus.Rand
	store    SeedStore
	reporter Reporter
	crashes  CrashSink
	seeds    SeedSink
	logger   *zap.Logger
	tracer   telemetry.Tracer
	runID    string

	imports    <-chan string
	imported   map[string]struct{}
	firstCrash bool
}

// New creates a Fuzzer. The optional collaborators are attached with the With* methods.
func New(oracle Oracle, mutator Mutator, state *stats.State, rng corpus.Rand, store SeedStore, logger *zap.Logger) *Fuzzer {
	return &Fuzzer{
		oracle:  oracle,
		mutator: mutator,
		state:   state,
		rng:     rng,
		store:   store,
		logger:  logger.Named("fuzz"),
		tracer:  &telemetry.DummyTracer{},
	}
}

func (f *Fuzzer) WithReporter(r Reporter) *Fuzzer {
	f.reporter = r
	return f
}

func (f *Fuzzer) WithCrashSink(s CrashSink) *Fuzzer {
	f.crashes = s
	return f
}

func (f *Fuzzer) WithSeedSink(s SeedSink) *Fuzzer {
	f.seeds = s
	return f
}

func (f *Fuzzer) WithRunID(runID string) *Fuzzer {
	f.runID = runID
	return f
}

func (f *Fuzzer) WithTracer(t telemetry.Tracer) *Fuzzer {
	if t != nil {
		f.tracer = t
	}
	return f
}

// WithImports makes the loop pick up externally added seed files received on ch.
// A path may be sent several times while its file is being written; it is run once,
// as soon as it reads non-empty.
func (f *Fuzzer) WithImports(ch <-chan string) *Fuzzer {
	f.imports = ch
	f.imported = make(map[string]struct{})
	return f
}

// DryRun executes every seed of c once, unmodified and in order, to establish the
// coverage baseline. It publishes the number of executions and the covered nodes.
func (f *Fuzzer) DryRun(ctx context.Context, c *corpus.Corpus) error {
	var totalNode uint64
	for i, seed := range c.Seeds() {
		content, err := seed.Load()
		if err != nil {
			return err
		}

		status, fb, err := f.oracle.Run(ctx, content)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			f.logger.Warn("failed to execute seed", zap.Stringer("seed", seed), zap.Error(err))
			fb = types.Feedback{}
		}

		if i == 0 {
			totalNode = fb.Node
		} else {
			totalNode += fb.NewNode
		}

		if err == nil && status != types.Normal {
			f.logger.Warn("seed does not execute cleanly",
				zap.Stringer("seed", seed),
				zap.Stringer("status", status))
			f.archive(content, status)
		}
		f.logger.Debug("seed calibrated",
			zap.Stringer("seed", seed),
			zap.Uint64("node", fb.Node),
			zap.Uint64("newnode", fb.NewNode))
	}

	f.state.Publish(uint64(c.Size()), totalNode)
	snap := f.state.Snapshot()
	f.logger.Info("dry run finished",
		zap.Int("seeds", c.Size()),
		zap.Uint64("total_node", snap.TotalNode))
	if f.reporter != nil {
		f.reporter.Flush(ctx, snap, c.Size())
	}
	return nil
}

// FuzzOne tries up to MaxAttempts mutations of seed and returns the first candidate that
// reaches new coverage without crashing. The result holds at most one seed.
func (f *Fuzzer) FuzzOne(ctx context.Context, c *corpus.Corpus, seed *corpus.Seed) ([]*corpus.Seed, error) {
	content, err := seed.Load()
	if err != nil {
		return nil, err
	}

	for range MaxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate := f.mutator.Mutate(content, c)
		if accepted := f.execute(ctx, candidate); accepted != nil {
			return []*corpus.Seed{accepted}, nil
		}
	}
	return nil, nil
}

// Fuzz runs the exploration loop until ctx is done.
func (f *Fuzzer) Fuzz(ctx context.Context, c *corpus.Corpus) error {
	if c.Size() == 0 {
		return ErrEmptyCorpus
	}

	defer func() {
		if f.reporter != nil {
			// ctx is already done here
			f.reporter.Flush(context.Background(), f.state.Snapshot(), c.Size())
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		f.drainImports(ctx, c)

		seed := c.PickRandom(f.rng)
		found, err := f.FuzzOne(ctx, c, seed)
		if err != nil && ctx.Err() == nil {
			f.logger.Warn("failed to fuzz seed", zap.Stringer("seed", seed), zap.Error(err))
		}
		c.Append(found...)

		if f.reporter != nil {
			f.reporter.Report(ctx, f.state.Snapshot(), c.Size())
		}
	}
}

// execute runs one candidate, accounts for it and returns the new seed when it is accepted.
func (f *Fuzzer) execute(ctx context.Context, candidate []byte) *corpus.Seed {
	status, fb, err := f.oracle.Run(ctx, candidate)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		f.logger.Warn("failed to execute candidate", zap.Error(err))
		f.state.RecordExecution(types.Normal, types.Feedback{})
		return nil
	}
	f.state.RecordExecution(status, fb)

	if status != types.Normal {
		f.archive(candidate, status)
	}
	if status == types.Crash || fb.NewNode == 0 {
		return nil
	}
	return f.accept(candidate, fb)
}

func (f *Fuzzer) accept(candidate []byte, fb types.Feedback) *corpus.Seed {
	seed, err := f.store.Create(candidate)
	if err != nil {
		f.logger.Warn("failed to persist seed, keeping it in memory", zap.Error(err))
	}
	f.logger.Debug("new seed",
		zap.Stringer("seed", seed),
		zap.Int("size", len(candidate)),
		zap.Uint64("newnode", fb.NewNode))

	if f.seeds != nil {
		f.seeds.Submit(types.SeedMessage{
			SeedId:  seed.ID(),
			Path:    seed.Path(),
			Size:    len(candidate),
			NewNode: fb.NewNode,
			RunId:   f.runID,
		})
	}
	return seed
}

func (f *Fuzzer) archive(input []byte, status types.Status) {
	if status == types.Crash && !f.firstCrash {
		f.firstCrash = true
		f.logger.Info("first crash found", zap.Int("size", len(input)))
		f.tracer.AddEvent("first_crash_found", telemetry.NewEventAttributes(map[string]string{
			"fuzz.crash.size": strconv.Itoa(len(input)),
		}))
	}
	if f.crashes == nil {
		return
	}
	f.crashes.Submit(types.CrashMessage{
		Input:      input,
		Status:     status,
		RunId:      f.runID,
		DetectedAt: time.Now(),
		TraceCtx:   f.tracer.Export(),
	})
}

// drainImports runs the seed files that appeared in the seed directory since the last
// iteration and keeps the ones that reach new coverage.
func (f *Fuzzer) drainImports(ctx context.Context, c *corpus.Corpus) {
	for {
		select {
		case path, ok := <-f.imports:
			if !ok {
				f.imports = nil
				return
			}
			if _, done := f.imported[path]; done {
				continue
			}
			content, err := os.ReadFile(path)
			if err != nil || len(content) == 0 {
				// a later write event brings the path back
				f.logger.Debug("skipping imported file", zap.String("path", path), zap.Error(err))
				continue
			}
			f.imported[path] = struct{}{}
			if seed := f.execute(ctx, content); seed != nil {
				c.Append(seed)
				f.logger.Info("imported seed", zap.String("path", path), zap.Stringer("seed", seed))
			}
		default:
			return
		}
	}
}
