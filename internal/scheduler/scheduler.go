package scheduler

import (
	"context"
	"covfuzz/config"
	"covfuzz/internal/corpus"
	"covfuzz/internal/fuzz"
	"covfuzz/internal/stats"
	"covfuzz/pkg/database"
	"covfuzz/pkg/telemetry"
	"covfuzz/pkg/watchdog"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// importBuffer bounds the number of seed-directory events waiting for the loop.
const importBuffer = 256

// Scheduler drives one fuzzing run: calibration of the initial corpus followed by the
// exploration loop, until the application is stopped.
type Scheduler struct {
	logger        *zap.Logger
	fuzzer        *fuzz.Fuzzer
	corpus        *corpus.Corpus
	seedDir       corpus.SeedDir
	state         *stats.State
	appConfig     *config.AppConfig
	tracerFactory *telemetry.TracerFactory
	watchDogFac   *watchdog.WatchDogFactory
	db            *gorm.DB
	shutdowner    fx.Shutdowner

	done chan struct{}
}

type SchedulerParams struct {
	fx.In

	Lc            fx.Lifecycle
	Logger        *zap.Logger
	Fuzzer        *fuzz.Fuzzer
	Corpus        *corpus.Corpus
	SeedDir       corpus.SeedDir
	State         *stats.State
	AppConfig     *config.AppConfig
	TracerFactory *telemetry.TracerFactory
	WatchDogFac   *watchdog.WatchDogFactory
	DB            *gorm.DB `optional:"true"`
	Shutdowner    fx.Shutdowner
}

func NewScheduler(params SchedulerParams) *Scheduler {
	scheduler := &Scheduler{
		logger:        params.Logger.Named("scheduler"),
		fuzzer:        params.Fuzzer,
		corpus:        params.Corpus,
		seedDir:       params.SeedDir,
		state:         params.State,
		appConfig:     params.AppConfig,
		tracerFactory: params.TracerFactory,
		watchDogFac:   params.WatchDogFac,
		db:            params.DB,
		shutdowner:    params.Shutdowner,
		done:          make(chan struct{}),
	}

	schedulerCtx, cancel := context.WithCancel(context.Background())

	params.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go scheduler.start(schedulerCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			<-scheduler.done
			return nil
		},
	})
	return scheduler
}

// start runs the fuzzing session and stops the application if it fails.
func (s *Scheduler) start(ctx context.Context) {
	defer close(s.done)
	if err := s.run(ctx); err != nil {
		s.logger.Error("fuzzing stopped", zap.Error(err))
		if err := s.shutdowner.Shutdown(fx.ExitCode(1)); err != nil {
			s.logger.Error("failed to shut down", zap.Error(err))
		}
		return
	}
	s.logger.Info("scheduler context done, stopping scheduler")
}

// run blocks until ctx is done. A canceled context is a normal stop.
func (s *Scheduler) run(ctx context.Context) error {
	tracer := s.tracerFactory.NewTracer(ctx, "covfuzz run")
	tracer.WithAttributes(telemetry.NewSpanAttributes(telemetry.Fuzzing).
		WithRunID(s.appConfig.RunID).
		WithTargetCommand(strings.Join(s.appConfig.TargetArgs, " ")))
	tracer.Start()
	defer tracer.End()

	s.recordRun(ctx)

	calibration := tracer.Spawn("calibration")
	calibration.WithAttributes(telemetry.NewSpanAttributes(telemetry.Calibration).
		WithCorpusSize(s.corpus.Size()))
	calibration.Start()
	err := s.fuzzer.DryRun(ctx, s.corpus)
	s.endSpan(calibration, err)
	if err != nil {
		return ignoreCanceled(err)
	}

	if s.appConfig.FuzzConfig.SeedSync {
		if err := s.watchSeedDir(ctx); err != nil {
			// the run goes on with the corpus it has
			s.logger.Warn("seed sync disabled", zap.Error(err))
		}
	}

	err = s.fuzzer.WithTracer(tracer).Fuzz(ctx, s.corpus)
	err = ignoreCanceled(err)
	s.endSpan(tracer, err)
	s.finishRun()
	return err
}

func (s *Scheduler) watchSeedDir(ctx context.Context) error {
	imports := make(chan string, importBuffer)
	wd, err := s.watchDogFac.New(ctx, imports, corpus.IsSeedFile)
	if err != nil {
		return err
	}
	if err := wd.AddDir(string(s.seedDir)); err != nil {
		return err
	}
	s.fuzzer.WithImports(imports)
	s.logger.Info("watching seed folder", zap.String("seed_dir", string(s.seedDir)))
	return nil
}

func (s *Scheduler) endSpan(tracer telemetry.Tracer, err error) {
	snap := s.state.Snapshot()
	tracer.WithAttributes(telemetry.EmptySpanAttributes().
		WithCorpusSize(s.corpus.Size()).
		WithExecCount(snap.ExecCount).
		WithTotalNode(snap.TotalNode))
	if err != nil {
		tracer.SetStatus(codes.Error, err.Error())
	} else {
		tracer.SetStatus(codes.Ok, "")
	}
}

func (s *Scheduler) recordRun(ctx context.Context) {
	if s.db == nil {
		return
	}
	run := database.NewRun(s.appConfig.RunID, strings.Join(s.appConfig.TargetArgs, " "), string(s.seedDir), s.appConfig.OutputDir)
	if err := database.AddRun(ctx, s.db, run); err != nil {
		s.logger.Warn("failed to record run", zap.Error(err))
	}
}

func (s *Scheduler) finishRun() {
	if s.db == nil {
		return
	}
	snap := s.state.Snapshot()
	metric := database.Metric{
		"execs_done":   snap.ExecCount,
		"total_node":   snap.TotalNode,
		"corpus_count": s.corpus.Size(),
		"crash_execs":  snap.Crashes,
		"hang_execs":   snap.Hangs,
	}
	// the run context is already canceled
	if err := database.FinishRun(context.Background(), s.db, s.appConfig.RunID, metric); err != nil {
		s.logger.Warn("failed to store run metrics", zap.Error(err))
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
