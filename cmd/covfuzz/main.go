package main

import (
	"covfuzz/config"
	"covfuzz/internal/corpus"
	"covfuzz/internal/crash"
	"covfuzz/internal/executor"
	"covfuzz/internal/fuzz"
	"covfuzz/internal/mutate"
	"covfuzz/internal/scheduler"
	"covfuzz/internal/seeds"
	"covfuzz/internal/stats"
	"covfuzz/pkg/database"
	"covfuzz/pkg/logger"
	"covfuzz/pkg/metrics"
	"covfuzz/pkg/mq"
	"covfuzz/pkg/telemetry"
	"covfuzz/pkg/watchdog"
	"fmt"
	"math/rand"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func setUpMmapRNDBits(logger *zap.Logger) {
	// Set the mmap_rnd_bits to 28 to avoid ASLR issues on ASAN
	if err := exec.Command("sysctl", "-w", "vm.mmap_rnd_bits=28").Run(); err != nil {
		logger.Debug("Failed to set mmap_rnd_bits", zap.Error(err))
	} else {
		logger.Info("Successfully set mmap_rnd_bits to 28")
	}
}

func newRand(appConfig *config.AppConfig, logger *zap.Logger) *rand.Rand {
	logger.Info("seeding random source", zap.Int64("rng_seed", appConfig.FuzzConfig.RNGSeed))
	return rand.New(rand.NewSource(appConfig.FuzzConfig.RNGSeed))
}

func newApp(cfg *config.AppConfig) *fx.App {
	return fx.New(
		fx.Supply(cfg), // inject config
		fx.Provide(
			database.NewDBConnection,    // inject db connection
			database.NewRedisClient,     // inject redis client
			logger.NewLogger,            // inject logger
			mq.NewRabbitMQ,              // inject rabbitmq service
			telemetry.NewTelemetry,      // inject telemetry
			telemetry.NewTracerFactory,  // inject telemetry tracer factory
			metrics.NewCollector,        // inject prometheus collector
			stats.NewState,              // inject execution counters
			stats.NewReporter,           // inject stats reporter
			crash.NewManager,            // inject crash manager
			seeds.NewManager,            // inject seed manager
			watchdog.NewWatchDogFactory, // inject watchdog factory
			newRand,                     // inject random source
		),
		corpus.Module,   // inject initial corpus and queue store
		mutate.Module,   // inject havoc mutator
		executor.Module, // inject target runner
		fuzz.Module,     // inject fuzzer
		fx.Invoke(
			setUpMmapRNDBits, // set up mmap_rnd_bits
			metrics.RegisterServer,
			scheduler.NewScheduler,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			zlogger := fxevent.ZapLogger{Logger: log}
			zlogger.UseLogLevel(zap.DebugLevel)
			return &zlogger
		}),
	)
}

func newRootCmd() *cobra.Command {
	var opts config.CLIOptions

	cmd := &cobra.Command{
		Use:   "covfuzz -s <seed_dir> -o <output_dir> [-x <dict>] -- <target> [args...]",
		Short: "Coverage-guided mutational fuzzer",
		Long: "covfuzz runs the target once per input and keeps the mutations that reach new coverage.\n" +
			"An argument @@ is replaced by the path of the current input, otherwise the input is sent on stdin.",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.TargetArgs = args
			cfg, err := config.LoadConfig(opts)
			if err != nil {
				return err
			}

			app := newApp(cfg)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.SeedDir, "seeds", "s", "", "folder (or .tar.gz bundle) with the initial corpus")
	cmd.Flags().StringVarP(&opts.OutputDir, "output", "o", "", "folder for the queue, crashes, hangs and stats")
	cmd.Flags().StringVarP(&opts.DictPath, "dict", "x", "", "optional dictionary file")
	// everything after the target belongs to the target
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
