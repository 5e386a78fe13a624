package fuzz

import (
	"covfuzz/config"
	"covfuzz/internal/corpus"
	"covfuzz/internal/crash"
	"covfuzz/internal/executor"
	"covfuzz/internal/mutate"
	"covfuzz/internal/seeds"
	"covfuzz/internal/stats"
	"math/rand"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Provide(NewFuzzer)

type FuzzerParams struct {
	fx.In

	Logger    *zap.Logger
	AppConfig *config.AppConfig
	Runner    *executor.Runner
	Mutator   *mutate.Havoc
	State     *stats.State
	Rand      *rand.Rand
	Store     *corpus.Store
	Reporter  *stats.Reporter
	Crashes   *crash.Manager
	Seeds     *seeds.Manager
}

func NewFuzzer(p FuzzerParams) *Fuzzer {
	return New(p.Runner, p.Mutator, p.State, p.Rand, p.Store, p.Logger).
		WithReporter(p.Reporter).
		WithCrashSink(p.Crashes).
		WithSeedSink(p.Seeds).
		WithRunID(p.AppConfig.RunID)
}
