package fuzz

import (
	"context"
	"covfuzz/internal/corpus"
	"covfuzz/internal/mutate"
	"covfuzz/internal/stats"
	"covfuzz/internal/types"
)

// Oracle executes the target with one input. Timeouts are enforced by the oracle.
// An error means the execution could not be performed at all.
type Oracle interface {
	Run(ctx context.Context, input []byte) (types.Status, types.Feedback, error)
}

// Mutator derives a new candidate from seed. The corpus is only read.
type Mutator interface {
	Mutate(seed []byte, corpus mutate.SeedSource) []byte
}

// SeedStore turns accepted candidates into seeds.
type SeedStore interface {
	Create(content []byte) (*corpus.Seed, error)
}

type CrashSink interface {
	Submit(msg types.CrashMessage)
}

type SeedSink interface {
	Submit(msg types.SeedMessage)
}

// Reporter publishes the aggregated telemetry. Report may skip publishing, Flush may not.
type Reporter interface {
	Report(ctx context.Context, snap stats.Snapshot, corpusSize int)
	Flush(ctx context.Context, snap stats.Snapshot, corpusSize int)
}
