package telemetry

import (
	"context"
	"covfuzz/config"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx/fxtest"
)

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value
	}
	return m
}

func TestSpanAttributes(t *testing.T) {
	attrs := NewSpanAttributes(Fuzzing).
		WithRunID("run-1").
		WithTargetCommand("./target @@").
		WithCorpusSize(4).
		WithExecCount(100).
		WithTotalNode(17).
		WithExtraAttribute("fuzz.crashes", uint64(2))

	got := attrMap(attrs.Attributes())
	assert.Equal(t, "fuzzing", got["fuzz.action.category"].AsString())
	assert.Equal(t, "run-1", got["fuzz.run.id"].AsString())
	assert.Equal(t, "./target @@", got["fuzz.target.command"].AsString())
	assert.Equal(t, int64(4), got["fuzz.corpus.size"].AsInt64())
	assert.Equal(t, int64(100), got["fuzz.exec.count"].AsInt64())
	assert.Equal(t, int64(17), got["fuzz.coverage.nodes"].AsInt64())
	assert.Equal(t, int64(2), got["fuzz.crashes"].AsInt64())
}

func TestSpanAttributesMerge(t *testing.T) {
	base := NewSpanAttributes(Calibration).WithRunID("run-1").WithCorpusSize(1)
	base.Merge(EmptySpanAttributes().WithRunID("other").WithCorpusSize(9))
	base.Merge(nil)

	got := attrMap(base.Attributes())
	assert.Equal(t, "calibration", got["fuzz.action.category"].AsString())
	// identifiers stick, counters are refreshed
	assert.Equal(t, "run-1", got["fuzz.run.id"].AsString())
	assert.Equal(t, int64(9), got["fuzz.corpus.size"].AsInt64())
}

func TestTracerFactoryWithoutTelemetry(t *testing.T) {
	factory := NewTracerFactory(TracerFactoryParams{})
	tracer := factory.NewTracer(context.Background(), "fuzzing")
	assert.IsType(t, &DummyTracer{}, tracer)

	// the no-op tracer accepts the full call sequence
	tracer.Start()
	tracer.WithAttributes(NewSpanAttributes(Fuzzing))
	tracer.AddEvent("first_crash_found", NewEventAttributes(map[string]string{"hash": "abc"}))
	tracer.SetStatus(codes.Error, "failed")
	assert.Empty(t, tracer.Spawn("child").Export())
	tracer.End()

	var nilFactory *TracerFactory
	assert.IsType(t, &DummyTracer{}, nilFactory.NewTracer(context.Background(), "fuzzing"))
}

func TestTelemetryTracerSpawnKeepsAttributes(t *testing.T) {
	tracer := NewTelemetryTracer(context.Background(), noop.NewTracerProvider().Tracer("test"), "parent")
	tracer.WithAttributes(NewSpanAttributes(Fuzzing).WithRunID("run-1"))

	// calls before Start are safe
	tracer.AddEvent("early", nil)
	tracer.SetStatus(codes.Ok, "")

	tracer.Start()
	child := tracer.Spawn("child").(*TelemetryTracer)
	assert.Equal(t, "run-1", attrMap(child.attributes.Attributes())["fuzz.run.id"].AsString())

	child.Start()
	child.End()
	tracer.End()
}

func TestNewTelemetryDisabled(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	telem, err := NewTelemetry(TelemetryParams{
		Lifecyle: lc,
		Config:   &config.AppConfig{TelemetryEnabled: false},
	})
	require.NoError(t, err)
	assert.Nil(t, telem)
}
