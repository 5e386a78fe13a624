package telemetry

import (
	"fmt"
	"maps"

	"go.opentelemetry.io/otel/attribute"
)

type SpanAttributes struct {
	ActionCategory string

	RunID         optional[string] // fuzz.run.id
	TargetCommand optional[string] // fuzz.target.command
	corpusSize    optional[int]    // fuzz.corpus.size
	execCount     optional[int64]  // fuzz.exec.count
	totalNode     optional[int64]  // fuzz.coverage.nodes

	extraAttributes map[string]any
}

func NewSpanAttributes(actionCategory ActionCategory) *SpanAttributes {
	return &SpanAttributes{
		ActionCategory:  actionCategory.String(),
		extraAttributes: make(map[string]any),
	}
}

// EmptySpanAttributes returns attributes without an action category, to be populated later.
func EmptySpanAttributes() *SpanAttributes {
	return &SpanAttributes{
		extraAttributes: make(map[string]any),
	}
}

// Merge copies the values set in other. Counters always take the newer value,
// identifying fields are only filled in when still unset.
func (o *SpanAttributes) Merge(other *SpanAttributes) {
	if other == nil {
		return
	}

	if other.ActionCategory != "" {
		o.ActionCategory = other.ActionCategory
	}

	mergeOptional(&o.RunID, &other.RunID)
	mergeOptional(&o.TargetCommand, &other.TargetCommand)
	overrideOptional(&o.corpusSize, &other.corpusSize)
	overrideOptional(&o.execCount, &other.execCount)
	overrideOptional(&o.totalNode, &other.totalNode)

	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	maps.Copy(o.extraAttributes, other.extraAttributes)
}

func (o *SpanAttributes) WithRunID(val string) *SpanAttributes {
	o.RunID.Set(val)
	return o
}

func (o *SpanAttributes) WithTargetCommand(val string) *SpanAttributes {
	o.TargetCommand.Set(val)
	return o
}

func (o *SpanAttributes) WithCorpusSize(val int) *SpanAttributes {
	o.corpusSize.Set(val)
	return o
}

func (o *SpanAttributes) WithExecCount(val uint64) *SpanAttributes {
	o.execCount.Set(int64(val))
	return o
}

func (o *SpanAttributes) WithTotalNode(val uint64) *SpanAttributes {
	o.totalNode.Set(int64(val))
	return o
}

func (o *SpanAttributes) WithExtraAttribute(key string, val any) *SpanAttributes {
	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	o.extraAttributes[key] = val
	return o
}

func (o SpanAttributes) Attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	attrs = append(attrs, attribute.String("fuzz.action.category", o.ActionCategory))
	if o.RunID.set {
		attrs = append(attrs, attribute.String("fuzz.run.id", o.RunID.val))
	}
	if o.TargetCommand.set {
		attrs = append(attrs, attribute.String("fuzz.target.command", o.TargetCommand.val))
	}
	if o.corpusSize.set {
		attrs = append(attrs, attribute.Int("fuzz.corpus.size", o.corpusSize.val))
	}
	if o.execCount.set {
		attrs = append(attrs, attribute.Int64("fuzz.exec.count", o.execCount.val))
	}
	if o.totalNode.set {
		attrs = append(attrs, attribute.Int64("fuzz.coverage.nodes", o.totalNode.val))
	}

	for k, v := range o.extraAttributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case uint64:
			attrs = append(attrs, attribute.Int64(k, int64(val)))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}

	return attrs
}

type EventAttributes []attribute.KeyValue

func NewEventAttributes(attributes map[string]string) EventAttributes {
	attrs := make(EventAttributes, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

type optional[T any] struct {
	val T
	set bool
}

func (o *optional[T]) Set(val T) { o.val = val; o.set = true }

func mergeOptional[T any](target, source *optional[T]) {
	if !target.set && source.set {
		target.val = source.val
		target.set = true
	}
}

func overrideOptional[T any](target, source *optional[T]) {
	if source.set {
		target.val = source.val
		target.set = true
	}
}
