package seeds

import (
	"context"
	"covfuzz/internal/types"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

type recordingMQ struct {
	mu        sync.Mutex
	published []types.SeedMessage
}

func (r *recordingMQ) GetChannel() *amqp.Channel { return nil }

func (r *recordingMQ) Publish(ctx context.Context, queue string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if queue == "seed_queue" {
		r.published = append(r.published, v.(types.SeedMessage))
	}
	return nil
}

func (r *recordingMQ) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published)
}

func TestManagerFlushesOnStop(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	broker := &recordingMQ{}
	m := NewManager(ManagerParams{Lc: lc, Logger: zap.NewNop(), RabbitMQ: broker})
	lc.RequireStart()

	for i := range 10 {
		m.Submit(types.SeedMessage{SeedId: i, RunId: "run-1"})
	}
	lc.RequireStop()

	assert.Equal(t, 10, m.processed)
	require.Len(t, broker.published, 10)
	for i, msg := range broker.published {
		assert.Equal(t, i, msg.SeedId)
	}
}

func TestManagerFlushesFullBatch(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	broker := &recordingMQ{}
	m := NewManager(ManagerParams{Lc: lc, Logger: zap.NewNop(), RabbitMQ: broker})
	lc.RequireStart()
	defer lc.RequireStop()

	for i := range batchSize {
		m.Submit(types.SeedMessage{SeedId: i})
	}
	require.Eventually(t, func() bool { return broker.count() == batchSize }, 5*time.Second, 10*time.Millisecond)
}

func TestManagerFlushesOnTick(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	broker := &recordingMQ{}
	m := NewManager(ManagerParams{Lc: lc, Logger: zap.NewNop(), RabbitMQ: broker})
	m.flushEvery = 20 * time.Millisecond
	lc.RequireStart()
	defer lc.RequireStop()

	m.Submit(types.SeedMessage{SeedId: 1})
	require.Eventually(t, func() bool { return broker.count() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestManagerWithoutBackends(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	m := NewManager(ManagerParams{Lc: lc, Logger: zap.NewNop()})
	lc.RequireStart()
	m.Submit(types.SeedMessage{SeedId: 1})
	lc.RequireStop()
	assert.Equal(t, 1, m.processed)
}
