package metrics

import (
	"covfuzz/config"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorObserve(t *testing.T) {
	c := NewCollector(&config.AppConfig{RunID: "run-1"})
	c.Observe(120, 33, 2, 1, 9)

	assert.Equal(t, 120.0, testutil.ToFloat64(c.execs))
	assert.Equal(t, 33.0, testutil.ToFloat64(c.totalNode))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.crashes))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.hangs))
	assert.Equal(t, 9.0, testutil.ToFloat64(c.corpusSize))

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	assert.Len(t, families, 5)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		// gauges must not use the counter suffix
		assert.False(t, strings.HasSuffix(mf.GetName(), "_total"), mf.GetName())
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "covfuzz_executions")
	assert.Contains(t, names, "covfuzz_crash_executions")
}
