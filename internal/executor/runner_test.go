package executor

import (
	"context"
	"covfuzz/internal/coverage"
	"covfuzz/internal/types"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedMap pretends the target reached the units listed for each execution.
type scriptedMap struct {
	bits   []byte
	traces [][]int
	runs   int
	closed bool
}

func (m *scriptedMap) Bytes() []byte { return m.bits }
func (m *scriptedMap) Env() []string { return []string{"COVFUZZ_TEST_MAP=1"} }

func (m *scriptedMap) Reset() {
	clear(m.bits)
	if m.runs < len(m.traces) {
		for _, i := range m.traces[m.runs] {
			m.bits[i] = 1
		}
	}
	m.runs++
}

func (m *scriptedMap) Close() error {
	m.closed = true
	return nil
}

func newRunner(t *testing.T, timeout time.Duration, args ...string) (*Runner, string) {
	t.Helper()
	out := t.TempDir()
	r, err := New(zap.NewNop(), Options{
		TargetArgs: args,
		OutputDir:  out,
		Timeout:    timeout,
	}, coverage.NewMemoryMap(64), coverage.NewVirgin(64))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, out
}

func TestRunStatus(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   types.Status
	}{
		{"clean exit", "exit 0", types.Normal},
		{"non-zero exit", "exit 3", types.Normal},
		{"segfault", "kill -SEGV $$", types.Crash},
		{"abort", "kill -ABRT $$", types.Crash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newRunner(t, 5*time.Second, "/bin/sh", "-c", tt.script)
			status, _, err := r.Run(context.Background(), []byte("input"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestRunTimeoutKillsProcessGroup(t *testing.T) {
	r, _ := newRunner(t, 200*time.Millisecond, "/bin/sh", "-c", "sleep 30; sleep 30")

	start := time.Now()
	status, _, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.Timeout, status)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunFeedsStdin(t *testing.T) {
	r, _ := newRunner(t, 5*time.Second, "/bin/sh", "-c", `read x; [ "$x" = boom ] && kill -SEGV $$; exit 0`)

	status, _, err := r.Run(context.Background(), []byte("calm\n"))
	require.NoError(t, err)
	assert.Equal(t, types.Normal, status)

	status, _, err = r.Run(context.Background(), []byte("boom\n"))
	require.NoError(t, err)
	assert.Equal(t, types.Crash, status)
}

func TestRunWritesCurrentInputFile(t *testing.T) {
	r, out := newRunner(t, 5*time.Second, "/bin/sh", "-c", `grep -q boom "$0" && kill -SEGV $$; exit 0`, "@@")
	curInput := filepath.Join(out, CurInputName)
	assert.Equal(t, curInput, r.args[3])

	status, _, err := r.Run(context.Background(), []byte("calm"))
	require.NoError(t, err)
	assert.Equal(t, types.Normal, status)

	content, err := os.ReadFile(curInput)
	require.NoError(t, err)
	assert.Equal(t, []byte("calm"), content)

	status, _, err = r.Run(context.Background(), []byte("xxboomxx"))
	require.NoError(t, err)
	assert.Equal(t, types.Crash, status)

	require.NoError(t, r.Close())
	assert.NoFileExists(t, curInput)
}

func TestRunReportsCoverage(t *testing.T) {
	covMap := &scriptedMap{
		bits: make([]byte, 16),
		traces: [][]int{
			{1, 2, 3},
			{2, 3},
			{3, 4, 5, 6},
		},
	}
	r, err := New(zap.NewNop(), Options{
		TargetArgs: []string{"/bin/sh", "-c", "exit 0"},
		OutputDir:  t.TempDir(),
		Timeout:    5 * time.Second,
	}, covMap, coverage.NewVirgin(16))
	require.NoError(t, err)
	assert.Contains(t, r.env, "COVFUZZ_TEST_MAP=1")

	want := []types.Feedback{
		{Node: 3, NewNode: 3},
		{Node: 2, NewNode: 0},
		{Node: 4, NewNode: 3},
	}
	for _, fb := range want {
		_, got, err := r.Run(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, fb, got)
	}

	require.NoError(t, r.Close())
	assert.True(t, covMap.closed)
}

func TestRunCanceledContext(t *testing.T) {
	r, _ := newRunner(t, 5*time.Second, "/bin/sh", "-c", "exit 0")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := r.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsMissingTarget(t *testing.T) {
	_, err := New(zap.NewNop(), Options{
		TargetArgs: []string{filepath.Join(t.TempDir(), "no-such-target")},
		OutputDir:  t.TempDir(),
	}, coverage.NewMemoryMap(8), coverage.NewVirgin(8))
	assert.Error(t, err)

	_, err = New(zap.NewNop(), Options{OutputDir: t.TempDir()}, coverage.NewMemoryMap(8), coverage.NewVirgin(8))
	assert.Error(t, err)
}

func TestFilterOtelEnv(t *testing.T) {
	env := filterOtelEnv([]string{"PATH=/bin", "OTEL_EXPORTER_OTLP_ENDPOINT=x", "OTLP_HEADERS=y", "HOME=/root"})
	assert.Equal(t, []string{"PATH=/bin", "HOME=/root"}, env)
}

func TestTargetEnvKeepsOperatorSanitizerOptions(t *testing.T) {
	env := targetEnv(
		[]string{"PATH=/bin", "ASAN_OPTIONS=detect_leaks=1", "OTEL_SERVICE_NAME=covfuzz"},
		defaultTargetEnv(),
		[]string{"__AFL_SHM_ID=7"},
	)

	assert.Contains(t, env, "ASAN_OPTIONS=detect_leaks=1")
	var asan, ubsan int
	for _, kv := range env {
		switch {
		case strings.HasPrefix(kv, "ASAN_OPTIONS="):
			asan++
		case strings.HasPrefix(kv, "UBSAN_OPTIONS="):
			ubsan++
		}
	}
	assert.Equal(t, 1, asan)
	assert.Equal(t, 1, ubsan)
	assert.NotContains(t, env, "OTEL_SERVICE_NAME=covfuzz")
	assert.Equal(t, "__AFL_SHM_ID=7", env[len(env)-1])
}
