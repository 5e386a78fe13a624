//go:build linux

package coverage

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestShmMap(t *testing.T, size int) *ShmMap {
	t.Helper()
	m, err := NewShmMap(size)
	if err != nil {
		t.Skipf("SysV shared memory unavailable: %v", err)
	}
	return m
}

func envValue(t *testing.T, env []string, key string) string {
	t.Helper()
	for _, kv := range env {
		if val, ok := strings.CutPrefix(kv, key+"="); ok {
			return val
		}
	}
	t.Fatalf("%s not in %v", key, env)
	return ""
}

func TestShmMapSharedWithTarget(t *testing.T) {
	m := newTestShmMap(t, 4096)

	env := m.Env()
	assert.Equal(t, "4096", envValue(t, env, "AFL_MAP_SIZE"))
	id, err := strconv.Atoi(envValue(t, env, ShmMapEnv))
	require.NoError(t, err)

	// attach the way an instrumented target does
	target, err := unix.SysvShmAttach(id, 0, 0)
	require.NoError(t, err)
	require.Len(t, target, 4096)

	target[7] = 3
	target[4095] = 1
	assert.Equal(t, byte(3), m.Bytes()[7])
	assert.Equal(t, byte(1), m.Bytes()[4095])

	m.Reset()
	assert.Equal(t, byte(0), target[7])
	assert.Equal(t, byte(0), target[4095])

	require.NoError(t, unix.SysvShmDetach(target))
	require.NoError(t, m.Close())

	// the segment is gone once nobody is attached
	_, err = unix.SysvShmAttach(id, 0, 0)
	assert.Error(t, err)
}

func TestShmMapClassify(t *testing.T) {
	m := newTestShmMap(t, 64)
	defer m.Close()

	v := NewVirgin(64)
	m.Bytes()[1] = 1
	m.Bytes()[9] = 5
	fb := v.Classify(m.Bytes())
	assert.Equal(t, uint64(2), fb.Node)
	assert.Equal(t, uint64(2), fb.NewNode)

	m.Reset()
	m.Bytes()[9] = 1
	fb = v.Classify(m.Bytes())
	assert.Equal(t, uint64(1), fb.Node)
	assert.Equal(t, uint64(0), fb.NewNode)
}
