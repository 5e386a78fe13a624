package watchdog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatchDogReportsCreatedFiles(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notify := make(chan string, 8)
	skipHidden := func(path string) bool { return !strings.HasPrefix(filepath.Base(path), ".") }
	wd, err := NewWatchDogFactory(zap.NewNop()).New(ctx, notify, skipHidden)
	require.NoError(t, err)
	require.NoError(t, wd.AddDir(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".partial"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed1"), []byte("x"), 0644))

	var got string
	require.Eventually(t, func() bool {
		select {
		case got = <-notify:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "seed1", filepath.Base(got))

	cancel()
	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-notify:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatchDogAddMissingDir(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wd, err := NewWatchDogFactory(zap.NewNop()).New(ctx, make(chan string), nil)
	require.NoError(t, err)
	assert.Error(t, wd.AddDir(filepath.Join(t.TempDir(), "missing")))
}

func TestWatchDogReportsWrites(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notify := make(chan string, 64)
	wd, err := NewWatchDogFactory(zap.NewNop()).New(ctx, notify, nil)
	require.NoError(t, err)
	require.NoError(t, wd.AddDir(dir))

	path := filepath.Join(dir, "seed")
	f, err := os.Create(path)
	require.NoError(t, err)

	received := func() bool {
		select {
		case got := <-notify:
			return got == path
		default:
			return false
		}
	}
	require.Eventually(t, received, 5*time.Second, 10*time.Millisecond)

	// drain the creation events before writing
	time.Sleep(100 * time.Millisecond)
	for len(notify) > 0 {
		<-notify
	}

	_, err = f.WriteString("content")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Eventually(t, received, 5*time.Second, 10*time.Millisecond)
}
