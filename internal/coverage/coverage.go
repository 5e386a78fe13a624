// Package coverage accounts for the coverage units reached by target executions.
package coverage

import (
	"covfuzz/internal/types"
	"sync"
)

// Map is the trace region an instrumented target writes its edge hits into.
// A non-zero byte at index i means coverage unit i was reached.
type Map interface {
	Bytes() []byte
	Reset()
	// Env returns the environment variables the target needs to find the map.
	Env() []string
	Close() error
}

// Virgin is the set of coverage units reached by any execution in this process.
// It only grows.
type Virgin struct {
	mu   sync.Mutex
	seen []bool
}

func NewVirgin(mapSize int) *Virgin {
	return &Virgin{seen: make([]bool, mapSize)}
}

// Classify measures one execution trace and folds it into the seen set.
func (v *Virgin) Classify(trace []byte) types.Feedback {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := min(len(trace), len(v.seen))
	var fb types.Feedback
	for i := 0; i < n; i++ {
		if trace[i] == 0 {
			continue
		}
		fb.Node++
		if !v.seen[i] {
			v.seen[i] = true
			fb.NewNode++
		}
	}
	return fb
}

// MemoryMap is a process-local Map, used when the target is driven in-process or in tests.
type MemoryMap struct {
	bits []byte
}

func NewMemoryMap(size int) *MemoryMap {
	return &MemoryMap{bits: make([]byte, size)}
}

func (m *MemoryMap) Bytes() []byte { return m.bits }
func (m *MemoryMap) Env() []string { return nil }
func (m *MemoryMap) Close() error  { return nil }

func (m *MemoryMap) Reset() {
	clear(m.bits)
}
