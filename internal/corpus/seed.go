package corpus

import (
	"bytes"
	"fmt"
	"os"
)

// Seed is an accepted input. Its content lives on disk and is read on demand,
// unless the seed was created in memory.
type Seed struct {
	id   int
	path string
	data []byte
}

func NewFileSeed(id int, path string) *Seed {
	return &Seed{id: id, path: path}
}

func NewMemorySeed(id int, data []byte) *Seed {
	return &Seed{id: id, data: bytes.Clone(data)}
}

func (s *Seed) ID() int {
	return s.id
}

// Path returns the backing file, or "" for memory-backed seeds.
func (s *Seed) Path() string {
	return s.path
}

// Load returns the seed content. The returned slice may be modified by the caller.
func (s *Seed) Load() ([]byte, error) {
	if s.path == "" {
		return bytes.Clone(s.data), nil
	}
	content, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to load seed %d: %w", s.id, err)
	}
	return content, nil
}

func (s *Seed) String() string {
	if s.path == "" {
		return fmt.Sprintf("seed#%d(mem)", s.id)
	}
	return fmt.Sprintf("seed#%d(%s)", s.id, s.path)
}
