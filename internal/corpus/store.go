package corpus

import (
	"covfuzz/config"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists newly discovered seeds under <output>/queue.
type Store struct {
	dir  string
	next int
}

// NewStore creates the queue folder. IDs handed out start at firstID so they
// continue the numbering of the initial corpus.
func NewStore(dir string, firstID int) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create queue folder: %w", err)
	}
	return &Store{dir: dir, next: firstID}, nil
}

func NewQueueStore(appConfig *config.AppConfig, initial *Corpus) (*Store, error) {
	return NewStore(filepath.Join(appConfig.OutputDir, "queue"), initial.Size())
}

// Create writes content to a new queue file and returns a seed backed by it.
// If the write fails, the returned seed keeps the content in memory and the
// error is returned alongside it.
func (s *Store) Create(content []byte) (*Seed, error) {
	id := s.next
	s.next++

	path := filepath.Join(s.dir, fmt.Sprintf("id:%06d", id))
	if err := os.WriteFile(path, content, 0644); err != nil {
		return NewMemorySeed(id, content), fmt.Errorf("failed to write seed file: %w", err)
	}
	return NewFileSeed(id, path), nil
}
