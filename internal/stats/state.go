// Package stats holds the run-wide execution counters and publishes them.
package stats

import (
	"covfuzz/internal/types"
	"sync"
	"time"
)

// State is the shared telemetry state of a run. All access goes through its mutex,
// so several executing goroutines may update it.
type State struct {
	mu sync.Mutex

	execCount   uint64
	totalNode   uint64
	crashes     uint64
	hangs       uint64
	lastNewNode time.Time
}

// Snapshot is a consistent copy of State.
type Snapshot struct {
	ExecCount   uint64
	TotalNode   uint64
	Crashes     uint64
	Hangs       uint64
	LastNewNode time.Time
}

func NewState() *State {
	return &State{}
}

// Publish overwrites the counters with a baseline measured outside the loop.
func (s *State) Publish(execCount, totalNode uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execCount = execCount
	s.totalNode = totalNode
}

// RecordExecution accounts for one attempted execution.
func (s *State) RecordExecution(status types.Status, fb types.Feedback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.execCount++
	s.totalNode += fb.NewNode
	if fb.NewNode > 0 {
		s.lastNewNode = time.Now()
	}
	switch status {
	case types.Crash:
		s.crashes++
	case types.Timeout:
		s.hangs++
	}
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ExecCount:   s.execCount,
		TotalNode:   s.totalNode,
		Crashes:     s.crashes,
		Hangs:       s.hangs,
		LastNewNode: s.lastNewNode,
	}
}
