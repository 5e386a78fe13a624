package types

import "time"

// CrashMessage carries a crashing (or hanging) input to the crash archive.
type CrashMessage struct {
	Input      []byte    `json:"-"`
	Status     Status    `json:"-"`
	Kind       string    `json:"kind"` // "crash" | "hang"
	Path       string    `json:"path"` // filled in once archived
	Hash       string    `json:"hash"`
	RunId      string    `json:"run_id"`
	DetectedAt time.Time `json:"detected_at"`
	TraceCtx   string    `json:"trace_context,omitempty"`
}

// SeedMessage announces a seed accepted into the corpus.
type SeedMessage struct {
	SeedId  int    `json:"seed_id"`
	Path    string `json:"path"` // empty for memory-backed seeds
	Size    int    `json:"size"`
	NewNode uint64 `json:"newnode"`
	RunId   string `json:"run_id"`
}
