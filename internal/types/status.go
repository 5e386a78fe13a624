package types

// Status classifies the outcome of one target execution.
type Status int

const (
	Normal Status = iota
	Crash
	Timeout
)

func (s Status) String() string {
	switch s {
	case Normal:
		return "normal"
	case Crash:
		return "crash"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Feedback is the coverage measured for a single execution.
//
// Node is the number of coverage units the execution reached. NewNode is the number of
// those units that no earlier execution of this process had reached.
type Feedback struct {
	Node    uint64 `json:"node"`
	NewNode uint64 `json:"newnode"`
}
