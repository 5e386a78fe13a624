package telemetry

type ActionCategory int

const (
	Fuzzing ActionCategory = iota
	Calibration
)

func (a ActionCategory) String() string {
	switch a {
	case Fuzzing:
		return "fuzzing"
	case Calibration:
		return "calibration"
	default:
		return "unknown"
	}
}
