package host

// Stage is a step of a single request's execution. Stages are reached in
// order; a failure reports the last stage reached.
type Stage int

const (
	StageIdle Stage = iota
	StageCompiled
	StageInstantiated
	StageBodyWritten
	StageInvoked
	StageResultExtracted
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "Idle"
	case StageCompiled:
		return "Compiled"
	case StageInstantiated:
		return "Instantiated"
	case StageBodyWritten:
		return "BodyWritten"
	case StageInvoked:
		return "Invoked"
	case StageResultExtracted:
		return "ResultExtracted"
	default:
		return "Unknown"
	}
}
