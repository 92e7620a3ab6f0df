package pipeline

// State is the pipeline lifecycle phase.
type State int

const (
	StateUninitialized State = iota
	StateIndexing
	StateReady
	StateRebuildInProgress
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIndexing:
		return "indexing"
	case StateReady:
		return "ready"
	case StateRebuildInProgress:
		return "rebuild_in_progress"
	default:
		return "unknown"
	}
}

// buildTarget returns the state a build moves to from s, or false when a
// build is already running.
func (s State) buildTarget() (State, bool) {
	switch s {
	case StateUninitialized:
		return StateIndexing, true
	case StateReady:
		return StateRebuildInProgress, true
	default:
		return s, false
	}
}
