package pipeline

// State is the stage a sync cycle is in.
//
//	IDLE -> FETCHING -> NORMALIZING -> DEDUPING -> COMMITTING -> IDLE
//
// Any stage may move to FAILED, which ends that cycle only.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateNormalizing
	StateDeduping
	StateCommitting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateFetching:
		return "FETCHING"
	case StateNormalizing:
		return "NORMALIZING"
	case StateDeduping:
		return "DEDUPING"
	case StateCommitting:
		return "COMMITTING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
