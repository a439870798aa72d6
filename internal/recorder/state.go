package recorder

// State is the session life-cycle position. It only moves forward; a failed
// step pins it where it is for the rest of the run.
type State int32

const (
	StateBoot State = iota
	StateMounted
	StateConfigured
	StateLogging
)

func (s State) String() string {
	switch s {
	case StateBoot:
		return "boot"
	case StateMounted:
		return "mounted"
	case StateConfigured:
		return "configured"
	case StateLogging:
		return "logging"
	default:
		return "unknown"
	}
}
