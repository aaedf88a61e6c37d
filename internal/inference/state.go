package inference

// State is the lifecycle of the model resource a handle guards.
type State int

const (
	Waiting State = iota
	Running
	Cancelling
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Cancelling:
		return "cancelling"
	default:
		return "waiting"
	}
}
