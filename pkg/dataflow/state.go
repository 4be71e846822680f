package dataflow

// State is a block's lifecycle state.
type State int32

const (
	// Accepting means the block takes new input and processes it.
	Accepting State = iota

	// Completing means the block takes no new input and is finishing
	// the work it already holds.
	Completing

	// Completed is terminal: all input was processed without error.
	Completed

	// Faulted is terminal: a stage function failed or an upstream fault
	// was propagated into the block.
	Faulted
)

func (s State) String() string {
	switch s {
	case Accepting:
		return "accepting"
	case Completing:
		return "completing"
	case Completed:
		return "completed"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is Completed or Faulted.
func (s State) IsTerminal() bool {
	return s == Completed || s == Faulted
}
