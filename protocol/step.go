package protocol

import (
	"github.com/ridge/smcmon/wire"
)

// State is the lifecycle state of a Protocol
type State int32

// State values
const (
	StateCreated State = iota
	StateConnecting
	StateOpen
	StateReceiving
	StateAborting
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReceiving:
		return "receiving"
	case StateAborting:
		return "aborting"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StepKind tells how a Receive call ended
type StepKind int

// StepKind values
const (
	// Frame carries a decoded frame in Step.Message
	Frame StepKind = iota

	// Done means the stream is complete: the end frame has been delivered or
	// the server closed the connection
	Done

	// Aborted means Abort was called
	Aborted

	// Failed carries the reason in Step.Err. A server failure frame is an
	// *InvalidFetch and the frame is in Step.Message.
	Failed
)

func (k StepKind) String() string {
	switch k {
	case Frame:
		return "frame"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Step is the result of one Receive call
type Step struct {
	Kind    StepKind
	Message wire.Message
	Err     error
}

// Final reports whether the stream is over
func (s Step) Final() bool {
	return s.Kind != Frame
}
