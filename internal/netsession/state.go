package netsession

// ConnectionState is the coarse connectivity of the active session.
type ConnectionState string

const (
	StateLoading   ConnectionState = "loading"
	StateConnected ConnectionState = "connected"
	StateError     ConnectionState = "error"
)

func (s ConnectionState) String() string {
	return string(s)
}

// Status describes the active session.
type Status struct {
	Generation uint64
	State      ConnectionState
	Err        error // set when State is StateError
}

type stateObserver func(network string, state ConnectionState)
