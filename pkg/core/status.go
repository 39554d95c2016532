package core

// ExecStatus represents the execution status of a dispatched keyword
type ExecStatus int

const (
	StatusRunning ExecStatus = iota // Currently executing
	StatusSuccess                   // Completed successfully
	StatusFail                      // Completed with an error
)

// String returns the string representation of ExecStatus
func (s ExecStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the status is a final state
func (s ExecStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFail
}

// SessionState represents the lifecycle state of a session
type SessionState int

const (
	SessionCreated    SessionState = iota // Allocated, app not launched yet
	SessionReady                          // Launch completed, accepting keywords
	SessionRunning                        // A keyword is in flight
	SessionTerminated                     // Final; resources released
)

// String returns the string representation of SessionState
func (s SessionState) String() string {
	switch s {
	case SessionCreated:
		return "created"
	case SessionReady:
		return "ready"
	case SessionRunning:
		return "running"
	case SessionTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone       ErrorCategory = iota // No error
	ErrCategoryLocate                          // Locator timeout, unknown image template
	ErrCategoryParameter                       // Malformed keyword invocation
	ErrCategorySession                         // Session missing, busy, or terminated mid-wait
	ErrCategoryFlow                            // Module cycles, unknown or placeholder keywords
	ErrCategoryExpression                      // Rejected arithmetic/date/condition grammar
	ErrCategoryBackend                         // Driver or detection capability failure
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryLocate:
		return "locate"
	case ErrCategoryParameter:
		return "parameter"
	case ErrCategorySession:
		return "session"
	case ErrCategoryFlow:
		return "flow"
	case ErrCategoryExpression:
		return "expression"
	case ErrCategoryBackend:
		return "backend"
	default:
		return "unknown"
	}
}
