package dispatch

import "errors"

// ErrNoRecipientToken reports a successful lookup that found no device token.
var ErrNoRecipientToken = errors.New("No FCM token")

// FailureKind identifies the pipeline stage that failed.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureResolution
	FailureCredential
	FailureExchange
	FailureDispatch
)

func (k FailureKind) String() string {
	switch k {
	case FailureResolution:
		return "resolution"
	case FailureCredential:
		return "credential"
	case FailureExchange:
		return "exchange"
	case FailureDispatch:
		return "dispatch"
	default:
		return "unknown"
	}
}

// StageError tags an error with the stage it came from.
// Its message is the underlying error's message, unchanged.
type StageError struct {
	Kind FailureKind
	Err  error
}

func (e *StageError) Error() string { return e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err, keeping an existing kind if err is already tagged.
func NewStageError(kind FailureKind, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Kind: kind, Err: err}
}

// KindOf reports the stage of err, or FailureUnknown for untagged errors.
func KindOf(err error) FailureKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return FailureUnknown
}
