package texttospeech

import "fmt"

// ConnectError reports a failure to open the synthesis connection. The
// session degrades (greeting and replies are skipped) instead of dying.
type ConnectError struct {
	Provider string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s synthesis service: %v", e.Provider, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ProtocolError reports an explicit error event from the synthesis service.
// It aborts the current turn only.
type ProtocolError struct {
	Provider string
	Message  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s synthesis service reported an error: %s", e.Provider, e.Message)
}

// TransportClosedError reports that the synthesis socket closed unexpectedly.
type TransportClosedError struct {
	Provider string
	Err      error
}

func (e *TransportClosedError) Error() string {
	return fmt.Sprintf("%s synthesis connection closed: %v", e.Provider, e.Err)
}

func (e *TransportClosedError) Unwrap() error { return e.Err }
