package speechtotext

import "fmt"

// ConnectError reports a failure to open the transcription connection. The
// session degrades (inbound forwarding pauses) instead of dying.
type ConnectError struct {
	Provider string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s transcription service: %v", e.Provider, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ProtocolError reports an explicit error event from the transcription
// service. It aborts the current utterance only.
type ProtocolError struct {
	Provider string
	Message  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s transcription service reported an error: %s", e.Provider, e.Message)
}

// TransportClosedError reports that the transcription socket closed
// unexpectedly while the receive loop was running.
type TransportClosedError struct {
	Provider string
	Err      error
}

func (e *TransportClosedError) Error() string {
	return fmt.Sprintf("%s transcription connection closed: %v", e.Provider, e.Err)
}

func (e *TransportClosedError) Unwrap() error { return e.Err }
