package events

const (
	// KindCallStarted identifies the start of a telephony media stream.
	KindCallStarted Kind = "call.started"
	// KindCallStateChanged identifies a session state machine transition.
	KindCallStateChanged Kind = "call.state_changed"
	// KindCallEnded identifies the end of a telephony media stream.
	KindCallEnded Kind = "call.ended"
)

// CallStarted marks the start of a call's media stream.
type CallStarted struct {
	Base
	StreamSID string
}

// NewCallStarted creates a call started event.
func NewCallStarted(streamSID string) CallStarted {
	return CallStarted{Base: NewBase(KindCallStarted), StreamSID: streamSID}
}

// CallStateChanged carries a session state machine transition.
type CallStateChanged struct {
	Base
	From string
	To   string
}

// NewCallStateChanged creates a state transition event.
func NewCallStateChanged(from, to string) CallStateChanged {
	return CallStateChanged{Base: NewBase(KindCallStateChanged), From: from, To: to}
}

// CallEnded marks the end of a call's media stream.
type CallEnded struct {
	Base
	StreamSID string
}

// NewCallEnded creates a call ended event.
func NewCallEnded(streamSID string) CallEnded {
	return CallEnded{Base: NewBase(KindCallEnded), StreamSID: streamSID}
}
