package events

const (
	// KindAssistantResponseFinal identifies the reply text selected for a turn.
	KindAssistantResponseFinal Kind = "assistant_response.final"
	// KindAssistantPlaybackFrame identifies one paced outbound audio frame.
	KindAssistantPlaybackFrame Kind = "assistant_playback.frame"
	// KindAssistantPlaybackEnded identifies completion of a playback turn.
	KindAssistantPlaybackEnded Kind = "assistant_playback.ended"
)

// AssistantResponseFinal carries the reply text chosen by the dialogue step.
type AssistantResponseFinal struct {
	Base
	Text string
}

// NewAssistantResponseFinal creates a reply text event.
func NewAssistantResponseFinal(text string) AssistantResponseFinal {
	return AssistantResponseFinal{Base: NewBase(KindAssistantResponseFinal), Text: text}
}

// AssistantPlaybackFrame carries one fixed-size outbound audio frame.
type AssistantPlaybackFrame struct {
	Base
	Audio []byte
}

// NewAssistantPlaybackFrame creates a playback frame event.
func NewAssistantPlaybackFrame(audio []byte) AssistantPlaybackFrame {
	return AssistantPlaybackFrame{Base: NewBase(KindAssistantPlaybackFrame), Audio: audio}
}

// AssistantPlaybackEnded marks the end of one playback turn, named after the
// turn's mark event.
type AssistantPlaybackEnded struct {
	Base
	Mark string
}

// NewAssistantPlaybackEnded creates a playback ended event.
func NewAssistantPlaybackEnded(mark string) AssistantPlaybackEnded {
	return AssistantPlaybackEnded{Base: NewBase(KindAssistantPlaybackEnded), Mark: mark}
}
