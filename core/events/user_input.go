package events

const (
	// KindUserTranscriptPartialUpdated identifies mutable partial transcript updates.
	KindUserTranscriptPartialUpdated Kind = "user_input.transcript_partial_updated"
	// KindUserTranscriptFinal identifies the final transcript for the utterance.
	KindUserTranscriptFinal Kind = "user_input.transcript_final"
)

// UserTranscriptPartialUpdated carries the mutable partial transcript snapshot.
// Only the latest snapshot is meaningful.
type UserTranscriptPartialUpdated struct {
	Base
	Transcript string
}

// NewUserTranscriptPartialUpdated creates a partial transcript update event.
func NewUserTranscriptPartialUpdated(transcript string) UserTranscriptPartialUpdated {
	return UserTranscriptPartialUpdated{Base: NewBase(KindUserTranscriptPartialUpdated), Transcript: transcript}
}

// UserTranscriptFinal carries the terminal transcript for one utterance.
type UserTranscriptFinal struct {
	Base
	Transcript string
}

// NewUserTranscriptFinal creates a final transcript event.
func NewUserTranscriptFinal(transcript string) UserTranscriptFinal {
	return UserTranscriptFinal{Base: NewBase(KindUserTranscriptFinal), Transcript: transcript}
}
