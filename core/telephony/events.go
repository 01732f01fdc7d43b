// Package telephony defines the wire contract spoken with the telephony
// media-stream peer: a closed set of inbound event variants and the outbound
// media/mark message shapes.
package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// DecodeError reports a malformed inbound wire event. Callers drop the
// message, log it, and keep the session alive.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("telephony decode error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("telephony decode error: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Event is the closed set of inbound telephony messages. Dispatch on the
// concrete type; [Unknown] is the single default arm.
type Event interface {
	isTelephonyEvent()
}

// Connected is the transport-level ack sent after the socket opens.
type Connected struct{}

// Start begins a session and names the media stream.
type Start struct {
	StreamSID string
	// SampleRate is the negotiated inbound rate, 0 when the peer sent none.
	SampleRate int
}

// Media carries one inbound audio frame, already base64-decoded.
type Media struct {
	Payload []byte
	Chunk   int
}

// Mark is the peer's playback acknowledgement for a named segment.
type Mark struct {
	Name string
}

// Stop ends the session.
type Stop struct{}

// Unknown preserves the event name of an unrecognised message.
type Unknown struct {
	Type string
}

func (Connected) isTelephonyEvent() {}
func (Start) isTelephonyEvent()     {}
func (Media) isTelephonyEvent()     {}
func (Mark) isTelephonyEvent()      {}
func (Stop) isTelephonyEvent()      {}
func (Unknown) isTelephonyEvent()   {}

type inboundEnvelope struct {
	Event     string `json:"event"`
	StreamSID string `json:"stream_sid"`
	Metadata  *struct {
		SampleRate int `json:"sample_rate"`
	} `json:"metadata"`
	Media *struct {
		Payload string `json:"payload"`
		Chunk   int    `json:"chunk"`
	} `json:"media"`
	Mark *struct {
		Name string `json:"name"`
	} `json:"mark"`
}

// ParseEvent decodes one inbound wire message into its event variant.
func ParseEvent(raw []byte) (Event, error) {
	var envelope inboundEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &DecodeError{Reason: "malformed event json", Err: err}
	}

	switch envelope.Event {
	case "connected":
		return Connected{}, nil
	case "start":
		event := Start{StreamSID: envelope.StreamSID}
		if envelope.Metadata != nil {
			event.SampleRate = envelope.Metadata.SampleRate
		}
		return event, nil
	case "media":
		if envelope.Media == nil {
			return nil, &DecodeError{Reason: "media event without media payload"}
		}
		payload, err := base64.StdEncoding.DecodeString(envelope.Media.Payload)
		if err != nil {
			return nil, &DecodeError{Reason: "malformed media payload base64", Err: err}
		}
		return Media{Payload: payload, Chunk: envelope.Media.Chunk}, nil
	case "mark":
		if envelope.Mark == nil {
			return nil, &DecodeError{Reason: "mark event without mark name"}
		}
		return Mark{Name: envelope.Mark.Name}, nil
	case "stop":
		return Stop{}, nil
	default:
		return Unknown{Type: envelope.Event}, nil
	}
}

// OutboundMedia is one sequenced, paced audio frame sent to the peer.
type OutboundMedia struct {
	Event          string        `json:"event"`
	SequenceNumber int           `json:"sequence_number"`
	StreamSID      string        `json:"stream_sid"`
	Media          OutboundFrame `json:"media"`
}

type OutboundFrame struct {
	Chunk     int    `json:"chunk"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"`
}

// NewMediaEvent builds an outbound media event, base64-encoding the frame.
func NewMediaEvent(sequenceNumber int, streamSID string, chunk int, at time.Time, frame []byte) OutboundMedia {
	return OutboundMedia{
		Event:          "media",
		SequenceNumber: sequenceNumber,
		StreamSID:      streamSID,
		Media: OutboundFrame{
			Chunk:     chunk,
			Timestamp: at.UTC().Format(time.RFC3339Nano),
			Payload:   base64.StdEncoding.EncodeToString(frame),
		},
	}
}

// OutboundMark names a completed playback segment.
type OutboundMark struct {
	Event          string       `json:"event"`
	SequenceNumber int          `json:"sequence_number"`
	StreamSID      string       `json:"stream_sid"`
	Mark           OutboundName `json:"mark"`
}

type OutboundName struct {
	Name string `json:"name"`
}

// NewMarkEvent builds an outbound mark event.
func NewMarkEvent(sequenceNumber int, streamSID, name string) OutboundMark {
	return OutboundMark{
		Event:          "mark",
		SequenceNumber: sequenceNumber,
		StreamSID:      streamSID,
		Mark:           OutboundName{Name: name},
	}
}
