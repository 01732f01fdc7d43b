// Package events defines the typed session event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - call.*
//   - user_input.*
//   - assistant_response.*
//   - assistant_playback.*
//
// Semantics used across the package:
//
//   - Partial: mutable point-in-time snapshot that is overwritten in place.
//   - Final: terminal immutable text for the current utterance/turn.
//   - Frame: binary audio payload emitted in playback order.
//   - Mark: boundary confirming a completed playback segment.
package events
