// Package call models call slots and the connections they hold.
//
// Exactly four slots exist for the life of the process: Ringing,
// Foreground, Background and Handover. Slots are never created or
// destroyed, only emptied and refilled; "foreground" and "background" are
// roles exchanged with SwitchWith, not fixed identities.
package call

import "fmt"

// State is the lifecycle state of a connection, and by derivation of a slot.
type State int

const (
	// StateIdle is the state of an empty slot or an unused connection.
	StateIdle State = iota
	// StateDialing means an outgoing connection has been requested.
	StateDialing
	// StateAlerting means the remote end is ringing.
	StateAlerting
	// StateActive means media is flowing.
	StateActive
	// StateHolding means the connection is held.
	StateHolding
	// StateWaiting means an incoming connection arrived while another
	// call is active (call waiting).
	StateWaiting
	// StateDisconnecting means teardown has been requested.
	StateDisconnecting
	// StateDisconnected is the terminal state.
	StateDisconnected
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDialing:
		return "Dialing"
	case StateAlerting:
		return "Alerting"
	case StateActive:
		return "Active"
	case StateHolding:
		return "Holding"
	case StateWaiting:
		return "Waiting"
	case StateDisconnecting:
		return "Disconnecting"
	case StateDisconnected:
		return "Disconnected"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// IsAlive reports whether the connection still participates in a call.
func (s State) IsAlive() bool {
	return s != StateIdle && s != StateDisconnected
}

// IsRinging reports whether the state is an unanswered incoming state.
func (s State) IsRinging() bool {
	return s == StateAlerting || s == StateWaiting
}

// IsDialing reports whether the call is still being set up outbound.
func (s State) IsDialing() bool {
	return s == StateDialing || s == StateAlerting
}

// Direction indicates who originated a connection.
type Direction int

const (
	// DirectionIncoming is a mobile-terminated connection.
	DirectionIncoming Direction = iota
	// DirectionOutgoing is a mobile-originated connection.
	DirectionOutgoing
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionIncoming:
		return "incoming"
	case DirectionOutgoing:
		return "outgoing"
	default:
		return "unknown"
	}
}

// VideoState is a bitmask describing the video composition of a connection.
type VideoState int

const (
	// VideoNone means audio only.
	VideoNone VideoState = 0
	// VideoTX means we send video.
	VideoTX VideoState = 1 << 0
	// VideoRX means we receive video.
	VideoRX VideoState = 1 << 1
	// VideoBidirectional is two-way video.
	VideoBidirectional VideoState = VideoTX | VideoRX
	// VideoPaused flags a paused video stream; combined with TX/RX bits.
	VideoPaused VideoState = 1 << 2
)

// HasVideo reports whether any video stream is present, paused or not.
func (v VideoState) HasVideo() bool {
	return v&VideoBidirectional != 0
}

// IsPaused reports whether the video stream is paused.
func (v VideoState) IsPaused() bool {
	return v&VideoPaused != 0
}

// String returns the string representation of the video state.
func (v VideoState) String() string {
	if v == VideoNone {
		return "audio-only"
	}
	var s string
	switch v & VideoBidirectional {
	case VideoTX:
		s = "tx"
	case VideoRX:
		s = "rx"
	case VideoBidirectional:
		s = "bidirectional"
	default:
		s = "none"
	}
	if v.IsPaused() {
		s += "+paused"
	}
	return s
}

// Role names one of the four fixed slots.
type Role int

const (
	// RoleRinging holds unanswered incoming connections.
	RoleRinging Role = iota
	// RoleForeground holds the active call.
	RoleForeground
	// RoleBackground holds the held call.
	RoleBackground
	// RoleHandover holds a connection that is mid-handover between bearers.
	RoleHandover
)

// String returns the string representation of the role.
func (r Role) String() string {
	switch r {
	case RoleRinging:
		return "ringing"
	case RoleForeground:
		return "foreground"
	case RoleBackground:
		return "background"
	case RoleHandover:
		return "handover"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}
