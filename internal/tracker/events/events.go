// Package events carries the notifications the tracker surfaces to the
// telecom/UI layer: phone-wide state, precise per-slot state, disconnects
// and supplementary-service indications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/sebas/calltrack/internal/tracker/call"
	"github.com/sebas/calltrack/internal/tracker/cause"
)

// PhoneState is the coarse device-wide call state.
type PhoneState int

const (
	// PhoneIdle means no calls exist.
	PhoneIdle PhoneState = iota
	// PhoneRinging means an unanswered incoming call exists.
	PhoneRinging
	// PhoneOffhook means at least one call is being set up or is up.
	PhoneOffhook
)

// String returns the string representation of the phone state.
func (s PhoneState) String() string {
	switch s {
	case PhoneIdle:
		return "idle"
	case PhoneRinging:
		return "ringing"
	case PhoneOffhook:
		return "offhook"
	default:
		return "unknown"
	}
}

// Type identifies the kind of notification.
type Type string

const (
	// TypePhoneState is a coarse phone state change.
	TypePhoneState Type = "phone_state"
	// TypePreciseState is a per-slot state change.
	TypePreciseState Type = "precise_state"
	// TypeDisconnect reports a connection's final disconnect cause.
	TypeDisconnect Type = "disconnect"
	// TypeSuppService is a supplementary-service notification.
	TypeSuppService Type = "supp_service"
	// TypeSuppServiceFailed reports a failed hold/resume/conference request.
	TypeSuppServiceFailed Type = "supp_service_failed"
	// TypeUSSD carries an unstructured supplementary-service message.
	TypeUSSD Type = "ussd"
	// TypeRingback asks the UI to start or stop local ringback tone.
	TypeRingback Type = "ringback"
)

// Event is one notification. Fields are populated per Type; unset fields
// are zero.
type Event struct {
	ID   string    `json:"id"`
	Type Type      `json:"type"`
	Time time.Time `json:"time"`

	PhoneState PhoneState `json:"phone_state,omitempty"`

	SlotRole  call.Role  `json:"slot_role,omitempty"`
	SlotState call.State `json:"slot_state,omitempty"`

	ConnectionID    string                `json:"connection_id,omitempty"`
	DisconnectCause cause.DisconnectCause `json:"disconnect_cause,omitempty"`

	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	On      bool   `json:"on,omitempty"`
}

// newEvent stamps identity and time on a notification.
func newEvent(t Type) Event {
	return Event{
		ID:   uuid.New().String(),
		Type: t,
		Time: time.Now().UTC(),
	}
}

// PhoneStateChanged builds a coarse phone state notification.
func PhoneStateChanged(s PhoneState) Event {
	e := newEvent(TypePhoneState)
	e.PhoneState = s
	return e
}

// PreciseStateChanged builds a per-slot state notification.
func PreciseStateChanged(role call.Role, s call.State) Event {
	e := newEvent(TypePreciseState)
	e.SlotRole = role
	e.SlotState = s
	return e
}

// Disconnected builds a disconnect-cause notification.
func Disconnected(connID string, dc cause.DisconnectCause) Event {
	e := newEvent(TypeDisconnect)
	e.ConnectionID = connID
	e.DisconnectCause = dc
	return e
}

// SuppServiceNotice builds a supplementary-service notification.
func SuppServiceNotice(code int, message string) Event {
	e := newEvent(TypeSuppService)
	e.Code = code
	e.Message = message
	return e
}

// SuppServiceFailed reports a failed hold/resume/answer/conference request.
func SuppServiceFailed(op string) Event {
	e := newEvent(TypeSuppServiceFailed)
	e.Message = op
	return e
}

// USSDReceived builds a USSD notification.
func USSDReceived(message string, expecting bool) Event {
	e := newEvent(TypeUSSD)
	e.Message = message
	e.On = expecting
	return e
}

// Ringback asks the UI layer to start or stop local ringback tone.
func Ringback(on bool) Event {
	e := newEvent(TypeRingback)
	e.On = on
	return e
}
