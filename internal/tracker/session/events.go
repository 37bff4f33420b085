package session

// Event is the closed set of notifications a provider can deliver.
// Consumers handle events with a single type switch; there are no
// optional callbacks to leave unimplemented.
type Event interface {
	// SessionID returns the ID of the session the event belongs to.
	SessionID() string

	isEvent()
}

// EventBase carries the fields common to every session event.
// Providers embed it when constructing events.
type EventBase struct {
	// ID of the originating session.
	ID string
}

// SessionID returns the ID of the session the event belongs to.
func (b EventBase) SessionID() string { return b.ID }

func (EventBase) isEvent() {}

// Incoming announces a new network-originated session. The tracker adopts
// the session and creates a connection for it.
type Incoming struct {
	EventBase
	Session  Session
	Address  string
	CallType CallType
}

// Progressing indicates the remote end is being alerted.
type Progressing struct{ EventBase }

// Started indicates the session is established (answered both ways).
type Started struct{ EventBase }

// Held indicates a hold request completed.
type Held struct{ EventBase }

// HoldFailed indicates a hold request was refused or failed.
type HoldFailed struct {
	EventBase
	Reason Reason
}

// Resumed indicates a resume request completed.
type Resumed struct{ EventBase }

// ResumeFailed indicates a resume request was refused or failed.
type ResumeFailed struct {
	EventBase
	Reason Reason
}

// Terminated indicates the session ended.
type Terminated struct {
	EventBase
	Reason Reason
}

// Merged indicates a conference merge completed; the session now hosts
// the multiparty call.
type Merged struct{ EventBase }

// MergeFailed indicates a conference merge was refused or failed.
type MergeFailed struct {
	EventBase
	Reason Reason
}

// Handover indicates the session moved between radio bearers.
type Handover struct {
	EventBase
	From   AccessTech
	To     AccessTech
	Failed bool
}

// MultipartyChanged indicates the session's conference role changed.
type MultipartyChanged struct {
	EventBase
	Multiparty bool
}

// SuppServiceNotice carries a supplementary-service notification
// (call forwarding, call waiting indications, and similar).
type SuppServiceNotice struct {
	EventBase
	Code    int
	Message string
}

// USSD carries an unstructured supplementary-service message.
type USSD struct {
	EventBase
	Message string
	// Expecting is true when the network expects a reply.
	Expecting bool
}
