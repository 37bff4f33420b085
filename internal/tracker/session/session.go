// Package session defines the boundary to the network call service.
//
// A Session is the handle to one in-progress network call. All session
// operations are fire-and-forget requests: the outcome arrives later as an
// Event on the provider's event channel, never as a synchronous result.
// The tracker owns the ordering by draining that channel on a single
// goroutine.
package session

import (
	"context"
	"errors"
)

// ErrFallbackRequired is returned by a Provider when the call cannot be
// carried on the packet path and must be redialed on the circuit-switched
// path. The tracker retries once through the FallbackDialer.
var ErrFallbackRequired = errors.New("circuit-switched fallback required")

// CallType selects the media composition of a call.
type CallType int

const (
	// CallTypeAudio is a voice-only call.
	CallTypeAudio CallType = iota
	// CallTypeVideo is a two-way audio+video call.
	CallTypeVideo
)

// String returns the string representation of the call type.
func (t CallType) String() string {
	switch t {
	case CallTypeAudio:
		return "audio"
	case CallTypeVideo:
		return "video"
	default:
		return "unknown"
	}
}

// AccessTech identifies the radio access the session is carried over.
type AccessTech int

const (
	// AccessTechUnknown means the network did not report the access technology.
	AccessTechUnknown AccessTech = iota
	// AccessTechLTE is a cellular packet bearer.
	AccessTechLTE
	// AccessTechWiFi is a WLAN (IWLAN) bearer.
	AccessTechWiFi
)

// String returns the string representation of the access technology.
func (t AccessTech) String() string {
	switch t {
	case AccessTechLTE:
		return "LTE"
	case AccessTechWiFi:
		return "WiFi"
	default:
		return "unknown"
	}
}

// CLIRMode controls caller line identification restriction on dial.
type CLIRMode int

const (
	// CLIRDefault uses the subscription default.
	CLIRDefault CLIRMode = iota
	// CLIRInvocation suppresses the caller identity.
	CLIRInvocation
	// CLIRSuppression forces the caller identity to be presented.
	// Emergency dialing always uses this mode.
	CLIRSuppression
)

// Profile carries the per-call parameters for an outgoing dial or an accept.
type Profile struct {
	CallType  CallType
	CLIR      CLIRMode
	Emergency bool

	// Extras are opaque provider-specific parameters.
	Extras map[string]string
}

// Capabilities reports what media renegotiations the session supports.
type Capabilities struct {
	// DowngradeLocal is true when we may renegotiate video down to audio.
	DowngradeLocal bool
	// DowngradeRemote is true when the peer advertised downgrade support.
	DowngradeRemote bool
}

// CanDowngrade reports whether a video-to-audio downgrade is possible at all.
func (c Capabilities) CanDowngrade() bool {
	return c.DowngradeLocal || c.DowngradeRemote
}

// Session is the handle to one network call session.
//
// Hold, Resume, Merge, Accept and Reject are requests: a nil return means
// the request was handed to the network, not that it succeeded. Success or
// failure is delivered as a Held/HoldFailed/Resumed/... event carrying this
// session's ID.
type Session interface {
	// ID returns the stable identifier for this session.
	ID() string

	// RemoteAddress returns the peer address, if known.
	RemoteAddress() string

	// AccessTech returns the current radio bearer for this session.
	AccessTech() AccessTech

	// Capabilities returns the renegotiation capabilities last advertised.
	Capabilities() Capabilities

	// IsMultiparty reports whether this session is a conference host.
	IsMultiparty() bool

	// Hold requests that the session be placed on hold.
	Hold(ctx context.Context) error

	// Resume requests that a held session be resumed.
	Resume(ctx context.Context) error

	// Terminate requests teardown with the given reason.
	Terminate(ctx context.Context, code ReasonCode) error

	// Merge requests a network-level conference merge with another session.
	Merge(ctx context.Context, other Session) error

	// Accept answers an incoming session with the given media type.
	Accept(ctx context.Context, t CallType) error

	// Reject declines an incoming session.
	Reject(ctx context.Context, code ReasonCode) error

	// DowngradeToAudio renegotiates an active video session down to audio.
	DowngradeToAudio(ctx context.Context) error

	// PauseVideo pauses the video stream without renegotiating it away.
	PauseVideo(ctx context.Context) error

	// ResumeVideo resumes a paused video stream.
	ResumeVideo(ctx context.Context) error
}

// Provider creates outgoing sessions and is the source of all session events.
type Provider interface {
	// Dial creates a session toward callee. The session is returned
	// immediately; progress arrives as Progressing/Started events.
	Dial(ctx context.Context, profile Profile, callee string) (Session, error)

	// Events returns the channel carrying every session event, in network
	// delivery order. The channel is closed when the provider shuts down.
	Events() <-chan Event
}

// FallbackDialer retries a failed packet call on the circuit-switched path.
// Used exactly once per call for silent redial; never chained.
type FallbackDialer interface {
	DialFallback(ctx context.Context, profile Profile, callee string) error
}
