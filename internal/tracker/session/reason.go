package session

import "fmt"

// ReasonCode identifies why a network call session ended or why a
// session-level request failed. These are the wire-level codes reported
// by the network stack, before translation to a device disconnect cause.
type ReasonCode int

const (
	// ReasonNone indicates no reason was supplied.
	ReasonNone ReasonCode = iota
	// ReasonNormal indicates normal call clearing.
	ReasonNormal
	// ReasonLocalTerminated indicates we requested the termination.
	ReasonLocalTerminated
	// ReasonLocalCallDecline indicates the local user declined an incoming call.
	ReasonLocalCallDecline
	// ReasonRemoteTerminated indicates the remote party hung up.
	ReasonRemoteTerminated
	// ReasonBusy indicates the remote party was busy.
	ReasonBusy
	// ReasonCongestion indicates network congestion.
	ReasonCongestion
	// ReasonTimeout indicates the network gave up waiting.
	ReasonTimeout
	// ReasonSignalLost indicates radio signal was lost mid-call.
	ReasonSignalLost
	// ReasonPowerOff indicates the radio was powered off.
	ReasonPowerOff
	// ReasonLowBattery indicates the call ended because battery was critically low.
	ReasonLowBattery
	// ReasonServerError indicates a failure inside the network service.
	ReasonServerError
	// ReasonServerUnreachable indicates the network service could not be reached.
	ReasonServerUnreachable
	// ReasonFallbackRequired indicates the call must be retried on the
	// circuit-switched path. Not a terminal failure.
	ReasonFallbackRequired
	// ReasonMergeCompleted indicates the session ended because it was
	// absorbed into a conference.
	ReasonMergeCompleted
	// ReasonDataDisabled indicates policy terminated the call because
	// mobile data was switched off.
	ReasonDataDisabled
	// ReasonDataLimitReached indicates policy terminated the call because
	// the data limit was hit.
	ReasonDataLimitReached
	// ReasonEmergencyPreempted indicates the call was torn down to make
	// room for an emergency call.
	ReasonEmergencyPreempted
	// ReasonInvalidNumber indicates the dialed address was rejected.
	ReasonInvalidNumber
	// ReasonUnreachable indicates the remote party could not be reached.
	ReasonUnreachable
)

// String returns the string representation of the reason code.
func (c ReasonCode) String() string {
	switch c {
	case ReasonNone:
		return "None"
	case ReasonNormal:
		return "Normal"
	case ReasonLocalTerminated:
		return "LocalTerminated"
	case ReasonLocalCallDecline:
		return "LocalCallDecline"
	case ReasonRemoteTerminated:
		return "RemoteTerminated"
	case ReasonBusy:
		return "Busy"
	case ReasonCongestion:
		return "Congestion"
	case ReasonTimeout:
		return "Timeout"
	case ReasonSignalLost:
		return "SignalLost"
	case ReasonPowerOff:
		return "PowerOff"
	case ReasonLowBattery:
		return "LowBattery"
	case ReasonServerError:
		return "ServerError"
	case ReasonServerUnreachable:
		return "ServerUnreachable"
	case ReasonFallbackRequired:
		return "FallbackRequired"
	case ReasonMergeCompleted:
		return "MergeCompleted"
	case ReasonDataDisabled:
		return "DataDisabled"
	case ReasonDataLimitReached:
		return "DataLimitReached"
	case ReasonEmergencyPreempted:
		return "EmergencyPreempted"
	case ReasonInvalidNumber:
		return "InvalidNumber"
	case ReasonUnreachable:
		return "Unreachable"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// Reason carries a termination or failure reason from the network stack.
// Message is free-form text supplied by the network and is matched against
// carrier remap rules before cause translation.
type Reason struct {
	Code    ReasonCode
	Message string
}

// String returns "Code" or "Code (message)".
func (r Reason) String() string {
	if r.Message == "" {
		return r.Code.String()
	}
	return fmt.Sprintf("%s (%s)", r.Code, r.Message)
}
