package cause

import "github.com/sebas/calltrack/internal/tracker/session"

// RemapEntry rewrites one network reason code before translation.
// Carriers ship these to correct quirky codes from specific networks.
// An entry with Message "*" matches any message for its code.
type RemapEntry struct {
	Code    session.ReasonCode `json:"code"`
	Message string             `json:"message"`
	NewCode session.ReasonCode `json:"new_code"`
}

// RemapTable is an ordered list of carrier remap rules.
type RemapTable []RemapEntry

// Apply rewrites a reason through the table. Exact (code, message) matches
// win over wildcard-on-code matches regardless of table order.
func (t RemapTable) Apply(r session.Reason) session.ReasonCode {
	wildcard := r.Code
	matched := false
	for _, e := range t {
		if e.Code != r.Code {
			continue
		}
		if e.Message == r.Message {
			return e.NewCode
		}
		if e.Message == "*" && !matched {
			wildcard = e.NewCode
			matched = true
		}
	}
	return wildcard
}

// CallInfo summarizes the state of the connection at the moment its
// session terminated. All inputs to Translate; nothing else is consulted.
type CallInfo struct {
	// Incoming is true for mobile-terminated connections.
	Incoming bool
	// NeverConnected is true when the connection has zero connect time.
	NeverConnected bool
	// Dialing is true when the connection was still in dialing or
	// alerting state.
	Dialing bool
	// Merged is true when the session reported a completed conference
	// merge before terminating.
	Merged bool
}

// Translate maps a termination reason plus prior call state to a
// disconnect cause. Pure: same inputs always yield the same cause.
func Translate(r session.Reason, info CallInfo, remap RemapTable) DisconnectCause {
	// A leg that vanished because it was merged into a conference did not
	// fail; it succeeded.
	if info.Merged || r.Code == session.ReasonMergeCompleted {
		return Merged
	}

	code := remap.Apply(r)
	c := baseCause(code, info)

	// An incoming call that never connected is either missed or rejected,
	// never "remote hung up".
	if info.Incoming && info.NeverConnected {
		switch c {
		case NormalLocal, NormalRemote:
			return IncomingMissed
		default:
			return IncomingRejected
		}
	}

	return c
}

func baseCause(code session.ReasonCode, info CallInfo) DisconnectCause {
	switch code {
	case session.ReasonNone, session.ReasonNormal:
		return NormalRemote
	case session.ReasonLocalTerminated:
		return NormalLocal
	case session.ReasonLocalCallDecline:
		return IncomingRejected
	case session.ReasonRemoteTerminated:
		return NormalRemote
	case session.ReasonBusy:
		return Busy
	case session.ReasonCongestion:
		return Congestion
	case session.ReasonTimeout:
		return Timeout
	case session.ReasonSignalLost:
		return LostSignal
	case session.ReasonPowerOff:
		return PowerOff
	case session.ReasonLowBattery:
		if info.Dialing {
			return DialLowBattery
		}
		return LowBattery
	case session.ReasonServerError:
		return ServerError
	case session.ReasonServerUnreachable:
		return ServerUnreachable
	case session.ReasonDataDisabled:
		return DataDisabled
	case session.ReasonDataLimitReached:
		return DataLimitReached
	case session.ReasonEmergencyPreempted:
		return EmergencyPreempted
	case session.ReasonInvalidNumber:
		return InvalidNumber
	case session.ReasonUnreachable:
		return Unreachable
	default:
		return Error
	}
}
