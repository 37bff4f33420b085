// Package cause translates network session termination reasons into the
// device-wide disconnect cause taxonomy. Translation is a pure function so
// the mapping can be tested exhaustively.
package cause

import "fmt"

// DisconnectCause is the normalized reason a call ended, as surfaced to
// the telecom layer and recorded in call records.
type DisconnectCause int

const (
	// NotDisconnected means the call has not ended.
	NotDisconnected DisconnectCause = iota
	// NormalLocal means we hung up.
	NormalLocal
	// NormalRemote means the remote party hung up.
	NormalRemote
	// Busy means the remote party was busy.
	Busy
	// Congestion means the network refused the call under load.
	Congestion
	// IncomingMissed means an incoming call ended before it was answered,
	// with normal clearing.
	IncomingMissed
	// IncomingRejected means an incoming call was declined or failed
	// before it was answered.
	IncomingRejected
	// ServerError means the network service failed.
	ServerError
	// ServerUnreachable means the network service could not be reached.
	ServerUnreachable
	// Timeout means the network gave up waiting.
	Timeout
	// LostSignal means radio coverage was lost mid-call.
	LostSignal
	// PowerOff means the radio was switched off.
	PowerOff
	// LowBattery means an established call ended on critical battery.
	LowBattery
	// DialLowBattery means a call still being dialed ended on critical battery.
	DialLowBattery
	// Merged means the connection ended because it was absorbed into a
	// conference. Not a failure.
	Merged
	// DataDisabled means policy ended the call because mobile data was
	// switched off.
	DataDisabled
	// DataLimitReached means policy ended the call at the data limit.
	DataLimitReached
	// EmergencyPreempted means the call was torn down for an emergency call.
	EmergencyPreempted
	// InvalidNumber means the dialed address was rejected.
	InvalidNumber
	// Unreachable means the remote party could not be reached.
	Unreachable
	// Error is the catch-all for unclassified failures.
	Error
)

// String returns the string representation of the disconnect cause.
func (c DisconnectCause) String() string {
	switch c {
	case NotDisconnected:
		return "NotDisconnected"
	case NormalLocal:
		return "NormalLocal"
	case NormalRemote:
		return "NormalRemote"
	case Busy:
		return "Busy"
	case Congestion:
		return "Congestion"
	case IncomingMissed:
		return "IncomingMissed"
	case IncomingRejected:
		return "IncomingRejected"
	case ServerError:
		return "ServerError"
	case ServerUnreachable:
		return "ServerUnreachable"
	case Timeout:
		return "Timeout"
	case LostSignal:
		return "LostSignal"
	case PowerOff:
		return "PowerOff"
	case LowBattery:
		return "LowBattery"
	case DialLowBattery:
		return "DialLowBattery"
	case Merged:
		return "Merged"
	case DataDisabled:
		return "DataDisabled"
	case DataLimitReached:
		return "DataLimitReached"
	case EmergencyPreempted:
		return "EmergencyPreempted"
	case InvalidNumber:
		return "InvalidNumber"
	case Unreachable:
		return "Unreachable"
	case Error:
		return "Error"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}
