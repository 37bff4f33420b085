package cause

import (
	"testing"

	"github.com/sebas/calltrack/internal/tracker/session"
)

func TestTranslateBaseTable(t *testing.T) {
	tests := []struct {
		name string
		code session.ReasonCode
		info CallInfo
		want DisconnectCause
	}{
		{"normal remote", session.ReasonRemoteTerminated, CallInfo{}, NormalRemote},
		{"local hangup", session.ReasonLocalTerminated, CallInfo{}, NormalLocal},
		{"busy", session.ReasonBusy, CallInfo{}, Busy},
		{"congestion", session.ReasonCongestion, CallInfo{}, Congestion},
		{"timeout", session.ReasonTimeout, CallInfo{}, Timeout},
		{"signal lost", session.ReasonSignalLost, CallInfo{}, LostSignal},
		{"power off", session.ReasonPowerOff, CallInfo{}, PowerOff},
		{"server error", session.ReasonServerError, CallInfo{}, ServerError},
		{"server unreachable", session.ReasonServerUnreachable, CallInfo{}, ServerUnreachable},
		{"data disabled", session.ReasonDataDisabled, CallInfo{}, DataDisabled},
		{"data limit", session.ReasonDataLimitReached, CallInfo{}, DataLimitReached},
		{"invalid number", session.ReasonInvalidNumber, CallInfo{}, InvalidNumber},
		{"unreachable", session.ReasonUnreachable, CallInfo{}, Unreachable},
		{"unclassified", session.ReasonFallbackRequired, CallInfo{}, Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Translate(session.Reason{Code: tt.code}, tt.info, nil)
			if got != tt.want {
				t.Errorf("Translate(%v) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestTranslateLowBatterySplitByDialing(t *testing.T) {
	r := session.Reason{Code: session.ReasonLowBattery}

	if got := Translate(r, CallInfo{Dialing: true}, nil); got != DialLowBattery {
		t.Errorf("low battery while dialing = %v, want DialLowBattery", got)
	}
	if got := Translate(r, CallInfo{}, nil); got != LowBattery {
		t.Errorf("low battery while connected = %v, want LowBattery", got)
	}
}

func TestTranslateIncomingNeverConnected(t *testing.T) {
	info := CallInfo{Incoming: true, NeverConnected: true, Dialing: false}

	// Normal clearing on an unanswered incoming call is a missed call.
	got := Translate(session.Reason{Code: session.ReasonNormal}, info, nil)
	if got != IncomingMissed {
		t.Errorf("normal termination = %v, want IncomingMissed", got)
	}

	// Any other cause means the call was rejected.
	got = Translate(session.Reason{Code: session.ReasonLocalCallDecline}, info, nil)
	if got != IncomingRejected {
		t.Errorf("local decline = %v, want IncomingRejected", got)
	}
	got = Translate(session.Reason{Code: session.ReasonBusy}, info, nil)
	if got != IncomingRejected {
		t.Errorf("busy on unanswered incoming = %v, want IncomingRejected", got)
	}
}

func TestTranslateMergedIsNotADisconnect(t *testing.T) {
	got := Translate(session.Reason{Code: session.ReasonNormal}, CallInfo{Merged: true}, nil)
	if got != Merged {
		t.Errorf("merged connection = %v, want Merged", got)
	}
	got = Translate(session.Reason{Code: session.ReasonMergeCompleted}, CallInfo{}, nil)
	if got != Merged {
		t.Errorf("merge-completed reason = %v, want Merged", got)
	}
}

func TestRemapExactBeatsWildcard(t *testing.T) {
	remap := RemapTable{
		{Code: session.ReasonServerError, Message: "*", NewCode: session.ReasonCongestion},
		{Code: session.ReasonServerError, Message: "q.850;cause=34", NewCode: session.ReasonBusy},
	}

	// Exact (code, message) match wins even though the wildcard comes first.
	r := session.Reason{Code: session.ReasonServerError, Message: "q.850;cause=34"}
	if got := Translate(r, CallInfo{}, remap); got != Busy {
		t.Errorf("exact remap = %v, want Busy", got)
	}

	// Any other message falls through to the wildcard.
	r = session.Reason{Code: session.ReasonServerError, Message: "other"}
	if got := Translate(r, CallInfo{}, remap); got != Congestion {
		t.Errorf("wildcard remap = %v, want Congestion", got)
	}

	// Unrelated codes are untouched.
	r = session.Reason{Code: session.ReasonBusy}
	if got := Translate(r, CallInfo{}, remap); got != Busy {
		t.Errorf("unmapped code = %v, want Busy", got)
	}
}

func TestTranslateIsDeterministic(t *testing.T) {
	remap := RemapTable{
		{Code: session.ReasonTimeout, Message: "*", NewCode: session.ReasonUnreachable},
	}
	r := session.Reason{Code: session.ReasonTimeout, Message: "no answer"}
	info := CallInfo{Incoming: true, NeverConnected: true}

	first := Translate(r, info, remap)
	for i := 0; i < 100; i++ {
		if got := Translate(r, info, remap); got != first {
			t.Fatalf("Translate() not deterministic: %v then %v", first, got)
		}
	}
	if first != IncomingRejected {
		t.Errorf("Translate() = %v, want IncomingRejected", first)
	}
}
