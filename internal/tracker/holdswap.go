package tracker

import (
	"fmt"

	"github.com/sebas/calltrack/internal/tracker/call"
	"github.com/sebas/calltrack/internal/tracker/session"
)

// HoldSwapState is the state of the hold/swap coordinator. The coordinator
// serializes hold, resume, swap and answer-waiting operations: at most one
// is outstanding at a time, and every state other than Inactive names the
// operation currently in flight.
type HoldSwapState int

const (
	// HoldSwapInactive means no hold or resume request is outstanding.
	HoldSwapInactive HoldSwapState = iota
	// PendingSingleHold means the active call is being held with no
	// follow-up action.
	PendingSingleHold
	// PendingSingleUnhold means the held call is being resumed with no
	// active call to swap with.
	PendingSingleUnhold
	// SwappingActiveAndHeld means the active call is being held and the
	// held call will be resumed once the hold completes.
	SwappingActiveAndHeld
	// HoldingToAnswerIncoming means the active call is being held so a
	// waiting incoming call can be answered.
	HoldingToAnswerIncoming
	// PendingResumeAfterFailure means a swap went wrong and the original
	// active call is being resumed to restore the pre-swap arrangement.
	PendingResumeAfterFailure
	// HoldingToDialOutgoing means the active call is being held so a
	// staged outgoing call can be dialed.
	HoldingToDialOutgoing
)

// String returns the string representation of the coordinator state.
func (s HoldSwapState) String() string {
	switch s {
	case HoldSwapInactive:
		return "Inactive"
	case PendingSingleHold:
		return "PendingSingleHold"
	case PendingSingleUnhold:
		return "PendingSingleUnhold"
	case SwappingActiveAndHeld:
		return "SwappingActiveAndHeld"
	case HoldingToAnswerIncoming:
		return "HoldingToAnswerIncoming"
	case PendingResumeAfterFailure:
		return "PendingResumeAfterFailure"
	case HoldingToDialOutgoing:
		return "HoldingToDialOutgoing"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// validHoldSwapTransitions maps each state to the states it may move to.
// Every non-Inactive state resolves only to Inactive, except a swap, which
// may degrade into a recovery resume.
var validHoldSwapTransitions = map[HoldSwapState][]HoldSwapState{
	HoldSwapInactive: {
		PendingSingleHold,
		PendingSingleUnhold,
		SwappingActiveAndHeld,
		HoldingToAnswerIncoming,
		HoldingToDialOutgoing,
	},
	PendingSingleHold:         {HoldSwapInactive},
	PendingSingleUnhold:       {HoldSwapInactive},
	SwappingActiveAndHeld:     {HoldSwapInactive, PendingResumeAfterFailure},
	HoldingToAnswerIncoming:   {HoldSwapInactive},
	HoldingToDialOutgoing:     {HoldSwapInactive},
	PendingResumeAfterFailure: {HoldSwapInactive},
}

func (s HoldSwapState) canTransition(to HoldSwapState) bool {
	for _, v := range validHoldSwapTransitions[s] {
		if v == to {
			return true
		}
	}
	return false
}

// holdSwap is the coordinator's bookkeeping. All fields except state are
// touched only on the event loop; state is additionally readable from
// other goroutines through HoldSwapState, hence the guard in the tracker.
type holdSwap struct {
	state HoldSwapState

	// holdTarget is the session the outstanding hold request was issued
	// on. Used to recognize when that call terminates before the hold
	// resolves.
	holdTarget string

	// expectedResume is the session expected to report resumed. Set for
	// swap, unhold and recovery-resume operations.
	expectedResume string

	// pendingAnswer is the waiting connection to accept once the hold
	// completes.
	pendingAnswer *call.Connection
	answerType    session.CallType

	// pendingDial is the staged outgoing connection to dial once the
	// hold completes.
	pendingDial *call.Connection
	dialProfile session.Profile
}

// HoldSwapState returns the coordinator state. Safe to call from any
// goroutine.
func (t *Tracker) HoldSwapState() HoldSwapState {
	t.hsMu.Lock()
	defer t.hsMu.Unlock()
	return t.hs.state
}

// setHoldSwapState moves the coordinator to a new state, logging any
// transition outside the expected set. Runs on the event loop.
func (t *Tracker) setHoldSwapState(to HoldSwapState) {
	t.hsMu.Lock()
	from := t.hs.state
	t.hs.state = to
	t.hsMu.Unlock()

	if from == to {
		return
	}
	if !from.canTransition(to) {
		t.logger.Warn("[HoldSwap] Unexpected transition", "from", from.String(), "to", to.String())
	} else {
		t.logger.Debug("[HoldSwap] Transition", "from", from.String(), "to", to.String())
	}
}

// resetHoldSwap clears all coordinator bookkeeping and returns to Inactive.
func (t *Tracker) resetHoldSwap() {
	t.hs.holdTarget = ""
	t.hs.expectedResume = ""
	t.hs.pendingAnswer = nil
	t.hs.pendingDial = nil
	t.setHoldSwapState(HoldSwapInactive)
}

// holdActiveCall holds the foreground call. When the background is
// occupied this is a swap: the held call is resumed once the hold
// completes. The foreground/background switch happens immediately so slot
// roles already reflect the intended arrangement; it is rolled back on
// failure.
func (t *Tracker) holdActiveCall() error {
	if t.HoldSwapState() != HoldSwapInactive {
		return callErr("hold", "", ErrHoldInProgress)
	}
	active := t.foreground.Driving()
	if active == nil || active.Session() == nil || active.State() != call.StateActive {
		return callErr("hold", "", ErrNoActiveCall)
	}
	held := t.background.Driving()

	if err := active.Session().Hold(t.runCtx); err != nil {
		return callErr("hold", active.Address(), err)
	}

	t.hs.holdTarget = active.Session().ID()
	if held != nil && held.Session() != nil {
		t.hs.expectedResume = held.Session().ID()
		t.setHoldSwapState(SwappingActiveAndHeld)
	} else {
		t.setHoldSwapState(PendingSingleHold)
	}

	t.foreground.SwitchWith(t.background)
	t.publishSlotStates()
	return nil
}

// unholdHeldCall resumes the background call. With an active foreground
// call this is a swap and is routed through holdActiveCall. A background
// call whose session already terminated is cleaned up without issuing a
// resume and without swapping roles.
func (t *Tracker) unholdHeldCall() error {
	if t.HoldSwapState() != HoldSwapInactive {
		return callErr("unhold", "", ErrHoldInProgress)
	}
	if t.foreground.HasLiveConnections() {
		return t.holdActiveCall()
	}
	held := t.background.Driving()
	if held == nil {
		t.background.ClearDisconnected()
		return callErr("unhold", "", ErrNoHeldCall)
	}
	if held.Session() == nil {
		return callErr("unhold", held.Address(), ErrNoHeldCall)
	}

	if err := held.Session().Resume(t.runCtx); err != nil {
		return callErr("unhold", held.Address(), err)
	}

	t.hs.expectedResume = held.Session().ID()
	t.setHoldSwapState(PendingSingleUnhold)

	t.foreground.SwitchWith(t.background)
	t.publishSlotStates()
	return nil
}

// holdActiveCallForWaitingCall holds the foreground call so the waiting
// connection can be accepted once the hold completes. The caller has
// already validated that the background is free.
func (t *Tracker) holdActiveCallForWaitingCall(waiting *call.Connection, answerType session.CallType) error {
	active := t.foreground.Driving()
	if active == nil || active.Session() == nil {
		return callErr("answer", "", ErrNoActiveCall)
	}
	if err := active.Session().Hold(t.runCtx); err != nil {
		return callErr("answer", waiting.Address(), err)
	}

	t.hs.holdTarget = active.Session().ID()
	t.hs.pendingAnswer = waiting
	t.hs.answerType = answerType
	t.setHoldSwapState(HoldingToAnswerIncoming)

	t.foreground.SwitchWith(t.background)
	t.publishSlotStates()
	return nil
}

// holdActiveCallForPendingMO holds the foreground call so the staged
// outgoing connection can be dialed once the hold completes.
func (t *Tracker) holdActiveCallForPendingMO(pending *call.Connection, profile session.Profile) error {
	active := t.foreground.Driving()
	if active == nil || active.Session() == nil {
		return callErr("dial", pending.Address(), ErrNoActiveCall)
	}
	if err := active.Session().Hold(t.runCtx); err != nil {
		return callErr("dial", pending.Address(), err)
	}

	t.hs.holdTarget = active.Session().ID()
	t.hs.pendingDial = pending
	t.hs.dialProfile = profile
	t.setHoldSwapState(HoldingToDialOutgoing)

	t.foreground.SwitchWith(t.background)
	t.publishSlotStates()
	return nil
}

// onHeld runs the follow-up action for a completed hold: resume the other
// call, accept the waiting call, or dial the staged outgoing call. With
// no follow-up the coordinator just returns to Inactive.
func (t *Tracker) onHeld() {
	switch t.HoldSwapState() {
	case SwappingActiveAndHeld:
		target := t.connBySession(t.hs.expectedResume)
		if target == nil || !target.State().IsAlive() || target.Session() == nil {
			// The call we meant to resume terminated before the hold
			// completed. Undo the switch and give up.
			t.foreground.SwitchWith(t.background)
			t.resetHoldSwap()
			t.publishSlotStates()
			return
		}
		if err := target.Session().Resume(t.runCtx); err != nil {
			t.logger.Warn("[HoldSwap] Resume request failed", "session_id", t.hs.expectedResume, "error", err)
			t.foreground.SwitchWith(t.background)
			t.resetHoldSwap()
			t.publishSlotStates()
			return
		}
		// Stay in SwappingActiveAndHeld until resumed/resume-failed.

	case HoldingToAnswerIncoming:
		waiting := t.hs.pendingAnswer
		answerType := t.hs.answerType
		t.resetHoldSwap()
		if waiting == nil || !waiting.State().IsAlive() || waiting.Session() == nil {
			return
		}
		t.acceptNow(waiting, answerType)

	case HoldingToDialOutgoing:
		pending := t.hs.pendingDial
		profile := t.hs.dialProfile
		t.resetHoldSwap()
		if pending == nil {
			// Hung up while the hold was in flight.
			return
		}
		t.dialStaged(pending, profile)

	case PendingSingleHold:
		t.resetHoldSwap()

	default:
		// Network-initiated hold, nothing outstanding.
	}
}

// onHoldFailed rolls back the anticipatory switch and either abandons the
// pending action or, when the hold failed because the call already
// disconnected (or the pending call is an emergency), pushes through.
func (t *Tracker) onHoldFailed(conn *call.Connection, reason session.Reason) {
	state := t.HoldSwapState()
	if state == HoldSwapInactive {
		return
	}
	t.logger.Warn("[HoldSwap] Hold failed",
		"state", state.String(),
		"reason", reason.Code.String(),
		"message", reason.Message,
	)

	t.foreground.SwitchWith(t.background)

	switch state {
	case HoldingToDialOutgoing:
		pending := t.hs.pendingDial
		profile := t.hs.dialProfile
		if pending == nil {
			t.resetHoldSwap()
			break
		}
		if conn == nil || !conn.State().IsAlive() {
			// Hold failed because the call died. The slot is free, dial.
			t.resetHoldSwap()
			t.dialStaged(pending, profile)
			break
		}
		if pending.Emergency() && conn.Session() != nil {
			// An emergency call does not yield. Force the active call
			// down; its termination completes the pending dial.
			_ = conn.Session().Terminate(t.runCtx, session.ReasonEmergencyPreempted)
			conn.SetState(call.StateDisconnecting)
			break
		}
		t.destroyPending(pending)
		t.resetHoldSwap()
		t.notify(failedOp("dial"))

	case HoldingToAnswerIncoming:
		// Abandon the accept attempt; the incoming call keeps ringing.
		t.resetHoldSwap()
		t.notify(failedOp("answer"))

	default:
		t.resetHoldSwap()
		t.notify(failedOp("hold"))
	}

	t.publishSlotStates()
}

// onResumed resolves a pending resume. A resume reported for a session
// other than the expected one means the network restored the wrong call;
// the anticipatory switch is rolled back so roles match reality.
func (t *Tracker) onResumed(conn *call.Connection) {
	switch t.HoldSwapState() {
	case PendingSingleUnhold, SwappingActiveAndHeld, PendingResumeAfterFailure:
		if conn.Session() != nil && conn.Session().ID() != t.hs.expectedResume {
			t.logger.Warn("[HoldSwap] Unexpected session resumed",
				"session_id", conn.Session().ID(),
				"expected", t.hs.expectedResume,
			)
			t.foreground.SwitchWith(t.background)
		}
		t.resetHoldSwap()
		t.publishSlotStates()
	default:
	}
}

// onResumeFailed mirrors onHoldFailed. A failed resume during a swap
// leaves both calls held; the original active call is resumed to restore
// the pre-swap arrangement.
func (t *Tracker) onResumeFailed(reason session.Reason) {
	state := t.HoldSwapState()
	if state == HoldSwapInactive {
		return
	}
	t.logger.Warn("[HoldSwap] Resume failed",
		"state", state.String(),
		"reason", reason.Code.String(),
		"message", reason.Message,
	)

	switch state {
	case SwappingActiveAndHeld:
		t.foreground.SwitchWith(t.background)
		orig := t.connBySession(t.hs.holdTarget)
		if orig != nil && orig.State().IsAlive() && orig.Session() != nil {
			if err := orig.Session().Resume(t.runCtx); err == nil {
				t.hs.expectedResume = t.hs.holdTarget
				t.setHoldSwapState(PendingResumeAfterFailure)
				t.publishSlotStates()
				return
			}
		}
		t.resetHoldSwap()

	case PendingSingleUnhold:
		t.foreground.SwitchWith(t.background)
		t.resetHoldSwap()

	default:
		t.resetHoldSwap()
	}

	t.notify(failedOp("resume"))
	t.publishSlotStates()
}

// holdSwapOnTerminated lets the coordinator recover when a call involved
// in the outstanding operation terminates before the operation resolves.
func (t *Tracker) holdSwapOnTerminated(sessionID string) {
	state := t.HoldSwapState()
	if state == HoldSwapInactive {
		return
	}

	switch {
	case state == SwappingActiveAndHeld && sessionID == t.hs.expectedResume:
		// The held call died before the hold completed. Undo the switch;
		// the hold resolves later with no follow-up.
		t.foreground.SwitchWith(t.background)
		t.resetHoldSwap()
		t.publishSlotStates()

	case state == HoldingToAnswerIncoming && t.hs.pendingAnswer != nil &&
		t.hs.pendingAnswer.Session() != nil && t.hs.pendingAnswer.Session().ID() == sessionID:
		// The waiting call gave up; nothing to answer anymore.
		t.hs.pendingAnswer = nil

	case sessionID == t.hs.holdTarget:
		// The call we were holding terminated. Any pending action can
		// proceed immediately; the hold will never resolve.
		pending := t.hs.pendingDial
		profile := t.hs.dialProfile
		waiting := t.hs.pendingAnswer
		answerType := t.hs.answerType
		prev := state
		if prev == SwappingActiveAndHeld {
			// The swap's hold half died. The anticipatory switch already
			// put the held call in the foreground, so recover it with a
			// direct resume instead of leaving it stranded on hold.
			target := t.connBySession(t.hs.expectedResume)
			if target != nil && target.State().IsAlive() && target.Session() != nil {
				if err := target.Session().Resume(t.runCtx); err == nil {
					t.hs.holdTarget = t.hs.expectedResume
					t.setHoldSwapState(PendingResumeAfterFailure)
					t.publishSlotStates()
					return
				}
			}
			// Cannot resume; undo the switch so roles match reality.
			t.foreground.SwitchWith(t.background)
			t.resetHoldSwap()
			t.publishSlotStates()
			return
		}
		t.resetHoldSwap()
		switch prev {
		case HoldingToDialOutgoing:
			if pending != nil {
				t.dialStaged(pending, profile)
			}
		case HoldingToAnswerIncoming:
			if waiting != nil && waiting.State().IsAlive() && waiting.Session() != nil {
				t.acceptNow(waiting, answerType)
			}
		}
		t.publishSlotStates()
	}
}
