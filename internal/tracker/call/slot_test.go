package call

import (
	"errors"
	"testing"

	"github.com/sebas/calltrack/internal/tracker/cause"
)

// checkMembership verifies the single-slot invariant: every connection in
// a slot points back at that slot, and no connection appears twice.
func checkMembership(t *testing.T, slots ...*Slot) {
	t.Helper()
	seen := make(map[*Connection]*Slot)
	for _, s := range slots {
		for _, c := range s.Connections() {
			if c.Slot() != s {
				t.Errorf("connection %s in %s slot has back-reference to %v", c.ID(), s.Role(), c.Slot())
			}
			if prev, ok := seen[c]; ok {
				t.Errorf("connection %s is a member of both %s and %s", c.ID(), prev.Role(), s.Role())
			}
			seen[c] = s
		}
	}
}

func TestSlotAggregateState(t *testing.T) {
	s := NewSlot(RoleForeground)
	if got := s.State(); got != StateIdle {
		t.Fatalf("empty slot state = %v, want Idle", got)
	}

	a := NewOutgoing("100", VideoNone)
	if err := s.Attach(a); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if got := s.State(); got != StateDialing {
		t.Errorf("state after attach = %v, want Dialing", got)
	}

	a.SetState(StateActive)
	if got := s.State(); got != StateActive {
		t.Errorf("state after SetState = %v, want Active", got)
	}

	a.Disconnect(cause.NormalRemote)
	if got := s.State(); got != StateDisconnected {
		t.Errorf("state after disconnect = %v, want Disconnected", got)
	}

	s.ClearDisconnected()
	if got := s.State(); got != StateIdle {
		t.Errorf("state after ClearDisconnected = %v, want Idle", got)
	}
	if a.Slot() != nil {
		t.Errorf("cleared connection still has slot back-reference")
	}
}

func TestSlotDrivingConnection(t *testing.T) {
	s := NewSlot(RoleForeground)
	a := NewOutgoing("100", VideoNone)
	b := NewOutgoing("200", VideoNone)
	_ = s.Attach(a)
	_ = s.Attach(b)

	a.SetState(StateActive)
	b.SetState(StateActive)
	if got := s.Driving(); got != b {
		t.Errorf("Driving() = %v, want most recently attached", got)
	}

	b.Disconnect(cause.NormalRemote)
	if got := s.Driving(); got != a {
		t.Errorf("Driving() after b disconnected = %v, want a", got)
	}
	if got := s.State(); got != StateActive {
		t.Errorf("aggregate with one live connection = %v, want Active", got)
	}
}

func TestSwitchWithIsItsOwnInverse(t *testing.T) {
	fg := NewSlot(RoleForeground)
	bg := NewSlot(RoleBackground)

	a := NewOutgoing("100", VideoNone)
	b := NewOutgoing("200", VideoNone)
	_ = fg.Attach(a)
	_ = bg.Attach(b)
	a.SetState(StateActive)
	b.SetState(StateHolding)

	fg.SwitchWith(bg)
	checkMembership(t, fg, bg)

	if got := fg.Driving(); got != b {
		t.Errorf("foreground driving after switch = %v, want b", got)
	}
	if got := fg.State(); got != StateHolding {
		t.Errorf("foreground state after switch = %v, want Holding", got)
	}
	if got := bg.State(); got != StateActive {
		t.Errorf("background state after switch = %v, want Active", got)
	}

	fg.SwitchWith(bg)
	checkMembership(t, fg, bg)

	if got := fg.Driving(); got != a {
		t.Errorf("foreground driving after double switch = %v, want a", got)
	}
	if got := fg.State(); got != StateActive {
		t.Errorf("foreground state after double switch = %v, want Active", got)
	}
	if got := bg.Driving(); got != b {
		t.Errorf("background driving after double switch = %v, want b", got)
	}
}

func TestSwitchWithEmptySlot(t *testing.T) {
	fg := NewSlot(RoleForeground)
	bg := NewSlot(RoleBackground)

	a := NewOutgoing("100", VideoNone)
	_ = fg.Attach(a)
	a.SetState(StateActive)

	fg.SwitchWith(bg)
	checkMembership(t, fg, bg)

	if !fg.IsIdle() {
		t.Errorf("foreground not idle after switching with empty slot")
	}
	if got := bg.State(); got != StateActive {
		t.Errorf("background state = %v, want Active", got)
	}
	if a.Slot() != bg {
		t.Errorf("connection back-reference = %v, want background", a.Slot())
	}
}

func TestMergeMovesAllConnections(t *testing.T) {
	fg := NewSlot(RoleForeground)
	bg := NewSlot(RoleBackground)

	a := NewOutgoing("100", VideoNone)
	b := NewOutgoing("200", VideoNone)
	_ = fg.Attach(a)
	_ = bg.Attach(b)
	a.SetState(StateActive)
	b.SetState(StateHolding)

	fg.Merge(bg, StateActive)
	checkMembership(t, fg, bg)

	if got := fg.Len(); got != 2 {
		t.Errorf("foreground Len() = %d, want 2", got)
	}
	if !bg.IsIdle() {
		t.Errorf("background not idle after merge")
	}
	for _, c := range fg.Connections() {
		if got := c.State(); got != StateActive {
			t.Errorf("connection %s state = %v, want Active", c.ID(), got)
		}
	}
}

func TestAttachRejectsDoubleMembership(t *testing.T) {
	fg := NewSlot(RoleForeground)
	bg := NewSlot(RoleBackground)

	a := NewOutgoing("100", VideoNone)
	_ = fg.Attach(a)

	err := bg.Attach(a)
	if !errors.Is(err, ErrAlreadyAttached) {
		t.Errorf("Attach() error = %v, want ErrAlreadyAttached", err)
	}

	var se *SlotError
	if !errors.As(err, &se) {
		t.Fatalf("Attach() error type = %T, want *SlotError", err)
	}
	if se.Role != RoleBackground {
		t.Errorf("SlotError.Role = %v, want background", se.Role)
	}
}

func TestDetachRequiresMembership(t *testing.T) {
	fg := NewSlot(RoleForeground)
	bg := NewSlot(RoleBackground)

	a := NewOutgoing("100", VideoNone)
	_ = fg.Attach(a)

	if err := bg.Detach(a); !errors.Is(err, ErrNotAttached) {
		t.Errorf("Detach() from wrong slot error = %v, want ErrNotAttached", err)
	}
	if err := fg.Detach(a); err != nil {
		t.Errorf("Detach() error = %v", err)
	}
	if a.Slot() != nil {
		t.Errorf("detached connection still has back-reference")
	}
}

func TestDisconnectCauseSetOnce(t *testing.T) {
	a := NewOutgoing("100", VideoNone)
	a.Disconnect(cause.Busy)
	a.Disconnect(cause.NormalRemote)
	if got := a.Cause(); got != cause.Busy {
		t.Errorf("Cause() = %v, want first cause Busy", got)
	}
}

func TestAttachWithState(t *testing.T) {
	ringing := NewSlot(RoleRinging)
	c := NewIncoming(nil, "300", VideoNone)
	if err := ringing.AttachWithState(c, StateWaiting); err != nil {
		t.Fatalf("AttachWithState() error = %v", err)
	}
	if got := ringing.State(); got != StateWaiting {
		t.Errorf("ringing state = %v, want Waiting", got)
	}
}
