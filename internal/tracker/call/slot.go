package call

// Slot is a fixed-identity container for the connections of one call
// role. Aggregate state is derived from the connection set and recomputed
// synchronously after every mutation; it is never cached stale.
type Slot struct {
	role  Role
	conns []*Connection
	state State
}

// NewSlot creates an empty slot for the given role. The four tracker
// slots are created once at startup and live for the process lifetime.
func NewSlot(role Role) *Slot {
	return &Slot{role: role, state: StateIdle}
}

// Role returns the slot's role.
func (s *Slot) Role() Role { return s.role }

// State returns the aggregate state.
func (s *Slot) State() State { return s.state }

// IsIdle reports whether the slot has no connections.
func (s *Slot) IsIdle() bool { return len(s.conns) == 0 }

// HasLiveConnections reports whether any connection is not disconnected.
func (s *Slot) HasLiveConnections() bool {
	for _, c := range s.conns {
		if c.state.IsAlive() {
			return true
		}
	}
	return false
}

// Connections returns the connections in attach order. The returned slice
// is a copy; mutating it does not affect the slot.
func (s *Slot) Connections() []*Connection {
	out := make([]*Connection, len(s.conns))
	copy(out, s.conns)
	return out
}

// Len returns the number of connections in the slot.
func (s *Slot) Len() int { return len(s.conns) }

// Driving returns the connection whose state defines the slot's aggregate
// state: the most recently attached connection that is still alive, else
// nil.
func (s *Slot) Driving() *Connection {
	for i := len(s.conns) - 1; i >= 0; i-- {
		if s.conns[i].state.IsAlive() {
			return s.conns[i]
		}
	}
	return nil
}

// Attach adds a connection to the slot, keeping the connection's current
// state. A connection belongs to exactly one slot at a time.
func (s *Slot) Attach(c *Connection) error {
	if c.slot != nil {
		return &SlotError{Role: s.role, Op: "attach", Err: ErrAlreadyAttached}
	}
	s.conns = append(s.conns, c)
	c.slot = s
	s.recompute()
	return nil
}

// AttachWithState adds a connection and forces its state in one step.
func (s *Slot) AttachWithState(c *Connection, st State) error {
	if c.slot != nil {
		return &SlotError{Role: s.role, Op: "attach", Err: ErrAlreadyAttached}
	}
	c.state = st
	s.conns = append(s.conns, c)
	c.slot = s
	s.recompute()
	return nil
}

// Detach removes a connection from the slot.
func (s *Slot) Detach(c *Connection) error {
	if c.slot != s {
		return &SlotError{Role: s.role, Op: "detach", Err: ErrNotAttached}
	}
	for i, cc := range s.conns {
		if cc == c {
			s.conns = append(s.conns[:i], s.conns[i+1:]...)
			break
		}
	}
	c.slot = nil
	s.recompute()
	return nil
}

// ClearDisconnected drops every disconnected connection from the slot.
func (s *Slot) ClearDisconnected() {
	kept := s.conns[:0]
	for _, c := range s.conns {
		if c.state == StateDisconnected {
			c.slot = nil
			continue
		}
		kept = append(kept, c)
	}
	s.conns = kept
	s.recompute()
}

// SwitchWith atomically exchanges the connection sets and states of two
// slots. Implemented as a three-way rotation through a scratch slot so a
// listener observing either slot never sees both holding the same
// connection.
func (s *Slot) SwitchWith(o *Slot) {
	if s == o {
		return
	}
	scratch := &Slot{role: s.role}
	scratch.takeFrom(s)
	s.takeFrom(o)
	o.takeFrom(scratch)
}

// takeFrom moves the other slot's entire contents into this slot,
// leaving the other slot empty.
func (s *Slot) takeFrom(o *Slot) {
	s.conns = o.conns
	s.state = o.state
	for _, c := range s.conns {
		c.slot = s
	}
	o.conns = nil
	o.state = StateIdle
}

// Merge moves every connection of the other slot into this one and forces
// the aggregate to resultState. Used when a network-level conference merge
// succeeds: the held call's legs join the active call.
func (s *Slot) Merge(o *Slot, resultState State) {
	if s == o {
		return
	}
	for _, c := range o.conns {
		c.slot = s
		c.state = resultState
		s.conns = append(s.conns, c)
	}
	o.conns = nil
	o.state = StateIdle
	for _, c := range s.conns {
		if c.state.IsAlive() {
			c.state = resultState
		}
	}
	s.recompute()
}

// recompute derives the aggregate state from the connection set:
// Idle when empty; Disconnected when non-empty and all disconnected;
// otherwise the driving connection's state.
func (s *Slot) recompute() {
	if len(s.conns) == 0 {
		s.state = StateIdle
		return
	}
	if d := s.Driving(); d != nil {
		s.state = d.state
		return
	}
	s.state = StateDisconnected
}
