package call

import (
	"time"

	"github.com/google/uuid"

	"github.com/sebas/calltrack/internal/tracker/cause"
	"github.com/sebas/calltrack/internal/tracker/session"
)

// Connection is one call leg: local state plus the handle to its network
// session. The session handle is nil for a pending outgoing connection
// that has not been dialed yet.
//
// Connections are mutated only on the tracker's event loop; they carry no
// locks of their own.
type Connection struct {
	id        string
	slot      *Slot
	address   string
	direction Direction

	state      State
	videoState VideoState

	cause    cause.DisconnectCause
	causeSet bool

	sess session.Session

	emergency bool
	redialed  bool
	merged    bool

	createTime     time.Time
	connectTime    time.Time
	disconnectTime time.Time
}

// NewOutgoing creates a connection for a user-originated dial. The session
// handle stays nil until the dial request is actually issued.
func NewOutgoing(address string, v VideoState) *Connection {
	return &Connection{
		id:         "conn-" + uuid.New().String(),
		address:    address,
		direction:  DirectionOutgoing,
		state:      StateDialing,
		videoState: v,
		createTime: time.Now(),
	}
}

// NewIncoming creates a connection for a network-originated session.
func NewIncoming(sess session.Session, address string, v VideoState) *Connection {
	return &Connection{
		id:         "conn-" + uuid.New().String(),
		address:    address,
		direction:  DirectionIncoming,
		state:      StateAlerting,
		videoState: v,
		sess:       sess,
		createTime: time.Now(),
	}
}

// ID returns the connection's identifier.
func (c *Connection) ID() string { return c.id }

// Slot returns the slot this connection belongs to, or nil when detached.
func (c *Connection) Slot() *Slot { return c.slot }

// Address returns the remote address.
func (c *Connection) Address() string { return c.address }

// Direction returns the connection's direction.
func (c *Connection) Direction() Direction { return c.direction }

// IsIncoming reports whether the connection is mobile-terminated.
func (c *Connection) IsIncoming() bool { return c.direction == DirectionIncoming }

// State returns the per-leg state.
func (c *Connection) State() State { return c.state }

// VideoState returns the video bitmask.
func (c *Connection) VideoState() VideoState { return c.videoState }

// SetVideoState replaces the video bitmask.
func (c *Connection) SetVideoState(v VideoState) { c.videoState = v }

// Session returns the network session handle, or nil for a pending
// outgoing connection.
func (c *Connection) Session() session.Session { return c.sess }

// SetSession attaches the network session handle once dialing starts.
func (c *Connection) SetSession(s session.Session) { c.sess = s }

// Emergency reports whether the connection is an emergency call.
func (c *Connection) Emergency() bool { return c.emergency }

// SetEmergency marks the connection as an emergency call.
func (c *Connection) SetEmergency(v bool) { c.emergency = v }

// Redialed reports whether the one-shot silent redial was already used.
func (c *Connection) Redialed() bool { return c.redialed }

// MarkRedialed consumes the one-shot silent redial.
func (c *Connection) MarkRedialed() { c.redialed = true }

// MarkMerged records that the session reported a completed conference
// merge; a later termination is then classified as a merge, not a drop.
func (c *Connection) MarkMerged() { c.merged = true }

// WasMerged reports whether the session completed a conference merge.
func (c *Connection) WasMerged() bool { return c.merged }

// CreateTime returns when the connection was created.
func (c *Connection) CreateTime() time.Time { return c.createTime }

// ConnectTime returns when the connection went active, or zero.
func (c *Connection) ConnectTime() time.Time { return c.connectTime }

// DisconnectTime returns when the connection disconnected, or zero.
func (c *Connection) DisconnectTime() time.Time { return c.disconnectTime }

// NeverConnected reports whether the connection has zero connect time.
func (c *Connection) NeverConnected() bool { return c.connectTime.IsZero() }

// Cause returns the disconnect cause, or NotDisconnected.
func (c *Connection) Cause() cause.DisconnectCause {
	if !c.causeSet {
		return cause.NotDisconnected
	}
	return c.cause
}

// SetState moves the connection into a new state and recomputes the
// owning slot's aggregate state. Connect time is stamped on the first
// transition to Active.
func (c *Connection) SetState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if s == StateActive && c.connectTime.IsZero() {
		c.connectTime = time.Now()
	}
	if c.slot != nil {
		c.slot.recompute()
	}
}

// Disconnect terminates the connection locally with the given cause. The
// cause is set exactly once; later calls keep the first cause.
func (c *Connection) Disconnect(dc cause.DisconnectCause) {
	if !c.causeSet {
		c.cause = dc
		c.causeSet = true
		c.disconnectTime = time.Now()
	}
	c.SetState(StateDisconnected)
}
