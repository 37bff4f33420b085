// Package tracker is the call tracker core: it owns the four call slots,
// serializes every user request and session event onto one loop, and
// coordinates hold/swap operations so at most one is outstanding.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sebas/calltrack/internal/tracker/call"
	"github.com/sebas/calltrack/internal/tracker/carrier"
	"github.com/sebas/calltrack/internal/tracker/cause"
	"github.com/sebas/calltrack/internal/tracker/events"
	"github.com/sebas/calltrack/internal/tracker/session"
	"github.com/sebas/calltrack/internal/tracker/store"
)

// cleanupDelay lets a just-disconnected connection linger briefly so
// observers can read its final state before the slot is cleared.
const cleanupDelay = 500 * time.Millisecond

// command is one user operation posted onto the event loop.
type command struct {
	fn    func() error
	reply chan error
}

// Tracker drives the call slots. All mutation happens on the Run loop;
// the exported operations post onto it and wait for the reply.
type Tracker struct {
	provider session.Provider
	fallback session.FallbackDialer
	carrier  *carrier.Config
	notifier events.Publisher
	records  store.Repository
	logger   *slog.Logger

	ringing    *call.Slot
	foreground *call.Slot
	background *call.Slot
	handover   *call.Slot

	// conns indexes every live connection by ID; sessions maps a session
	// ID back to its connection for event dispatch.
	conns    map[string]*call.Connection
	sessions map[string]*call.Connection

	// pendingMO is the staged outgoing connection awaiting a hold, at
	// most one device-wide.
	pendingMO *call.Connection

	hs   holdSwap
	hsMu sync.Mutex

	dataEnabled  bool
	pausedByData map[string]bool

	phoneState    events.PhoneState
	lastSlotState map[call.Role]call.State

	runCtx context.Context
	cmds   chan command
	done   chan struct{}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithFallbackDialer sets the circuit-switched fallback dialer used for
// the one-shot silent redial.
func WithFallbackDialer(d session.FallbackDialer) Option {
	return func(t *Tracker) { t.fallback = d }
}

// WithCarrierConfig sets the initial carrier configuration bundle.
func WithCarrierConfig(c *carrier.Config) Option {
	return func(t *Tracker) {
		if c != nil {
			t.carrier = c
		}
	}
}

// WithPublisher sets the notification publisher.
func WithPublisher(p events.Publisher) Option {
	return func(t *Tracker) {
		if p != nil {
			t.notifier = p
		}
	}
}

// WithRecords sets the call record repository.
func WithRecords(r store.Repository) Option {
	return func(t *Tracker) {
		if r != nil {
			t.records = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates a tracker around a session provider. Run must be called
// before any operation is accepted.
func New(provider session.Provider, opts ...Option) *Tracker {
	t := &Tracker{
		provider:      provider,
		carrier:       carrier.Default(),
		notifier:      events.NewNoopPublisher(),
		records:       store.NewMemoryRepository(),
		logger:        slog.Default(),
		ringing:       call.NewSlot(call.RoleRinging),
		foreground:    call.NewSlot(call.RoleForeground),
		background:    call.NewSlot(call.RoleBackground),
		handover:      call.NewSlot(call.RoleHandover),
		conns:         make(map[string]*call.Connection),
		sessions:      make(map[string]*call.Connection),
		dataEnabled:   true,
		pausedByData:  make(map[string]bool),
		lastSlotState: make(map[call.Role]call.State),
		runCtx:        context.Background(),
		cmds:          make(chan command),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run consumes user commands and session events until ctx is canceled or
// the provider's event channel closes. It must run on exactly one
// goroutine; it is the only goroutine that mutates tracker state.
func (t *Tracker) Run(ctx context.Context) error {
	t.runCtx = ctx
	defer close(t.done)

	evs := t.provider.Events()
	t.logger.Info("[Tracker] Started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-t.cmds:
			cmd.reply <- cmd.fn()
		case e, ok := <-evs:
			if !ok {
				t.logger.Info("[Tracker] Session provider closed")
				return nil
			}
			t.handleSessionEvent(e)
		}
	}
}

// exec posts fn onto the event loop and waits for its result.
func (t *Tracker) exec(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case t.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrTrackerStopped
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn onto the event loop without waiting. Used by deferred
// cleanup; dropped if the tracker already stopped.
func (t *Tracker) post(fn func()) {
	cmd := command{
		fn:    func() error { fn(); return nil },
		reply: make(chan error, 1),
	}
	select {
	case t.cmds <- cmd:
	case <-t.done:
	}
}

// DialRequest carries the parameters of an outgoing call.
type DialRequest struct {
	Address   string
	CallType  session.CallType
	CLIR      session.CLIRMode
	Emergency bool
}

// Dial places an outgoing call and returns the new connection's ID.
// Validation happens before any side effect: a pending dial, a ringing
// call or two occupied slots reject the request. With an active
// foreground call, the connection is staged and dialed once the hold
// completes. Emergency calls preempt whatever stands in their way.
func (t *Tracker) Dial(ctx context.Context, req DialRequest) (string, error) {
	var id string
	err := t.exec(ctx, func() error {
		if req.Address == "" {
			return callErr("dial", "", ErrInvalidAddress)
		}
		if t.pendingMO != nil || t.HoldSwapState() != HoldSwapInactive {
			return callErr("dial", req.Address, ErrAlreadyDialing)
		}
		if d := t.foreground.Driving(); d != nil && d.State().IsDialing() {
			return callErr("dial", req.Address, ErrAlreadyDialing)
		}
		if t.ringing.HasLiveConnections() {
			if !req.Emergency {
				return callErr("dial", req.Address, ErrRingingActive)
			}
			if rc := t.ringing.Driving(); rc != nil && rc.Session() != nil {
				_ = rc.Session().Reject(t.runCtx, session.ReasonEmergencyPreempted)
				rc.SetState(call.StateDisconnecting)
			}
		}
		if t.foreground.HasLiveConnections() && t.background.HasLiveConnections() {
			if !req.Emergency {
				return callErr("dial", req.Address, ErrTooManyCalls)
			}
			if bg := t.background.Driving(); bg != nil && bg.Session() != nil {
				_ = bg.Session().Terminate(t.runCtx, session.ReasonEmergencyPreempted)
				bg.SetState(call.StateDisconnecting)
			}
		}

		profile := t.buildProfile(req)
		v := call.VideoNone
		if profile.CallType == session.CallTypeVideo {
			v = call.VideoBidirectional
		}
		conn := call.NewOutgoing(req.Address, v)
		conn.SetEmergency(req.Emergency)
		t.conns[conn.ID()] = conn
		id = conn.ID()

		if t.foreground.HasLiveConnections() {
			t.pendingMO = conn
			if err := t.holdActiveCallForPendingMO(conn, profile); err != nil {
				t.pendingMO = nil
				delete(t.conns, conn.ID())
				return err
			}
			t.updatePhoneState()
			return nil
		}

		if err := t.foreground.Attach(conn); err != nil {
			delete(t.conns, conn.ID())
			return callErr("dial", req.Address, err)
		}
		if err := t.dialNow(conn, profile); err != nil {
			return err
		}
		t.publishSlotState(t.foreground)
		t.updatePhoneState()
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// buildProfile applies emergency policy to the caller's preferences:
// identity is always presented and video is stripped unless the carrier
// explicitly allows emergency video.
func (t *Tracker) buildProfile(req DialRequest) session.Profile {
	p := session.Profile{CallType: req.CallType, CLIR: req.CLIR, Emergency: req.Emergency}
	if req.Emergency {
		p.CLIR = session.CLIRSuppression
		if !t.carrier.Bool(carrier.KeyAllowEmergencyVideo, false) {
			p.CallType = session.CallTypeAudio
		}
	}
	return p
}

// profileFor reconstructs a dial profile from a connection, for redials.
func (t *Tracker) profileFor(conn *call.Connection) session.Profile {
	p := session.Profile{Emergency: conn.Emergency()}
	if conn.VideoState().HasVideo() {
		p.CallType = session.CallTypeVideo
	}
	if conn.Emergency() {
		p.CLIR = session.CLIRSuppression
	}
	return p
}

// dialNow issues the session dial for an attached connection.
func (t *Tracker) dialNow(conn *call.Connection, profile session.Profile) error {
	sess, err := t.provider.Dial(t.runCtx, profile, conn.Address())
	if err != nil {
		if errors.Is(err, session.ErrFallbackRequired) {
			return t.fallbackRedial(conn, profile)
		}
		t.logger.Warn("[Tracker] Dial failed", "address", conn.Address(), "error", err)
		t.finalizeLocal(conn, cause.Error)
		return callErr("dial", conn.Address(), err)
	}
	conn.SetSession(sess)
	t.sessions[sess.ID()] = conn
	t.logger.Info("[Tracker] Dialing",
		"connection_id", conn.ID(),
		"address", conn.Address(),
		"session_id", sess.ID(),
		"emergency", conn.Emergency(),
	)
	t.publishSlotState(conn.Slot())
	return nil
}

// dialStaged attaches a previously staged connection to the foreground
// and dials it.
func (t *Tracker) dialStaged(pending *call.Connection, profile session.Profile) {
	if t.pendingMO == pending {
		t.pendingMO = nil
	}
	if err := t.foreground.Attach(pending); err != nil {
		t.logger.Warn("[Tracker] Cannot attach staged call", "connection_id", pending.ID(), "error", err)
		t.finalizeLocal(pending, cause.Error)
		return
	}
	if err := t.dialNow(pending, profile); err != nil {
		t.logger.Warn("[Tracker] Staged dial failed", "connection_id", pending.ID(), "error", err)
	}
	t.publishSlotStates()
	t.updatePhoneState()
}

// fallbackRedial removes the connection and redials it once on the
// circuit-switched path. No second retry.
func (t *Tracker) fallbackRedial(conn *call.Connection, profile session.Profile) error {
	t.removeConn(conn)
	t.updatePhoneState()
	if t.fallback == nil || conn.Redialed() {
		return callErr("dial", conn.Address(), session.ErrFallbackRequired)
	}
	conn.MarkRedialed()
	if err := t.fallback.DialFallback(t.runCtx, profile, conn.Address()); err != nil {
		return callErr("dial", conn.Address(), err)
	}
	t.logger.Info("[Tracker] Redialing on circuit-switched path", "address", conn.Address())
	return nil
}

// AcceptCall answers the ringing call with the given media type. When the
// foreground is occupied the active call is first held (or, per carrier
// policy, hung up when it is a video-over-WiFi call and the answer is
// audio-only).
func (t *Tracker) AcceptCall(ctx context.Context, ct session.CallType) error {
	return t.exec(ctx, func() error {
		ringing := t.ringing.Driving()
		if ringing == nil || !ringing.State().IsRinging() {
			return callErr("answer", "", ErrNotRinging)
		}
		if t.HoldSwapState() != HoldSwapInactive {
			return callErr("answer", ringing.Address(), ErrHoldInProgress)
		}
		if !t.foreground.HasLiveConnections() {
			t.acceptNow(ringing, ct)
			return nil
		}
		if t.background.HasLiveConnections() {
			return callErr("answer", ringing.Address(), ErrTooManyCalls)
		}
		active := t.foreground.Driving()
		if t.shouldDropActiveForAnswer(active, ct) {
			_ = active.Session().Terminate(t.runCtx, session.ReasonLocalTerminated)
			active.SetState(call.StateDisconnecting)
			t.publishSlotState(t.foreground)
			t.acceptNow(ringing, ct)
			return nil
		}
		return t.holdActiveCallForWaitingCall(ringing, ct)
	})
}

// shouldDropActiveForAnswer applies the carrier rule that answering an
// audio call while a video call runs over WiFi drops the video call
// instead of holding it.
func (t *Tracker) shouldDropActiveForAnswer(active *call.Connection, ct session.CallType) bool {
	return active != nil && active.Session() != nil &&
		active.VideoState().HasVideo() &&
		active.Session().AccessTech() == session.AccessTechWiFi &&
		ct == session.CallTypeAudio &&
		t.carrier.Bool(carrier.KeyDropWiFiVideoOnAudioAnswer, false)
}

// acceptNow moves the ringing connection to the foreground and answers it.
func (t *Tracker) acceptNow(waiting *call.Connection, ct session.CallType) {
	if s := waiting.Slot(); s != nil {
		_ = s.Detach(waiting)
	}
	_ = t.foreground.Attach(waiting)
	if err := waiting.Session().Accept(t.runCtx, ct); err != nil {
		t.logger.Warn("[Tracker] Accept request failed", "connection_id", waiting.ID(), "error", err)
	}
	t.logger.Info("[Tracker] Answering", "connection_id", waiting.ID(), "call_type", ct.String())
	t.publishSlotStates()
	t.updatePhoneState()
}

// RejectCall declines the ringing call.
func (t *Tracker) RejectCall(ctx context.Context) error {
	return t.exec(ctx, func() error {
		ringing := t.ringing.Driving()
		if ringing == nil || !ringing.State().IsRinging() {
			return callErr("reject", "", ErrNotRinging)
		}
		return t.rejectConn(ringing)
	})
}

func (t *Tracker) rejectConn(conn *call.Connection) error {
	if conn.Session() == nil {
		return callErr("reject", conn.Address(), ErrConnectionNotFound)
	}
	if err := conn.Session().Reject(t.runCtx, session.ReasonLocalCallDecline); err != nil {
		return callErr("reject", conn.Address(), err)
	}
	conn.SetState(call.StateDisconnecting)
	t.publishSlotState(conn.Slot())
	return nil
}

// Hangup ends the connection with the given ID. A ringing connection is
// rejected rather than terminated; a staged outgoing connection that was
// never dialed gets a synthesized local disconnect.
func (t *Tracker) Hangup(ctx context.Context, connID string) error {
	return t.exec(ctx, func() error {
		conn, ok := t.conns[connID]
		if !ok {
			return callErr("hangup", "", ErrConnectionNotFound)
		}

		if conn == t.pendingMO && conn.Session() == nil {
			if t.hs.pendingDial == conn {
				t.hs.pendingDial = nil
			}
			t.pendingMO = nil
			t.finalizeLocal(conn, cause.NormalLocal)
			return nil
		}

		if conn.Slot() == t.ringing {
			return t.rejectConn(conn)
		}

		if conn.Session() == nil {
			return callErr("hangup", conn.Address(), ErrConnectionNotFound)
		}
		if err := conn.Session().Terminate(t.runCtx, session.ReasonLocalTerminated); err != nil {
			return callErr("hangup", conn.Address(), err)
		}
		conn.SetState(call.StateDisconnecting)
		t.publishSlotState(conn.Slot())
		return nil
	})
}

// Hold puts the active call on hold. With a held background call this is
// a swap: the held call is resumed once the hold completes.
func (t *Tracker) Hold(ctx context.Context) error {
	return t.exec(ctx, t.holdActiveCall)
}

// Unhold resumes the held background call. With an active foreground call
// this too is a swap.
func (t *Tracker) Unhold(ctx context.Context) error {
	return t.exec(ctx, t.unholdHeldCall)
}

// Conference merges the active and held calls into one multiparty call.
func (t *Tracker) Conference(ctx context.Context) error {
	return t.exec(ctx, func() error {
		if t.HoldSwapState() != HoldSwapInactive {
			return callErr("conference", "", ErrHoldInProgress)
		}
		active := t.foreground.Driving()
		if active == nil || active.Session() == nil || active.State() != call.StateActive {
			return callErr("conference", "", ErrNoActiveCall)
		}
		held := t.background.Driving()
		if held == nil || held.Session() == nil || held.State() != call.StateHolding {
			return callErr("conference", "", ErrNoHeldCall)
		}
		if err := active.Session().Merge(t.runCtx, held.Session()); err != nil {
			return callErr("conference", active.Address(), err)
		}
		t.logger.Info("[Tracker] Conference requested",
			"host_connection_id", active.ID(),
			"peer_connection_id", held.ID(),
		)
		return nil
	})
}

// SetCarrierConfig swaps in a new carrier configuration bundle.
func (t *Tracker) SetCarrierConfig(ctx context.Context, cfg *carrier.Config) error {
	return t.exec(ctx, func() error {
		if cfg == nil {
			return nil
		}
		t.carrier = cfg
		t.logger.Info("[Tracker] Carrier config updated")
		return nil
	})
}

// handleSessionEvent dispatches one provider event. Runs on the loop.
func (t *Tracker) handleSessionEvent(e session.Event) {
	switch ev := e.(type) {
	case *session.Incoming:
		t.onIncoming(ev)
	case *session.Progressing:
		t.onProgressing(ev)
	case *session.Started:
		t.onStarted(ev)
	case *session.Held:
		if conn := t.sessions[ev.SessionID()]; conn != nil {
			conn.SetState(call.StateHolding)
			t.publishSlotState(conn.Slot())
		}
		t.onHeld()
	case *session.HoldFailed:
		t.onHoldFailed(t.sessions[ev.SessionID()], ev.Reason)
	case *session.Resumed:
		if conn := t.sessions[ev.SessionID()]; conn != nil {
			conn.SetState(call.StateActive)
			t.publishSlotState(conn.Slot())
			t.onResumed(conn)
		}
	case *session.ResumeFailed:
		t.onResumeFailed(ev.Reason)
	case *session.Terminated:
		t.onTerminated(ev)
	case *session.Merged:
		t.onMerged(ev)
	case *session.MergeFailed:
		t.logger.Warn("[Tracker] Conference merge failed",
			"session_id", ev.SessionID(),
			"reason", ev.Reason.Code.String(),
		)
		t.notify(failedOp("conference"))
	case *session.Handover:
		t.onHandover(ev)
	case *session.MultipartyChanged:
		t.logger.Info("[Tracker] Multiparty state changed",
			"session_id", ev.SessionID(),
			"multiparty", ev.Multiparty,
		)
	case *session.SuppServiceNotice:
		t.notify(events.SuppServiceNotice(ev.Code, ev.Message))
	case *session.USSD:
		t.notify(events.USSDReceived(ev.Message, ev.Expecting))
	default:
		t.logger.Warn("[Tracker] Unhandled session event", "session_id", e.SessionID())
	}
}

func (t *Tracker) onIncoming(e *session.Incoming) {
	if t.ringing.HasLiveConnections() ||
		(t.foreground.HasLiveConnections() && t.background.HasLiveConnections()) {
		t.logger.Info("[Tracker] Rejecting incoming call, no capacity", "address", e.Address)
		_ = e.Session.Reject(t.runCtx, session.ReasonBusy)
		return
	}

	v := call.VideoNone
	if e.CallType == session.CallTypeVideo {
		v = call.VideoBidirectional
	}
	conn := call.NewIncoming(e.Session, e.Address, v)
	t.conns[conn.ID()] = conn
	t.sessions[e.Session.ID()] = conn

	if t.foreground.HasLiveConnections() {
		_ = t.ringing.AttachWithState(conn, call.StateWaiting)
	} else {
		_ = t.ringing.Attach(conn)
	}
	t.logger.Info("[Tracker] Incoming call",
		"connection_id", conn.ID(),
		"address", e.Address,
		"call_type", e.CallType.String(),
	)
	t.publishSlotState(t.ringing)
	t.updatePhoneState()
}

func (t *Tracker) onProgressing(e *session.Progressing) {
	conn := t.sessions[e.SessionID()]
	if conn == nil || conn.State() != call.StateDialing {
		return
	}
	conn.SetState(call.StateAlerting)
	if conn.Direction() == call.DirectionOutgoing {
		t.notify(events.Ringback(true))
	}
	t.publishSlotState(conn.Slot())
}

func (t *Tracker) onStarted(e *session.Started) {
	conn := t.sessions[e.SessionID()]
	if conn == nil {
		return
	}
	if conn.Direction() == call.DirectionOutgoing && conn.State() == call.StateAlerting {
		t.notify(events.Ringback(false))
	}
	// A call returning from a handover attempt lands back in the foreground.
	if conn.Slot() == t.handover {
		_ = t.handover.Detach(conn)
		_ = t.foreground.Attach(conn)
	}
	conn.SetState(call.StateActive)
	t.logger.Info("[Tracker] Call started", "connection_id", conn.ID(), "address", conn.Address())
	t.publishSlotState(conn.Slot())
	t.updatePhoneState()

	// Answered straight into a metered bearer with data disabled.
	if !t.dataEnabled && conn.VideoState().HasVideo() {
		t.applyVideoPolicyIfMetered(conn)
	}
}

func (t *Tracker) onTerminated(e *session.Terminated) {
	conn := t.sessions[e.SessionID()]
	if conn == nil {
		return
	}
	delete(t.sessions, e.SessionID())
	delete(t.pausedByData, conn.ID())

	if conn.Slot() == t.handover {
		// The call left the packet domain and continues elsewhere; the
		// packet session ending is expected and not a disconnect.
		t.logger.Info("[Tracker] Handed-over session released", "connection_id", conn.ID())
		t.removeConn(conn)
		t.updatePhoneState()
		return
	}

	if e.Reason.Code == session.ReasonFallbackRequired &&
		conn.Direction() == call.DirectionOutgoing &&
		conn.NeverConnected() && !conn.Redialed() && t.fallback != nil {
		conn.MarkRedialed()
		t.removeConn(conn)
		t.holdSwapOnTerminated(e.SessionID())
		if err := t.fallback.DialFallback(t.runCtx, t.profileFor(conn), conn.Address()); err != nil {
			t.logger.Warn("[Tracker] Circuit-switched redial failed", "address", conn.Address(), "error", err)
			t.notify(events.Disconnected(conn.ID(), cause.Error))
		} else {
			t.logger.Info("[Tracker] Redialing on circuit-switched path", "address", conn.Address())
		}
		t.updatePhoneState()
		return
	}

	wasRingback := conn.Direction() == call.DirectionOutgoing && conn.State() == call.StateAlerting

	info := cause.CallInfo{
		Incoming:       conn.IsIncoming(),
		NeverConnected: conn.NeverConnected(),
		Dialing:        conn.State().IsDialing(),
		Merged:         conn.WasMerged(),
	}
	dc := cause.Translate(e.Reason, info, t.carrier.Remap())
	slot := conn.Slot()
	conn.Disconnect(dc)

	t.logger.Info("[Tracker] Call terminated",
		"connection_id", conn.ID(),
		"address", conn.Address(),
		"cause", dc.String(),
		"reason", e.Reason.Code.String(),
	)
	if wasRingback {
		t.notify(events.Ringback(false))
	}
	t.notify(events.Disconnected(conn.ID(), dc))
	if slot != nil {
		t.publishSlotState(slot)
	}
	t.writeRecord(conn, dc)
	t.holdSwapOnTerminated(e.SessionID())
	t.scheduleCleanup(conn)
	t.updatePhoneState()
}

func (t *Tracker) onMerged(e *session.Merged) {
	host := t.sessions[e.SessionID()]
	if host == nil || host.Slot() != t.foreground {
		return
	}
	for _, c := range t.background.Connections() {
		c.MarkMerged()
	}
	t.foreground.Merge(t.background, call.StateActive)
	t.logger.Info("[Tracker] Conference established",
		"host_connection_id", host.ID(),
		"participants", t.foreground.Len(),
	)
	t.notify(events.SuppServiceNotice(0, "conference established"))
	t.publishSlotStates()
}

func (t *Tracker) onHandover(e *session.Handover) {
	conn := t.sessions[e.SessionID()]
	if conn == nil {
		return
	}
	if e.Failed {
		t.logger.Warn("[Tracker] Handover failed",
			"connection_id", conn.ID(),
			"from", e.From.String(),
			"to", e.To.String(),
		)
		t.notify(failedOp("handover"))
		return
	}
	t.logger.Info("[Tracker] Handover",
		"connection_id", conn.ID(),
		"from", e.From.String(),
		"to", e.To.String(),
	)
	if e.To == session.AccessTechUnknown {
		// The call is leaving the packet domain. Park it on the handover
		// slot; its session terminates shortly and is released silently.
		if s := conn.Slot(); s != nil && s != t.handover {
			_ = s.Detach(conn)
			_ = t.handover.Attach(conn)
			t.publishSlotStates()
		}
		return
	}
	// Moving off WiFi puts video on a metered bearer.
	if e.From == session.AccessTechWiFi && !t.dataEnabled {
		t.applyVideoPolicyIfMetered(conn)
	}
}

// removeConn detaches a connection and drops it from the indexes without
// emitting a disconnect.
func (t *Tracker) removeConn(conn *call.Connection) {
	if s := conn.Slot(); s != nil {
		_ = s.Detach(conn)
	}
	delete(t.conns, conn.ID())
	if sess := conn.Session(); sess != nil {
		delete(t.sessions, sess.ID())
	}
	if t.pendingMO == conn {
		t.pendingMO = nil
	}
}

// finalizeLocal disconnects a connection locally (no session teardown),
// emits the disconnect and schedules cleanup.
func (t *Tracker) finalizeLocal(conn *call.Connection, dc cause.DisconnectCause) {
	slot := conn.Slot()
	conn.Disconnect(dc)
	t.notify(events.Disconnected(conn.ID(), dc))
	if slot != nil {
		t.publishSlotState(slot)
	}
	t.writeRecord(conn, dc)
	t.scheduleCleanup(conn)
	t.updatePhoneState()
}

// destroyPending disconnects a staged, never-dialed connection.
func (t *Tracker) destroyPending(pending *call.Connection) {
	if t.pendingMO == pending {
		t.pendingMO = nil
	}
	t.finalizeLocal(pending, cause.Error)
}

// scheduleCleanup clears the disconnected connection from its slot after
// a short delay, so observers can still read its final state.
func (t *Tracker) scheduleCleanup(conn *call.Connection) {
	time.AfterFunc(cleanupDelay, func() {
		t.post(func() {
			if s := conn.Slot(); s != nil {
				s.ClearDisconnected()
			}
			delete(t.conns, conn.ID())
			t.updatePhoneState()
		})
	})
}

// connBySession returns the connection for a session ID, or nil.
func (t *Tracker) connBySession(sessionID string) *call.Connection {
	if sessionID == "" {
		return nil
	}
	return t.sessions[sessionID]
}

// writeRecord persists a call record for a disconnected connection.
func (t *Tracker) writeRecord(conn *call.Connection, dc cause.DisconnectCause) {
	rec := &store.Record{
		ConnectionID: conn.ID(),
		Address:      conn.Address(),
		Direction:    conn.Direction().String(),
		StartTime:    conn.CreateTime(),
		ConnectTime:  conn.ConnectTime(),
		EndTime:      conn.DisconnectTime(),
		Cause:        dc.String(),
		VideoCall:    conn.VideoState().HasVideo(),
		Emergency:    conn.Emergency(),
	}
	if !conn.ConnectTime().IsZero() {
		rec.Duration = int(rec.EndTime.Sub(conn.ConnectTime()).Seconds())
	}
	if err := t.records.Create(t.runCtx, rec); err != nil {
		t.logger.Warn("[Tracker] Failed to write call record", "connection_id", conn.ID(), "error", err)
	}
}

// updatePhoneState recomputes the coarse phone state and notifies on change.
func (t *Tracker) updatePhoneState() {
	next := events.PhoneIdle
	switch {
	case t.ringing.HasLiveConnections():
		next = events.PhoneRinging
	case t.foreground.HasLiveConnections() || t.background.HasLiveConnections() ||
		t.handover.HasLiveConnections() || t.pendingMO != nil:
		next = events.PhoneOffhook
	}
	if next == t.phoneState {
		return
	}
	t.phoneState = next
	t.logger.Info("[Tracker] Phone state", "state", next.String())
	t.notify(events.PhoneStateChanged(next))
}

// publishSlotState emits a precise-state notification when the slot's
// aggregate state changed since the last publish.
func (t *Tracker) publishSlotState(s *call.Slot) {
	if s == nil {
		return
	}
	cur := s.State()
	if last, ok := t.lastSlotState[s.Role()]; ok && last == cur {
		return
	}
	t.lastSlotState[s.Role()] = cur
	t.notify(events.PreciseStateChanged(s.Role(), cur))
}

// publishSlotStates publishes every slot that changed.
func (t *Tracker) publishSlotStates() {
	t.publishSlotState(t.ringing)
	t.publishSlotState(t.foreground)
	t.publishSlotState(t.background)
	t.publishSlotState(t.handover)
}

func (t *Tracker) notify(e events.Event) {
	t.notifier.Publish(e)
}

func failedOp(op string) events.Event {
	return events.SuppServiceFailed(op)
}
