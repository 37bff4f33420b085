// Package sipsession carries calls over SIP using sipgo. It implements
// the session.Provider boundary: Dial places an outgoing INVITE, the
// server side adopts incoming INVITEs, and every dialog outcome is
// delivered on the shared event channel.
package sipsession

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/sebas/calltrack/internal/tracker/session"
)

// Config holds the SIP stack parameters.
type Config struct {
	// BindAddr and Port are the local SIP listening endpoint.
	BindAddr string
	Port     int

	// AdvertiseAddr is the address placed in From and Contact headers.
	AdvertiseAddr string

	// ProxyAddr is the network proxy outgoing requests are routed to.
	ProxyAddr string

	// User is the local identity placed in the From header.
	User string

	// MediaAddr, AudioPort and VideoPort describe the local media
	// endpoint advertised in SDP offers.
	MediaAddr string
	AudioPort int
	VideoPort int

	// AccessTech is the bearer this provider reports for its sessions.
	AccessTech session.AccessTech

	// DialTimeout bounds how long an outgoing INVITE may ring.
	DialTimeout time.Duration
}

// Provider is the SIP-backed session provider.
type Provider struct {
	ua     *sipgo.UserAgent
	srv    *sipgo.Server
	client *sipgo.Client

	cfg          Config
	localContact sip.Uri
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*sipSession

	events chan session.Event
}

// NewProvider creates the SIP user agent and registers the method
// handlers. ListenAndServe must be called before calls can flow.
func NewProvider(cfg Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 60 * time.Second
	}
	if cfg.User == "" {
		cfg.User = "calltrack"
	}
	if cfg.MediaAddr == "" {
		cfg.MediaAddr = cfg.AdvertiseAddr
	}
	if cfg.AccessTech == session.AccessTechUnknown {
		cfg.AccessTech = session.AccessTechLTE
	}

	ua, err := sipgo.NewUA()
	if err != nil {
		return nil, fmt.Errorf("create user agent: %w", err)
	}
	srv, err := sipgo.NewServer(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("create server: %w", err)
	}
	client, err := sipgo.NewClient(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("create client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		ua:     ua,
		srv:    srv,
		client: client,
		cfg:    cfg,
		localContact: sip.Uri{
			Scheme: "sip",
			User:   cfg.User,
			Host:   cfg.AdvertiseAddr,
			Port:   cfg.Port,
		},
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*sipSession),
		events:   make(chan session.Event, 64),
	}

	srv.OnRequest(sip.INVITE, p.onInvite)
	srv.OnRequest(sip.BYE, p.onBye)
	srv.OnRequest(sip.ACK, p.onAck)
	srv.OnRequest(sip.CANCEL, p.onCancel)

	return p, nil
}

// Events returns the shared session event channel.
func (p *Provider) Events() <-chan session.Event {
	return p.events
}

// ListenAndServe binds the SIP listener and blocks until ctx is done.
func (p *Provider) ListenAndServe(ctx context.Context) error {
	listenAddr := fmt.Sprintf("%s:%d", p.cfg.BindAddr, p.cfg.Port)
	p.logger.Info("[SIP] Starting SIP listener", "addr", listenAddr)
	return p.srv.ListenAndServe(ctx, "udp", listenAddr)
}

// Close shuts the SIP stack down and closes the event channel.
func (p *Provider) Close() error {
	p.cancel()
	err := p.ua.Close()
	close(p.events)
	return err
}

// Dial sends an INVITE toward callee and returns the session before the
// call connects. Progress and outcome arrive as events.
func (p *Provider) Dial(ctx context.Context, profile session.Profile, callee string) (session.Session, error) {
	callID := uuid.NewString()
	localTag := generateTag()

	video := profile.CallType == session.CallTypeVideo
	body, err := buildOffer(p.cfg.MediaAddr, p.cfg.AudioPort, p.cfg.VideoPort, video)
	if err != nil {
		return nil, fmt.Errorf("build SDP offer: %w", err)
	}

	invite, err := p.buildINVITE(profile, callee, callID, localTag, body)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(p.ctx, p.cfg.DialTimeout)
	tx, err := p.client.TransactionRequest(dialCtx, invite)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("send INVITE: %w", err)
	}

	s := &sipSession{
		p:         p,
		id:        callID,
		remote:    callee,
		direction: directionOutbound,
		video:     video,
		invite:    invite,
		localSDP:  body,
		localTag:  localTag,
		caps:      session.Capabilities{DowngradeLocal: video},
	}
	s.localCSeq.Store(1)

	p.mu.Lock()
	p.sessions[callID] = s
	p.mu.Unlock()

	go p.runInvite(dialCtx, cancel, s, invite, tx)

	p.logger.Info("[SIP] INVITE sent", "call_id", callID, "callee", callee, "video", video)
	return s, nil
}

// buildINVITE constructs the initial out-of-dialog INVITE.
func (p *Provider) buildINVITE(profile session.Profile, callee, callID, localTag string, body []byte) (*sip.Request, error) {
	target := sip.Uri{
		Scheme: "sip",
		User:   callee,
		Host:   p.cfg.ProxyAddr,
	}
	if strings.Contains(callee, "@") {
		if err := sip.ParseUri("sip:"+callee, &target); err != nil {
			return nil, fmt.Errorf("parse callee %q: %w", callee, err)
		}
	}

	invite := sip.NewRequest(sip.INVITE, target)

	maxFwd := sip.MaxForwardsHeader(70)
	invite.AppendHeader(&maxFwd)

	fromURI := sip.Uri{
		Scheme: "sip",
		User:   p.cfg.User,
		Host:   p.cfg.AdvertiseAddr,
		Port:   p.cfg.Port,
	}
	fromDisplay := ""
	if profile.CLIR == session.CLIRInvocation {
		fromDisplay = "Anonymous"
		fromURI.User = "anonymous"
		fromURI.Host = "anonymous.invalid"
		fromURI.Port = 0
	}
	fromParams := sip.NewParams()
	fromParams.Add("tag", localTag)
	invite.AppendHeader(&sip.FromHeader{
		DisplayName: fromDisplay,
		Address:     fromURI,
		Params:      fromParams,
	})

	invite.AppendHeader(&sip.ToHeader{
		Address: target,
		Params:  sip.NewParams(),
	})

	callIDHdr := sip.CallIDHeader(callID)
	invite.AppendHeader(&callIDHdr)

	invite.AppendHeader(&sip.CSeqHeader{
		SeqNo:      1,
		MethodName: sip.INVITE,
	})

	invite.AppendHeader(&sip.ContactHeader{Address: p.localContact})

	switch profile.CLIR {
	case session.CLIRInvocation:
		invite.AppendHeader(sip.NewHeader("Privacy", "id"))
	case session.CLIRSuppression:
		invite.AppendHeader(sip.NewHeader("Privacy", "none"))
	}
	if profile.Emergency {
		invite.AppendHeader(sip.NewHeader("Priority", "emergency"))
	}
	for name, value := range profile.Extras {
		invite.AppendHeader(sip.NewHeader(name, value))
	}

	contentType := sip.ContentTypeHeader("application/sdp")
	invite.AppendHeader(&contentType)
	invite.SetBody(body)

	return invite, nil
}

// runInvite drives the outgoing INVITE transaction and translates its
// responses into session events.
func (p *Provider) runInvite(ctx context.Context, cancel context.CancelFunc, s *sipSession, invite *sip.Request, tx sip.ClientTransaction) {
	defer cancel()
	defer tx.Terminate()

	alerted := false
	for {
		select {
		case resp, ok := <-tx.Responses():
			if !ok {
				return
			}
			switch {
			case resp.StatusCode == 100:
				// Trying, nothing to report.

			case resp.StatusCode < 200:
				// 180 Ringing or 183 Session Progress.
				if !alerted {
					alerted = true
					p.emit(&session.Progressing{EventBase: session.EventBase{ID: s.id}})
				}

			case resp.StatusCode < 300:
				p.completeOutbound(s, invite, resp)
				return

			default:
				if s.terminated.CompareAndSwap(false, true) {
					p.emit(&session.Terminated{
						EventBase: session.EventBase{ID: s.id},
						Reason:    statusReason(resp.StatusCode, resp.Reason),
					})
				}
				p.remove(s.id)
				return
			}

		case <-tx.Done():
			if s.terminated.CompareAndSwap(false, true) {
				p.emit(&session.Terminated{
					EventBase: session.EventBase{ID: s.id},
					Reason:    session.Reason{Code: session.ReasonTimeout, Message: "transaction terminated"},
				})
				p.remove(s.id)
			}
			return

		case <-ctx.Done():
			if s.terminated.CompareAndSwap(false, true) {
				_ = s.sendCANCEL(p.ctx)
				p.emit(&session.Terminated{
					EventBase: session.EventBase{ID: s.id},
					Reason:    session.Reason{Code: session.ReasonTimeout, Message: "dial timed out"},
				})
				p.remove(s.id)
			}
			return
		}
	}
}

// completeOutbound confirms the dialog from the 2xx response: remote
// tag, remote target, destination for in-dialog requests, then the ACK.
func (p *Provider) completeOutbound(s *sipSession, invite *sip.Request, resp *sip.Response) {
	s.mu.Lock()
	s.inviteResp = resp
	if to := resp.To(); to != nil {
		if tag, ok := to.Params.Get("tag"); ok {
			s.remoteTag = tag
		}
	}
	if contact := resp.Contact(); contact != nil {
		s.remoteContact = contact.Address.String()
	}
	s.remoteDest = resp.Source()
	if resp.Body() != nil {
		s.caps.DowngradeRemote = hasActiveVideo(resp.Body())
	}
	s.mu.Unlock()

	if err := p.sendACK(invite, resp); err != nil {
		p.logger.Warn("[SIP] ACK failed", "call_id", s.id, "error", err)
	}

	if resp.Body() != nil {
		if addr, port, err := remoteEndpoint(resp.Body()); err == nil {
			p.logger.Debug("[SIP] Remote media endpoint", "call_id", s.id, "remote", endpointString(addr, port))
		}
	}

	s.answered.Store(true)
	p.emit(&session.Started{EventBase: session.EventBase{ID: s.id}})
}

// sendACK acknowledges a 2xx response. The ACK is a new request sent
// outside the INVITE transaction, addressed to the remote target from
// the response's Contact.
func (p *Provider) sendACK(invite *sip.Request, resp *sip.Response) error {
	requestURI := invite.Recipient
	if contact := resp.Contact(); contact != nil {
		requestURI = contact.Address
	}

	ack := sip.NewRequest(sip.ACK, requestURI)

	sip.CopyHeaders("From", invite, ack)
	sip.CopyHeaders("Call-ID", invite, ack)

	if to := resp.To(); to != nil {
		ack.AppendHeader(&sip.ToHeader{
			DisplayName: to.DisplayName,
			Address:     to.Address,
			Params:      to.Params,
		})
	}
	if cseq := invite.CSeq(); cseq != nil {
		ack.AppendHeader(&sip.CSeqHeader{
			SeqNo:      cseq.SeqNo,
			MethodName: sip.ACK,
		})
	}
	maxFwd := sip.MaxForwardsHeader(70)
	ack.AppendHeader(&maxFwd)

	destAddr := resp.Source()
	if destAddr == "" {
		port := requestURI.Port
		if port == 0 {
			port = 5060
		}
		destAddr = endpointString(requestURI.Host, port)
	}
	ack.SetDestination(destAddr)

	if err := p.client.WriteRequest(ack); err != nil {
		return fmt.Errorf("write ACK: %w", err)
	}
	return nil
}

// onInvite handles both new incoming calls and in-dialog re-INVITEs.
func (p *Provider) onInvite(req *sip.Request, tx sip.ServerTransaction) {
	callID := callIDValue(req)
	if callID == "" {
		res := sip.NewResponseFromRequest(req, sip.StatusBadRequest, "Missing Call-ID", nil)
		_ = tx.Respond(res)
		return
	}

	if s := p.lookup(callID); s != nil {
		p.onReInvite(s, req, tx)
		return
	}

	from := req.From()
	if from == nil {
		res := sip.NewResponseFromRequest(req, sip.StatusBadRequest, "Missing From", nil)
		_ = tx.Respond(res)
		return
	}

	video := req.Body() != nil && hasActiveVideo(req.Body())
	s := &sipSession{
		p:         p,
		id:        callID,
		remote:    from.Address.User,
		direction: directionInbound,
		video:     video,
		invite:    req,
		serverTx:  tx,
		localTag:  generateTag(),
		caps:      session.Capabilities{DowngradeLocal: video},
	}
	if tag, ok := from.Params.Get("tag"); ok {
		s.remoteTag = tag
	}
	if contact := req.Contact(); contact != nil {
		s.remoteContact = contact.Address.String()
	}
	s.remoteDest = req.Source()
	if cseq := req.CSeq(); cseq != nil {
		s.localCSeq.Store(cseq.SeqNo)
	}

	p.mu.Lock()
	p.sessions[callID] = s
	p.mu.Unlock()

	ringing := sip.NewResponseFromRequest(req, sip.StatusRinging, "Ringing", nil)
	if to := ringing.To(); to != nil {
		to.Params.Add("tag", s.localTag)
	}
	if err := tx.Respond(ringing); err != nil {
		p.logger.Warn("[SIP] Ringing response failed", "call_id", callID, "error", err)
	}

	callType := session.CallTypeAudio
	if video {
		callType = session.CallTypeVideo
	}
	p.logger.Info("[SIP] Incoming INVITE", "call_id", callID, "from", s.remote, "video", video)
	p.emit(&session.Incoming{
		EventBase: session.EventBase{ID: callID},
		Session:   s,
		Address:   s.remote,
		CallType:  callType,
	})
}

// onReInvite answers a peer renegotiation with the current local
// description. A peer moving to sendonly or inactive is a remote hold,
// reported as a supplementary-service notice.
func (p *Provider) onReInvite(s *sipSession, req *sip.Request, tx sip.ServerTransaction) {
	s.mu.RLock()
	body := s.localSDP
	s.mu.RUnlock()

	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", body)
	if to := res.To(); to != nil {
		if _, ok := to.Params.Get("tag"); !ok {
			to.Params.Add("tag", s.localTag)
		}
	}
	res.AppendHeader(&sip.ContactHeader{Address: p.localContact})
	if len(body) > 0 {
		contentType := sip.ContentTypeHeader("application/sdp")
		res.AppendHeader(&contentType)
	}
	if err := tx.Respond(res); err != nil {
		p.logger.Warn("[SIP] re-INVITE response failed", "call_id", s.id, "error", err)
		return
	}

	if req.Body() != nil {
		dir := remoteDirection(req.Body())
		switch dir {
		case dirSendOnly, dirInactive:
			p.emit(&session.SuppServiceNotice{
				EventBase: session.EventBase{ID: s.id},
				Code:      noticeRemoteHeld,
				Message:   "call held by remote party",
			})
		case dirSendRecv:
			p.emit(&session.SuppServiceNotice{
				EventBase: session.EventBase{ID: s.id},
				Code:      noticeRemoteResumed,
				Message:   "call resumed by remote party",
			})
		}
	}
}

// onBye tears down the dialog on the peer's request.
func (p *Provider) onBye(req *sip.Request, tx sip.ServerTransaction) {
	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	if err := tx.Respond(res); err != nil {
		p.logger.Warn("[SIP] BYE response failed", "error", err)
	}

	s := p.lookup(callIDValue(req))
	if s == nil {
		return
	}
	if s.terminated.CompareAndSwap(false, true) {
		p.logger.Info("[SIP] Remote BYE", "call_id", s.id)
		p.emit(&session.Terminated{
			EventBase: session.EventBase{ID: s.id},
			Reason:    session.Reason{Code: session.ReasonRemoteTerminated, Message: "remote release"},
		})
	}
	p.remove(s.id)
}

func (p *Provider) onAck(req *sip.Request, tx sip.ServerTransaction) {
	p.logger.Debug("[SIP] ACK received", "call_id", callIDValue(req))
}

// onCancel aborts a ringing incoming call.
func (p *Provider) onCancel(req *sip.Request, tx sip.ServerTransaction) {
	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	if err := tx.Respond(res); err != nil {
		p.logger.Warn("[SIP] CANCEL response failed", "error", err)
	}

	s := p.lookup(callIDValue(req))
	if s == nil {
		return
	}

	s.mu.Lock()
	inviteTx := s.serverTx
	invite := s.invite
	s.serverTx = nil
	s.mu.Unlock()

	if inviteTx != nil && invite != nil {
		terminated := sip.NewResponseFromRequest(invite, sip.StatusCode(487), "Request Terminated", nil)
		_ = inviteTx.Respond(terminated)
	}

	if s.terminated.CompareAndSwap(false, true) {
		p.logger.Info("[SIP] Incoming call cancelled", "call_id", s.id)
		p.emit(&session.Terminated{
			EventBase: session.EventBase{ID: s.id},
			Reason:    session.Reason{Code: session.ReasonRemoteTerminated, Message: "request cancelled"},
		})
	}
	p.remove(s.id)
}

// Supplementary-service notice codes reported by this provider.
const (
	noticeRemoteHeld    = 2
	noticeRemoteResumed = 3
)

func (p *Provider) lookup(callID string) *sipSession {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sessions[callID]
}

func (p *Provider) remove(callID string) {
	p.mu.Lock()
	delete(p.sessions, callID)
	p.mu.Unlock()
}

// emit delivers an event unless the provider is shutting down.
func (p *Provider) emit(ev session.Event) {
	select {
	case p.events <- ev:
	case <-p.ctx.Done():
	}
}

// remoteDirection returns the direction attribute of the first media
// line, defaulting to sendrecv when none is present.
func remoteDirection(body []byte) string {
	desc, err := parseSDP(body)
	if err != nil || len(desc.MediaDescriptions) == 0 {
		return ""
	}
	for _, a := range desc.MediaDescriptions[0].Attributes {
		if directionKeys[a.Key] {
			return a.Key
		}
	}
	for _, a := range desc.Attributes {
		if directionKeys[a.Key] {
			return a.Key
		}
	}
	return dirSendRecv
}

func callIDValue(req *sip.Request) string {
	if callID := req.CallID(); callID != nil {
		return callID.Value()
	}
	return ""
}

// generateTag generates a unique tag for From/To headers.
func generateTag() string {
	return uuid.NewString()[:8]
}
