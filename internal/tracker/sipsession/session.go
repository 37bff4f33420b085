package sipsession

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/emiago/sipgo/sip"

	"github.com/sebas/calltrack/internal/tracker/session"
)

// sessionDirection indicates whether we placed or received the call.
type sessionDirection int

const (
	directionOutbound sessionDirection = iota
	directionInbound
)

// sipSession is one SIP dialog exposed through the session.Session
// interface. Requests are handed to the network on the caller's
// goroutine where possible; re-INVITE outcomes are delivered as events
// from a per-request goroutine.
type sipSession struct {
	p *Provider

	id        string
	remote    string
	direction sessionDirection
	video     bool

	mu            sync.RWMutex
	invite        *sip.Request
	inviteResp    *sip.Response
	serverTx      sip.ServerTransaction
	localSDP      []byte
	localTag      string
	remoteTag     string
	remoteContact string
	remoteDest    string
	caps          session.Capabilities
	multiparty    bool

	localCSeq          atomic.Uint32
	reInviteInProgress atomic.Bool
	answered           atomic.Bool
	terminated         atomic.Bool
}

func (s *sipSession) ID() string { return s.id }

func (s *sipSession) RemoteAddress() string { return s.remote }

func (s *sipSession) AccessTech() session.AccessTech { return s.p.cfg.AccessTech }

func (s *sipSession) Capabilities() session.Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps
}

func (s *sipSession) IsMultiparty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.multiparty
}

func (s *sipSession) setMultiparty(v bool) {
	s.mu.Lock()
	s.multiparty = v
	s.mu.Unlock()
}

// Hold renegotiates every media line to sendonly. The outcome arrives as
// a Held or HoldFailed event.
func (s *sipSession) Hold(ctx context.Context) error {
	return s.renegotiate(ctx, func(body []byte) ([]byte, error) {
		return rewriteDirection(body, dirSendOnly)
	}, func() { s.p.emit(&session.Held{EventBase: session.EventBase{ID: s.id}}) },
		func(reason session.Reason) {
			s.p.emit(&session.HoldFailed{EventBase: session.EventBase{ID: s.id}, Reason: reason})
		})
}

// Resume renegotiates every media line back to sendrecv. The outcome
// arrives as a Resumed or ResumeFailed event.
func (s *sipSession) Resume(ctx context.Context) error {
	return s.renegotiate(ctx, func(body []byte) ([]byte, error) {
		return rewriteDirection(body, dirSendRecv)
	}, func() { s.p.emit(&session.Resumed{EventBase: session.EventBase{ID: s.id}}) },
		func(reason session.Reason) {
			s.p.emit(&session.ResumeFailed{EventBase: session.EventBase{ID: s.id}, Reason: reason})
		})
}

// DowngradeToAudio disables the video media line with a zero port.
func (s *sipSession) DowngradeToAudio(ctx context.Context) error {
	return s.renegotiate(ctx, dropVideo, nil, nil)
}

// PauseVideo renegotiates the video media line to sendonly.
func (s *sipSession) PauseVideo(ctx context.Context) error {
	return s.renegotiate(ctx, func(body []byte) ([]byte, error) {
		return rewriteVideoDirection(body, dirSendOnly)
	}, nil, nil)
}

// ResumeVideo renegotiates the video media line back to sendrecv.
func (s *sipSession) ResumeVideo(ctx context.Context) error {
	return s.renegotiate(ctx, func(body []byte) ([]byte, error) {
		return rewriteVideoDirection(body, dirSendRecv)
	}, nil, nil)
}

// Terminate tears the dialog down. An unanswered outgoing call is
// cancelled, an established one gets a BYE. The Terminated event is
// emitted once the request is on the wire.
func (s *sipSession) Terminate(ctx context.Context, code session.ReasonCode) error {
	if !s.terminated.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	if s.direction == directionOutbound && !s.answered.Load() {
		err = s.sendCANCEL(ctx)
	} else {
		err = s.sendBYE(ctx)
	}
	if err != nil {
		s.p.logger.Warn("[SIP] Teardown request failed", "call_id", s.id, "error", err)
	}

	s.p.emit(&session.Terminated{
		EventBase: session.EventBase{ID: s.id},
		Reason:    session.Reason{Code: code, Message: "local release"},
	})
	s.p.remove(s.id)
	return nil
}

// Accept answers a ringing incoming call with a 200 OK carrying the
// local description. Answering with audio against a video offer drops
// the video media line.
func (s *sipSession) Accept(ctx context.Context, t session.CallType) error {
	s.mu.Lock()
	tx := s.serverTx
	invite := s.invite
	s.mu.Unlock()

	if tx == nil || invite == nil {
		return fmt.Errorf("session %s is not awaiting an answer", s.id)
	}
	if !s.answered.CompareAndSwap(false, true) {
		return nil
	}

	body, err := buildOffer(s.p.cfg.MediaAddr, s.p.cfg.AudioPort, s.p.cfg.VideoPort, t == session.CallTypeVideo)
	if err != nil {
		return fmt.Errorf("build answer SDP: %w", err)
	}

	res := sip.NewResponseFromRequest(invite, sip.StatusOK, "OK", body)
	if to := res.To(); to != nil {
		if _, ok := to.Params.Get("tag"); !ok {
			to.Params.Add("tag", s.localTag)
		}
	}
	res.AppendHeader(&sip.ContactHeader{Address: s.p.localContact})
	contentType := sip.ContentTypeHeader("application/sdp")
	res.AppendHeader(&contentType)

	if err := tx.Respond(res); err != nil {
		s.answered.Store(false)
		return fmt.Errorf("send 200 OK: %w", err)
	}

	s.mu.Lock()
	s.localSDP = body
	s.serverTx = nil
	s.video = t == session.CallTypeVideo && s.video
	s.mu.Unlock()

	s.p.emit(&session.Started{EventBase: session.EventBase{ID: s.id}})
	return nil
}

// Reject declines a ringing incoming call. Busy maps to 486, everything
// else to 603.
func (s *sipSession) Reject(ctx context.Context, code session.ReasonCode) error {
	s.mu.Lock()
	tx := s.serverTx
	invite := s.invite
	s.serverTx = nil
	s.mu.Unlock()

	if tx == nil || invite == nil {
		return fmt.Errorf("session %s is not awaiting an answer", s.id)
	}
	if !s.terminated.CompareAndSwap(false, true) {
		return nil
	}

	status := sip.StatusCode(603)
	reason := "Decline"
	if code == session.ReasonBusy {
		status = sip.StatusBusyHere
		reason = "Busy Here"
	}
	res := sip.NewResponseFromRequest(invite, status, reason, nil)
	if err := tx.Respond(res); err != nil {
		s.p.logger.Warn("[SIP] Reject response failed", "call_id", s.id, "error", err)
	}

	s.p.emit(&session.Terminated{
		EventBase: session.EventBase{ID: s.id},
		Reason:    session.Reason{Code: code, Message: "local reject"},
	})
	s.p.remove(s.id)
	return nil
}

// Merge asks the peer to join the other session's remote party via
// REFER. The network-side conference outcome arrives as a Merged or
// MergeFailed event.
func (s *sipSession) Merge(ctx context.Context, other session.Session) error {
	peer, ok := other.(*sipSession)
	if !ok {
		return fmt.Errorf("cannot merge session of type %T", other)
	}

	peer.mu.RLock()
	referTarget := peer.remoteContact
	peer.mu.RUnlock()
	if referTarget == "" {
		referTarget = "sip:" + peer.remote + "@" + s.p.cfg.ProxyAddr
	}

	req, err := s.buildInDialogRequest(sip.REFER, nil)
	if err != nil {
		return err
	}
	req.AppendHeader(sip.NewHeader("Refer-To", referTarget))

	go func() {
		tx, err := s.p.client.TransactionRequest(s.p.ctx, req)
		if err != nil {
			s.p.emit(&session.MergeFailed{
				EventBase: session.EventBase{ID: s.id},
				Reason:    session.Reason{Code: session.ReasonServerError, Message: err.Error()},
			})
			return
		}
		defer tx.Terminate()

		for {
			select {
			case resp, ok := <-tx.Responses():
				if !ok {
					return
				}
				if resp.StatusCode < 200 {
					continue
				}
				if resp.StatusCode < 300 {
					s.setMultiparty(true)
					s.p.emit(&session.Merged{EventBase: session.EventBase{ID: s.id}})
					s.p.emit(&session.MultipartyChanged{EventBase: session.EventBase{ID: s.id}, Multiparty: true})
				} else {
					s.p.emit(&session.MergeFailed{
						EventBase: session.EventBase{ID: s.id},
						Reason:    statusReason(resp.StatusCode, resp.Reason),
					})
				}
				return
			case <-tx.Done():
				return
			case <-s.p.ctx.Done():
				return
			}
		}
	}()
	return nil
}

// renegotiate sends a re-INVITE with the local description transformed
// by rewrite. At most one re-INVITE is in flight per dialog.
func (s *sipSession) renegotiate(ctx context.Context, rewrite func([]byte) ([]byte, error), onOK func(), onFail func(session.Reason)) error {
	if !s.reInviteInProgress.CompareAndSwap(false, true) {
		return fmt.Errorf("re-INVITE already in progress for dialog %s", s.id)
	}

	s.mu.RLock()
	current := s.localSDP
	s.mu.RUnlock()

	body, err := rewrite(current)
	if err != nil {
		s.reInviteInProgress.Store(false)
		return err
	}

	req, err := s.buildInDialogRequest(sip.INVITE, body)
	if err != nil {
		s.reInviteInProgress.Store(false)
		return err
	}

	go func() {
		defer s.reInviteInProgress.Store(false)

		tx, err := s.p.client.TransactionRequest(s.p.ctx, req)
		if err != nil {
			if onFail != nil {
				onFail(session.Reason{Code: session.ReasonServerError, Message: err.Error()})
			}
			return
		}
		defer tx.Terminate()

		for {
			select {
			case resp, ok := <-tx.Responses():
				if !ok {
					return
				}
				if resp.StatusCode < 200 {
					continue
				}
				if resp.StatusCode < 300 {
					if err := s.p.sendACK(req, resp); err != nil {
						s.p.logger.Warn("[SIP] re-INVITE ACK failed", "call_id", s.id, "error", err)
					}
					s.mu.Lock()
					s.localSDP = body
					s.mu.Unlock()
					if onOK != nil {
						onOK()
					}
				} else if onFail != nil {
					onFail(statusReason(resp.StatusCode, resp.Reason))
				}
				return
			case <-tx.Done():
				if onFail != nil {
					onFail(session.Reason{Code: session.ReasonTimeout, Message: "re-INVITE timed out"})
				}
				return
			case <-s.p.ctx.Done():
				return
			}
		}
	}()
	return nil
}

// buildInDialogRequest constructs an in-dialog request per RFC 3261
// section 12.2.1.1: the dialog's Call-ID, both tags and the next local
// CSeq. The Request-URI is the remote target learned from the dialog
// peer's Contact.
func (s *sipSession) buildInDialogRequest(method sip.RequestMethod, body []byte) (*sip.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.invite == nil {
		return nil, fmt.Errorf("dialog %s has no INVITE state", s.id)
	}

	var recipient sip.Uri
	if s.remoteContact != "" {
		if err := sip.ParseUri(s.remoteContact, &recipient); err != nil {
			return nil, fmt.Errorf("parse remote contact: %w", err)
		}
	} else if s.direction == directionOutbound {
		recipient = s.invite.To().Address
	} else {
		recipient = s.invite.From().Address
	}

	req := sip.NewRequest(method, recipient)

	if len(s.invite.GetHeaders("Route")) > 0 {
		sip.CopyHeaders("Route", s.invite, req)
	}

	if s.direction == directionOutbound {
		// UAC role: From is our INVITE's From, To carries the tag the
		// peer handed back in the 200 OK.
		if from := s.invite.From(); from != nil {
			req.AppendHeader(&sip.FromHeader{
				DisplayName: from.DisplayName,
				Address:     from.Address,
				Params:      from.Params.Clone(),
			})
		}
		if to := s.invite.To(); to != nil {
			toHdr := &sip.ToHeader{
				DisplayName: to.DisplayName,
				Address:     to.Address,
				Params:      sip.NewParams(),
			}
			if s.remoteTag != "" {
				toHdr.Params.Add("tag", s.remoteTag)
			}
			req.AppendHeader(toHdr)
		}
	} else {
		// UAS role: our identity sits in the INVITE's To, theirs in its
		// From, so the headers swap.
		if to := s.invite.To(); to != nil {
			fromHdr := &sip.FromHeader{
				DisplayName: to.DisplayName,
				Address:     to.Address,
				Params:      sip.NewParams(),
			}
			if s.localTag != "" {
				fromHdr.Params.Add("tag", s.localTag)
			}
			req.AppendHeader(fromHdr)
		}
		if from := s.invite.From(); from != nil {
			req.AppendHeader(&sip.ToHeader{
				DisplayName: from.DisplayName,
				Address:     from.Address,
				Params:      from.Params.Clone(),
			})
		}
	}

	if callID := s.invite.CallID(); callID != nil {
		req.AppendHeader(callID)
	}

	req.AppendHeader(&sip.CSeqHeader{
		SeqNo:      s.localCSeq.Add(1),
		MethodName: method,
	})

	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)
	req.AppendHeader(&sip.ContactHeader{Address: s.p.localContact})

	if s.remoteDest != "" {
		req.SetDestination(s.remoteDest)
	}

	if len(body) > 0 {
		contentType := sip.ContentTypeHeader("application/sdp")
		req.AppendHeader(&contentType)
		req.SetBody(body)
	}
	return req, nil
}

// sendBYE tears down an established dialog.
func (s *sipSession) sendBYE(ctx context.Context) error {
	req, err := s.buildInDialogRequest(sip.BYE, nil)
	if err != nil {
		return err
	}

	tx, err := s.p.client.TransactionRequest(ctx, req)
	if err != nil {
		return fmt.Errorf("send BYE: %w", err)
	}

	go func() {
		defer tx.Terminate()
		select {
		case <-tx.Responses():
		case <-tx.Done():
		case <-s.p.ctx.Done():
		}
	}()
	return nil
}

// sendCANCEL aborts an unanswered outgoing INVITE. Per RFC 3261 section
// 9.1 the CANCEL copies the INVITE's Via, From, To, Call-ID and CSeq
// number.
func (s *sipSession) sendCANCEL(ctx context.Context) error {
	s.mu.RLock()
	invite := s.invite
	s.mu.RUnlock()
	if invite == nil {
		return fmt.Errorf("dialog %s has no INVITE to cancel", s.id)
	}

	cancelReq := sip.NewRequest(sip.CANCEL, invite.Recipient)
	sip.CopyHeaders("Via", invite, cancelReq)
	sip.CopyHeaders("From", invite, cancelReq)
	sip.CopyHeaders("To", invite, cancelReq)
	sip.CopyHeaders("Call-ID", invite, cancelReq)
	if cseq := invite.CSeq(); cseq != nil {
		cancelReq.AppendHeader(&sip.CSeqHeader{
			SeqNo:      cseq.SeqNo,
			MethodName: sip.CANCEL,
		})
	}
	maxFwd := sip.MaxForwardsHeader(70)
	cancelReq.AppendHeader(&maxFwd)

	tx, err := s.p.client.TransactionRequest(ctx, cancelReq)
	if err != nil {
		return fmt.Errorf("send CANCEL: %w", err)
	}

	go func() {
		defer tx.Terminate()
		select {
		case <-tx.Responses():
		case <-tx.Done():
		case <-s.p.ctx.Done():
		}
	}()
	return nil
}

// statusReason maps a SIP final status to a session reason.
func statusReason(status sip.StatusCode, phrase string) session.Reason {
	var code session.ReasonCode
	switch int(status) {
	case 404, 484, 604:
		code = session.ReasonInvalidNumber
	case 408:
		code = session.ReasonTimeout
	case 410, 480:
		code = session.ReasonUnreachable
	case 486, 600, 603:
		code = session.ReasonBusy
	case 503:
		code = session.ReasonCongestion
	default:
		code = session.ReasonServerError
	}
	return session.Reason{Code: code, Message: fmt.Sprintf("%d %s", status, phrase)}
}
