package tracker

import (
	"context"

	"github.com/sebas/calltrack/internal/tracker/call"
	"github.com/sebas/calltrack/internal/tracker/carrier"
	"github.com/sebas/calltrack/internal/tracker/session"
)

// SetDataEnabled feeds the mobile-data state into the video policy
// engine. When the carrier meters video and data goes away, every active
// video call on a cellular bearer is downgraded to audio, or paused, or
// terminated, in that order of preference. When data comes back, only
// the videos this policy paused are resumed.
func (t *Tracker) SetDataEnabled(ctx context.Context, enabled bool) error {
	return t.exec(ctx, func() error {
		if t.dataEnabled == enabled {
			return nil
		}
		t.dataEnabled = enabled
		t.logger.Info("[Policy] Mobile data state changed", "enabled", enabled)

		if !t.carrier.Bool(carrier.KeyMeteredVideo, false) {
			return nil
		}
		if enabled {
			t.resumeDataPausedVideo()
		} else {
			for _, slot := range []*call.Slot{t.foreground, t.background} {
				for _, conn := range slot.Connections() {
					t.applyVideoPolicy(conn)
				}
			}
		}
		return nil
	})
}

// applyVideoPolicyIfMetered applies the data policy to one connection,
// honoring the carrier's metered-video flag. Used on handover and on
// calls that start while data is already disabled.
func (t *Tracker) applyVideoPolicyIfMetered(conn *call.Connection) {
	if !t.carrier.Bool(carrier.KeyMeteredVideo, false) {
		return
	}
	t.applyVideoPolicy(conn)
}

// applyVideoPolicy enforces the data-disabled rule on one connection:
// downgrade if the session can renegotiate, else pause if the carrier
// supports it, else terminate. Only active video on a non-WiFi bearer is
// affected.
func (t *Tracker) applyVideoPolicy(conn *call.Connection) {
	sess := conn.Session()
	if sess == nil || !conn.State().IsAlive() {
		return
	}
	if !conn.VideoState().HasVideo() || conn.VideoState().IsPaused() {
		return
	}
	if sess.AccessTech() == session.AccessTechWiFi {
		return
	}

	switch {
	case sess.Capabilities().CanDowngrade():
		if err := sess.DowngradeToAudio(t.runCtx); err != nil {
			t.logger.Warn("[Policy] Downgrade request failed", "connection_id", conn.ID(), "error", err)
			return
		}
		conn.SetVideoState(call.VideoNone)
		t.logger.Info("[Policy] Video downgraded to audio", "connection_id", conn.ID())

	case t.carrier.Bool(carrier.KeySupportVideoPause, false):
		if err := sess.PauseVideo(t.runCtx); err != nil {
			t.logger.Warn("[Policy] Pause request failed", "connection_id", conn.ID(), "error", err)
			return
		}
		conn.SetVideoState(conn.VideoState() | call.VideoPaused)
		t.pausedByData[conn.ID()] = true
		t.logger.Info("[Policy] Video paused", "connection_id", conn.ID())

	default:
		_ = sess.Terminate(t.runCtx, session.ReasonDataDisabled)
		conn.SetState(call.StateDisconnecting)
		t.publishSlotState(conn.Slot())
		t.logger.Info("[Policy] Video call terminated, data disabled", "connection_id", conn.ID())
	}
}

// resumeDataPausedVideo resumes only the videos paused by the data
// policy. A video paused for any other reason stays paused.
func (t *Tracker) resumeDataPausedVideo() {
	for connID := range t.pausedByData {
		conn, ok := t.conns[connID]
		if !ok {
			delete(t.pausedByData, connID)
			continue
		}
		sess := conn.Session()
		if sess == nil || !conn.State().IsAlive() || !conn.VideoState().IsPaused() {
			delete(t.pausedByData, connID)
			continue
		}
		if err := sess.ResumeVideo(t.runCtx); err != nil {
			t.logger.Warn("[Policy] Video resume failed", "connection_id", conn.ID(), "error", err)
			continue
		}
		conn.SetVideoState(conn.VideoState() &^ call.VideoPaused)
		delete(t.pausedByData, connID)
		t.logger.Info("[Policy] Video resumed", "connection_id", conn.ID())
	}
}
