package tracker

import (
	"context"
	"time"

	"github.com/sebas/calltrack/internal/tracker/call"
	"github.com/sebas/calltrack/internal/tracker/cause"
	"github.com/sebas/calltrack/internal/tracker/store"
)

// ConnectionInfo is a point-in-time view of one connection.
type ConnectionInfo struct {
	ID          string    `json:"id"`
	Address     string    `json:"address"`
	Direction   string    `json:"direction"`
	State       string    `json:"state"`
	VideoState  string    `json:"video_state"`
	Cause       string    `json:"cause,omitempty"`
	Emergency   bool      `json:"emergency,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ConnectedAt time.Time `json:"connected_at,omitzero"`
}

// SlotInfo is a point-in-time view of one call slot.
type SlotInfo struct {
	Role        string           `json:"role"`
	State       string           `json:"state"`
	Connections []ConnectionInfo `json:"connections"`
}

// Snapshot is a consistent point-in-time view of the tracker, taken on
// the event loop.
type Snapshot struct {
	PhoneState    string     `json:"phone_state"`
	HoldSwapState string     `json:"hold_swap_state"`
	DataEnabled   bool       `json:"data_enabled"`
	PendingDial   string     `json:"pending_dial,omitempty"`
	Slots         []SlotInfo `json:"slots"`
}

// Snapshot returns the current tracker state.
func (t *Tracker) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := t.exec(ctx, func() error {
		snap = Snapshot{
			PhoneState:    t.phoneState.String(),
			HoldSwapState: t.HoldSwapState().String(),
			DataEnabled:   t.dataEnabled,
		}
		if t.pendingMO != nil {
			snap.PendingDial = t.pendingMO.ID()
		}
		for _, s := range []*call.Slot{t.ringing, t.foreground, t.background, t.handover} {
			snap.Slots = append(snap.Slots, slotInfo(s))
		}
		return nil
	})
	return snap, err
}

func slotInfo(s *call.Slot) SlotInfo {
	info := SlotInfo{
		Role:        s.Role().String(),
		State:       s.State().String(),
		Connections: []ConnectionInfo{},
	}
	for _, c := range s.Connections() {
		ci := ConnectionInfo{
			ID:          c.ID(),
			Address:     c.Address(),
			Direction:   c.Direction().String(),
			State:       c.State().String(),
			VideoState:  c.VideoState().String(),
			Emergency:   c.Emergency(),
			CreatedAt:   c.CreateTime(),
			ConnectedAt: c.ConnectTime(),
		}
		if dc := c.Cause(); dc != cause.NotDisconnected {
			ci.Cause = dc.String()
		}
		info.Connections = append(info.Connections, ci)
	}
	return info
}

// Records exposes the call record repository, for the API layer.
func (t *Tracker) Records() store.Repository {
	return t.records
}
