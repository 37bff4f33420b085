package tracker

import (
	"context"
	"strings"
	"testing"

	"github.com/sebas/calltrack/internal/tracker/carrier"
	"github.com/sebas/calltrack/internal/tracker/session"
)

func meteredConfig(pause bool) *carrier.Config {
	values := map[string]string{
		carrier.KeyMeteredVideo:      "true",
		carrier.KeySupportVideoPause: "false",
	}
	if pause {
		values[carrier.KeySupportVideoPause] = "true"
	}
	return carrier.New(values, nil)
}

func TestDataDisabledPausesVideo(t *testing.T) {
	p := newFakeProvider()
	tr := startTracker(t, p, WithCarrierConfig(meteredConfig(true)))
	ctx := context.Background()

	_, sess := establishCallVideo(t, tr, p, "100")

	if err := tr.SetDataEnabled(ctx, false); err != nil {
		t.Fatalf("SetDataEnabled(false) error = %v", err)
	}
	if sess.opCount("pause_video") != 1 {
		t.Fatal("video not paused on data disable")
	}

	fg := slotByRole(snapshot(t, tr), "foreground")
	if len(fg.Connections) != 1 || !strings.Contains(fg.Connections[0].VideoState, "paused") {
		t.Errorf("video state = %+v, want paused", fg.Connections)
	}

	if err := tr.SetDataEnabled(ctx, true); err != nil {
		t.Fatalf("SetDataEnabled(true) error = %v", err)
	}
	if sess.opCount("resume_video") != 1 {
		t.Error("data-paused video not resumed on re-enable")
	}
	fg = slotByRole(snapshot(t, tr), "foreground")
	if strings.Contains(fg.Connections[0].VideoState, "paused") {
		t.Errorf("video still paused after resume: %s", fg.Connections[0].VideoState)
	}
}

func TestDataDisabledDowngradesWhenSupported(t *testing.T) {
	p := newFakeProvider()
	p.caps = session.Capabilities{DowngradeLocal: true}
	tr := startTracker(t, p, WithCarrierConfig(meteredConfig(true)))

	_, sess := establishCallVideo(t, tr, p, "100")

	if err := tr.SetDataEnabled(context.Background(), false); err != nil {
		t.Fatalf("SetDataEnabled() error = %v", err)
	}
	if sess.opCount("downgrade") != 1 {
		t.Error("downgrade not issued despite capability")
	}
	if sess.opCount("pause_video") != 0 {
		t.Error("pause issued although downgrade was available")
	}
	fg := slotByRole(snapshot(t, tr), "foreground")
	if got := fg.Connections[0].VideoState; got != "audio-only" {
		t.Errorf("video state = %s, want audio-only", got)
	}
}

func TestDataDisabledTerminatesAsLastResort(t *testing.T) {
	p := newFakeProvider()
	tr := startTracker(t, p, WithCarrierConfig(meteredConfig(false)))

	_, sess := establishCallVideo(t, tr, p, "100")

	if err := tr.SetDataEnabled(context.Background(), false); err != nil {
		t.Fatalf("SetDataEnabled() error = %v", err)
	}
	if sess.opCount("terminate:DataDisabled") != 1 {
		t.Error("video call not terminated when neither downgrade nor pause available")
	}
}

func TestDataPolicySkipsWiFiVideo(t *testing.T) {
	p := newFakeProvider()
	p.tech = session.AccessTechWiFi
	tr := startTracker(t, p, WithCarrierConfig(meteredConfig(true)))

	_, sess := establishCallVideo(t, tr, p, "100")

	if err := tr.SetDataEnabled(context.Background(), false); err != nil {
		t.Fatalf("SetDataEnabled() error = %v", err)
	}
	for _, op := range []string{"pause_video", "downgrade", "terminate:DataDisabled"} {
		if sess.opCount(op) != 0 {
			t.Errorf("%s issued on a WiFi video call", op)
		}
	}
}

func TestDataPolicyInactiveWhenNotMetered(t *testing.T) {
	p := newFakeProvider()
	cfg := carrier.New(map[string]string{carrier.KeyMeteredVideo: "false"}, nil)
	tr := startTracker(t, p, WithCarrierConfig(cfg))

	_, sess := establishCallVideo(t, tr, p, "100")

	if err := tr.SetDataEnabled(context.Background(), false); err != nil {
		t.Fatalf("SetDataEnabled() error = %v", err)
	}
	for _, op := range []string{"pause_video", "downgrade", "terminate:DataDisabled"} {
		if sess.opCount(op) != 0 {
			t.Errorf("%s issued although video is not metered", op)
		}
	}
}

func TestDataPolicySkipsAudioCalls(t *testing.T) {
	p := newFakeProvider()
	tr := startTracker(t, p, WithCarrierConfig(meteredConfig(true)))

	_, sess := establishCall(t, tr, p, "100")

	if err := tr.SetDataEnabled(context.Background(), false); err != nil {
		t.Fatalf("SetDataEnabled() error = %v", err)
	}
	for _, op := range []string{"pause_video", "downgrade", "terminate:DataDisabled"} {
		if sess.opCount(op) != 0 {
			t.Errorf("%s issued on an audio call", op)
		}
	}
}
