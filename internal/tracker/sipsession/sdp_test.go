package sipsession

import (
	"strings"
	"testing"

	"github.com/emiago/sipgo/sip"
)

func TestBuildOfferAudioOnly(t *testing.T) {
	body, err := buildOffer("192.168.1.10", 4000, 4002, false)
	if err != nil {
		t.Fatalf("buildOffer() error = %v", err)
	}
	s := string(body)
	if !strings.Contains(s, "m=audio 4000") {
		t.Errorf("offer missing audio media line:\n%s", s)
	}
	if strings.Contains(s, "m=video") {
		t.Errorf("audio-only offer contains a video media line:\n%s", s)
	}
	if !strings.Contains(s, "a=sendrecv") {
		t.Errorf("offer missing sendrecv direction:\n%s", s)
	}
	if hasActiveVideo(body) {
		t.Error("hasActiveVideo() = true for an audio-only offer")
	}
}

func TestBuildOfferVideo(t *testing.T) {
	body, err := buildOffer("192.168.1.10", 4000, 4002, true)
	if err != nil {
		t.Fatalf("buildOffer() error = %v", err)
	}
	s := string(body)
	if !strings.Contains(s, "m=video 4002") {
		t.Errorf("video offer missing video media line:\n%s", s)
	}
	if !hasActiveVideo(body) {
		t.Error("hasActiveVideo() = false for a video offer")
	}
}

func TestRewriteDirection(t *testing.T) {
	body, err := buildOffer("10.0.0.1", 4000, 4002, true)
	if err != nil {
		t.Fatalf("buildOffer() error = %v", err)
	}

	held, err := rewriteDirection(body, dirSendOnly)
	if err != nil {
		t.Fatalf("rewriteDirection() error = %v", err)
	}
	s := string(held)
	if strings.Contains(s, "a=sendrecv") {
		t.Errorf("held SDP still carries sendrecv:\n%s", s)
	}
	if got := strings.Count(s, "a=sendonly"); got != 2 {
		t.Errorf("sendonly attribute count = %d, want 2 (audio and video)", got)
	}

	resumed, err := rewriteDirection(held, dirSendRecv)
	if err != nil {
		t.Fatalf("rewriteDirection() error = %v", err)
	}
	if strings.Contains(string(resumed), "a=sendonly") {
		t.Errorf("resumed SDP still carries sendonly:\n%s", resumed)
	}
}

func TestRewriteVideoDirectionLeavesAudio(t *testing.T) {
	body, err := buildOffer("10.0.0.1", 4000, 4002, true)
	if err != nil {
		t.Fatalf("buildOffer() error = %v", err)
	}

	paused, err := rewriteVideoDirection(body, dirSendOnly)
	if err != nil {
		t.Fatalf("rewriteVideoDirection() error = %v", err)
	}
	s := string(paused)
	if got := strings.Count(s, "a=sendonly"); got != 1 {
		t.Errorf("sendonly attribute count = %d, want 1 (video only)", got)
	}
	if got := strings.Count(s, "a=sendrecv"); got != 1 {
		t.Errorf("sendrecv attribute count = %d, want 1 (audio untouched)", got)
	}
}

func TestDropVideo(t *testing.T) {
	body, err := buildOffer("10.0.0.1", 4000, 4002, true)
	if err != nil {
		t.Fatalf("buildOffer() error = %v", err)
	}

	audioOnly, err := dropVideo(body)
	if err != nil {
		t.Fatalf("dropVideo() error = %v", err)
	}
	if !strings.Contains(string(audioOnly), "m=video 0") {
		t.Errorf("dropped video media line should have port 0:\n%s", audioOnly)
	}
	if hasActiveVideo(audioOnly) {
		t.Error("hasActiveVideo() = true after dropVideo")
	}
	if !strings.Contains(string(audioOnly), "m=audio 4000") {
		t.Errorf("audio media line lost during downgrade:\n%s", audioOnly)
	}
}

func TestRemoteEndpoint(t *testing.T) {
	body, err := buildOffer("203.0.113.7", 4000, 4002, false)
	if err != nil {
		t.Fatalf("buildOffer() error = %v", err)
	}

	addr, port, err := remoteEndpoint(body)
	if err != nil {
		t.Fatalf("remoteEndpoint() error = %v", err)
	}
	if addr != "203.0.113.7" || port != 4000 {
		t.Errorf("remoteEndpoint() = %s:%d, want 203.0.113.7:4000", addr, port)
	}
}

func TestRemoteEndpointRejectsGarbage(t *testing.T) {
	if _, _, err := remoteEndpoint([]byte("not an sdp body")); err == nil {
		t.Error("remoteEndpoint() accepted a non-SDP body")
	}
}

func TestRemoteDirection(t *testing.T) {
	body, err := buildOffer("10.0.0.1", 4000, 4002, false)
	if err != nil {
		t.Fatalf("buildOffer() error = %v", err)
	}
	if got := remoteDirection(body); got != dirSendRecv {
		t.Errorf("remoteDirection() = %q, want %q", got, dirSendRecv)
	}

	held, err := rewriteDirection(body, dirInactive)
	if err != nil {
		t.Fatalf("rewriteDirection() error = %v", err)
	}
	if got := remoteDirection(held); got != dirInactive {
		t.Errorf("remoteDirection() = %q, want %q", got, dirInactive)
	}
}

func TestStatusReason(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{404, "InvalidNumber"},
		{408, "Timeout"},
		{480, "Unreachable"},
		{486, "Busy"},
		{603, "Busy"},
		{503, "Congestion"},
		{500, "ServerError"},
	}
	for _, tt := range tests {
		got := statusReason(sip.StatusCode(tt.status), "test")
		if got.Code.String() != tt.want {
			t.Errorf("statusReason(%d) = %s, want %s", tt.status, got.Code, tt.want)
		}
	}
}
