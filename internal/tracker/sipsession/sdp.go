package sipsession

import (
	"fmt"
	"strconv"

	psdp "github.com/pion/sdp/v3"
)

// SDP direction attributes per RFC 3264. Hold is signalled by rewriting
// the direction on every media line of the current local description.
const (
	dirSendRecv = "sendrecv"
	dirSendOnly = "sendonly"
	dirRecvOnly = "recvonly"
	dirInactive = "inactive"
)

var directionKeys = map[string]bool{
	dirSendRecv: true,
	dirSendOnly: true,
	dirRecvOnly: true,
	dirInactive: true,
}

// buildOffer creates the local session description for an outgoing call
// or an answer. Audio is always present; a video media line is added for
// video calls.
func buildOffer(localAddr string, audioPort, videoPort int, video bool) ([]byte, error) {
	desc := &psdp.SessionDescription{
		Origin: psdp.Origin{
			Username:       "calltrack",
			SessionID:      1,
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: localAddr,
		},
		SessionName: "CallTrack Session",
		ConnectionInformation: &psdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address: &psdp.Address{
				Address: localAddr,
			},
		},
		TimeDescriptions: []psdp.TimeDescription{
			{
				Timing: psdp.Timing{StartTime: 0, StopTime: 0},
			},
		},
		MediaDescriptions: []*psdp.MediaDescription{
			{
				MediaName: psdp.MediaName{
					Media:   "audio",
					Port:    psdp.RangedPort{Value: audioPort},
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{"0", "8", "101"},
				},
				Attributes: []psdp.Attribute{
					{Key: "rtpmap", Value: "0 PCMU/8000"},
					{Key: "rtpmap", Value: "8 PCMA/8000"},
					{Key: "rtpmap", Value: "101 telephone-event/8000"},
					{Key: "fmtp", Value: "101 0-15"},
					{Key: dirSendRecv},
				},
			},
		},
	}

	if video {
		desc.MediaDescriptions = append(desc.MediaDescriptions, &psdp.MediaDescription{
			MediaName: psdp.MediaName{
				Media:   "video",
				Port:    psdp.RangedPort{Value: videoPort},
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{"96"},
			},
			Attributes: []psdp.Attribute{
				{Key: "rtpmap", Value: "96 H264/90000"},
				{Key: dirSendRecv},
			},
		})
	}

	return desc.Marshal()
}

// rewriteDirection returns body with the direction attribute on every
// media line replaced by dir. The session version is bumped so the peer
// treats the description as new.
func rewriteDirection(body []byte, dir string) ([]byte, error) {
	desc := &psdp.SessionDescription{}
	if err := desc.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("parse SDP: %w", err)
	}
	desc.Origin.SessionVersion++

	for _, media := range desc.MediaDescriptions {
		media.Attributes = setDirection(media.Attributes, dir)
	}
	return desc.Marshal()
}

// rewriteVideoDirection returns body with the direction attribute changed
// on video media lines only. Audio is left untouched, which is what video
// pause needs.
func rewriteVideoDirection(body []byte, dir string) ([]byte, error) {
	desc := &psdp.SessionDescription{}
	if err := desc.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("parse SDP: %w", err)
	}
	desc.Origin.SessionVersion++

	for _, media := range desc.MediaDescriptions {
		if media.MediaName.Media == "video" {
			media.Attributes = setDirection(media.Attributes, dir)
		}
	}
	return desc.Marshal()
}

// dropVideo returns body with every video media line disabled by setting
// its port to zero, per RFC 3264 section 8.2. Used for the downgrade to
// an audio-only call.
func dropVideo(body []byte) ([]byte, error) {
	desc := &psdp.SessionDescription{}
	if err := desc.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("parse SDP: %w", err)
	}
	desc.Origin.SessionVersion++

	for _, media := range desc.MediaDescriptions {
		if media.MediaName.Media == "video" {
			media.MediaName.Port = psdp.RangedPort{Value: 0}
		}
	}
	return desc.Marshal()
}

func parseSDP(body []byte) (*psdp.SessionDescription, error) {
	desc := &psdp.SessionDescription{}
	if err := desc.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("parse SDP: %w", err)
	}
	return desc, nil
}

// setDirection replaces any existing direction attribute with dir,
// appending one if none was present.
func setDirection(attrs []psdp.Attribute, dir string) []psdp.Attribute {
	out := attrs[:0]
	for _, a := range attrs {
		if directionKeys[a.Key] {
			continue
		}
		out = append(out, a)
	}
	return append(out, psdp.Attribute{Key: dir})
}

// hasActiveVideo reports whether body carries a video media line with a
// non-zero port.
func hasActiveVideo(body []byte) bool {
	desc := &psdp.SessionDescription{}
	if err := desc.Unmarshal(body); err != nil {
		return false
	}
	for _, media := range desc.MediaDescriptions {
		if media.MediaName.Media == "video" && media.MediaName.Port.Value > 0 {
			return true
		}
	}
	return false
}

// remoteEndpoint extracts the peer media address from an SDP body. The
// media-level connection line wins over the session-level one.
func remoteEndpoint(body []byte) (string, int, error) {
	desc := &psdp.SessionDescription{}
	if err := desc.Unmarshal(body); err != nil {
		return "", 0, fmt.Errorf("parse SDP: %w", err)
	}
	if len(desc.MediaDescriptions) == 0 {
		return "", 0, fmt.Errorf("no media in SDP")
	}

	media := desc.MediaDescriptions[0]
	port := media.MediaName.Port.Value

	var addr string
	if media.ConnectionInformation != nil && media.ConnectionInformation.Address != nil {
		addr = media.ConnectionInformation.Address.Address
	} else if desc.ConnectionInformation != nil && desc.ConnectionInformation.Address != nil {
		addr = desc.ConnectionInformation.Address.Address
	}
	if addr == "" {
		return "", 0, fmt.Errorf("no connection address in SDP")
	}
	return addr, port, nil
}

// endpointString formats a host and port for transport destinations.
func endpointString(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}
