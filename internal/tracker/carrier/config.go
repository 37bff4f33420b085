// Package carrier holds the carrier configuration bundle: a flat
// key/value map of feature flags plus the disconnect-cause remap table.
// The tracker reads the bundle once per config-change event.
package carrier

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/sebas/calltrack/internal/tracker/cause"
)

// Feature flag keys understood by the tracker.
const (
	// KeyMeteredVideo enables the metered-video policy: video calls on
	// cellular bearers are downgraded, paused or dropped when mobile
	// data is disabled.
	KeyMeteredVideo = "metered_video_calls"

	// KeySupportVideoPause enables pausing video instead of downgrading
	// when data is disabled.
	KeySupportVideoPause = "support_video_pause"

	// KeyAllowEmergencyVideo permits video on emergency calls.
	KeyAllowEmergencyVideo = "allow_emergency_video"

	// KeyDropWiFiVideoOnAudioAnswer makes answering an incoming audio
	// call hang up an active video-over-WiFi call instead of holding it.
	KeyDropWiFiVideoOnAudioAnswer = "drop_wifi_video_on_audio_answer"
)

// fileFormat is the on-disk JSON shape of a carrier bundle.
type fileFormat struct {
	Version string            `json:"version"`
	Values  map[string]string `json:"values"`
	Remap   []cause.RemapEntry `json:"cause_remap"`
}

// Config is one immutable carrier configuration bundle. The tracker
// swaps in a whole new bundle on each config-change event, so readers
// never see a partially updated bundle.
type Config struct {
	values map[string]string
	remap  cause.RemapTable
}

// New creates a bundle from a flat value map and remap table.
func New(values map[string]string, remap cause.RemapTable) *Config {
	if values == nil {
		values = map[string]string{}
	}
	return &Config{values: values, remap: remap}
}

// Default returns the bundle used when no carrier file is configured.
func Default() *Config {
	return New(map[string]string{
		KeyMeteredVideo:      "true",
		KeySupportVideoPause: "true",
	}, nil)
}

// LoadFile reads a carrier bundle from a JSON file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read carrier config: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse carrier config: %w", err)
	}

	cfg := New(f.Values, cause.RemapTable(f.Remap))
	slog.Info("[Carrier] Loaded config",
		"path", path,
		"values", len(f.Values),
		"remap_entries", len(f.Remap),
		"version", f.Version,
	)
	return cfg, nil
}

// Bool returns the boolean value for key, or def when absent or invalid.
func (c *Config) Bool(key string, def bool) bool {
	v, ok := c.values[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Int returns the integer value for key, or def when absent or invalid.
func (c *Config) Int(key string, def int) int {
	v, ok := c.values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// String returns the string value for key, or def when absent.
func (c *Config) String(key, def string) string {
	if v, ok := c.values[key]; ok {
		return v
	}
	return def
}

// Remap returns the disconnect-cause remap table.
func (c *Config) Remap() cause.RemapTable {
	return c.remap
}
