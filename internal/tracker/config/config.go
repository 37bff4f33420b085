// Package config loads the tracker configuration from command line
// flags and environment variables.
package config

import (
	"flag"
	"net"
	"os"
	"strconv"
	"time"
)

// Config holds the call tracker configuration.
type Config struct {
	// SIP settings
	SIPPort       int
	BindAddr      string // Address to bind for listening
	AdvertiseAddr string // Address to advertise in SIP headers
	ProxyAddr     string // Network proxy outgoing calls are routed to
	User          string // Local identity for the From header
	DialTimeout   time.Duration

	// Media endpoint advertised in SDP offers
	MediaAddr string
	AudioPort int
	VideoPort int

	// HTTP API
	APIAddr string

	// Carrier settings
	CarrierConfigPath string // Path to the carrier config JSON file

	LogLevel string
}

// Load loads configuration from command line flags and environment variables.
func Load() *Config {
	cfg := &Config{
		DialTimeout: 60 * time.Second,
	}

	flag.IntVar(&cfg.SIPPort, "port", 5060, "SIP listening port")
	flag.StringVar(&cfg.BindAddr, "bind", "0.0.0.0", "SIP bind address")
	flag.StringVar(&cfg.AdvertiseAddr, "advertise", "", "Address to advertise in SIP headers (auto-detected if not set)")
	flag.StringVar(&cfg.ProxyAddr, "proxy", "localhost:5070", "SIP proxy for outgoing calls")
	flag.StringVar(&cfg.User, "user", "calltrack", "Local SIP identity")
	flag.StringVar(&cfg.MediaAddr, "media", "", "Media address for SDP offers (defaults to advertise address)")
	flag.IntVar(&cfg.AudioPort, "audio-port", 4000, "Audio RTP port advertised in SDP")
	flag.IntVar(&cfg.VideoPort, "video-port", 4002, "Video RTP port advertised in SDP")
	flag.StringVar(&cfg.APIAddr, "api", "0.0.0.0:8080", "HTTP API listen address")
	flag.StringVar(&cfg.CarrierConfigPath, "carrier", "", "Path to carrier configuration file")
	flag.StringVar(&cfg.LogLevel, "loglevel", "info", "Log level (debug, info, warn, error)")

	flag.Parse()

	// Override with environment variables if set
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.SIPPort = p
		}
	}
	if bind := os.Getenv("BIND"); bind != "" {
		cfg.BindAddr = bind
	}
	if advertise := os.Getenv("ADVERTISE"); advertise != "" {
		cfg.AdvertiseAddr = advertise
	}
	if cfg.AdvertiseAddr == "" || !isValidAddress(cfg.AdvertiseAddr) {
		cfg.AdvertiseAddr = getPrimaryInterfaceIP()
	}
	if proxy := os.Getenv("PROXY"); proxy != "" {
		cfg.ProxyAddr = proxy
	}
	if user := os.Getenv("SIP_USER"); user != "" {
		cfg.User = user
	}
	if api := os.Getenv("API_ADDR"); api != "" {
		cfg.APIAddr = api
	}
	if carrier := os.Getenv("CARRIER_CONFIG"); carrier != "" {
		cfg.CarrierConfigPath = carrier
	}
	if loglevel := os.Getenv("LOGLEVEL"); loglevel != "" {
		cfg.LogLevel = loglevel
	}
	if cfg.MediaAddr == "" {
		cfg.MediaAddr = cfg.AdvertiseAddr
	}

	return cfg
}

// isValidAddress checks if the address is a valid IP or resolvable hostname.
func isValidAddress(addr string) bool {
	if ip := net.ParseIP(addr); ip != nil {
		return true
	}
	if ips, err := net.LookupIP(addr); err == nil && len(ips) > 0 {
		return true
	}
	return false
}

// getPrimaryInterfaceIP detects the primary network interface IP address.
func getPrimaryInterfaceIP() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "127.0.0.1"
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}

	return "127.0.0.1"
}
