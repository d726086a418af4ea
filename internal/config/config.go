package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/peercall/peercall/internal/media"
)

// Default configuration values
const (
	DefaultServer = "ws://localhost:8080"
	DefaultSTUN   = "stun:stun.l.google.com:19302"
)

// Config holds the client-side settings for reaching the broker and the
// ICE infrastructure.
type Config struct {
	// Server is the broker base URL (ws:// or wss://).
	Server string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Options carries CLI flag overrides into Load.
type Options struct {
	Server     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	server := firstOf(opts.Server, os.Getenv("SIGNAL_SERVER"), DefaultServer)
	if !strings.HasPrefix(server, "ws://") && !strings.HasPrefix(server, "wss://") {
		return nil, fmt.Errorf("server URL must use ws:// or wss://: %q", server)
	}

	return &Config{
		Server:     strings.TrimRight(server, "/"),
		STUNServer: firstOf(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer: firstOf(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:   firstOf(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:   firstOf(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
	}, nil
}

// WebSocketURL returns the broker's signaling endpoint.
func (c *Config) WebSocketURL() string {
	return c.Server + "/ws"
}

// ICEConfig assembles the ICE server set for the media engine. TURN entries
// appear only when a TURN server is configured.
func (c *Config) ICEConfig() media.ICEConfig {
	cfg := media.ICEConfig{
		STUNURLs: []string{c.STUNServer},
		TURNUser: c.TURNUser,
		TURNPass: c.TURNPass,
	}
	if c.TURNServer != "" {
		cfg.TURNURLs = []string{
			fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
			fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
		}
	}
	return cfg
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
