// Package config defines the client's single typed, defaulted runtime
// configuration, following the grounding source's Config/ApplyDefaults
// convention used throughout its scheduler and connection packages.
package config

import "time"

// Default values for every tunable, named rather than scattered as magic
// numbers through the component packages. They mirror the original
// implementation's hardcoded constants where it had them.
const (
	DefaultPort                = 6881
	DefaultRespectChoke        = true
	DefaultChokeWait           = 5 * time.Second
	DefaultReconnectWait       = 10 * time.Second
	DefaultDownloadedCheckWait = 2 * time.Second
	DefaultPeerConnectTimeout  = 5 * time.Second
	DefaultPieceRequestWait    = 1 * time.Second
	DefaultDHTChunk            = 8
	DefaultDHTMinPeers         = 10
	DefaultDHTQueryTimeout     = 1 * time.Second
	DefaultDownloadRoot        = "./download"
	DefaultStateFilePath       = "./biter_state.json"
)

// Config carries every runtime tunable named by the design. Zero-valued
// fields are filled in by ApplyDefaults; an explicitly-set field (including
// one explicitly set to the zero value's "meaningful" equivalent, e.g.
// RespectChoke=false) is never overridden.
type Config struct {
	// Port is the TCP port advertised to trackers in announce requests.
	// The client opens no listening socket on it and sends no Port message.
	Port int `yaml:"port"`

	// RespectChoke governs whether the write loop honors a peer's choke
	// state before requesting blocks.
	RespectChoke *bool `yaml:"respect_choke"`

	ChokeWait           time.Duration `yaml:"choke_wait"`
	ReconnectWait       time.Duration `yaml:"reconnect_wait"`
	DownloadedCheckWait time.Duration `yaml:"downloaded_check_wait"`
	PeerConnectTimeout  time.Duration `yaml:"peer_connect_timeout"`
	PieceRequestWait    time.Duration `yaml:"piece_request_wait"`

	DHTChunk        int           `yaml:"dht_chunk"`
	DHTMinPeers     int           `yaml:"dht_min_peers"`
	DHTQueryTimeout time.Duration `yaml:"dht_query_timeout"`

	DownloadRoot  string `yaml:"download_root"`
	StateFilePath string `yaml:"state_file_path"`
}

// ApplyDefaults fills every zero-valued field with its default, leaving any
// explicitly-set field untouched.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.RespectChoke == nil {
		v := DefaultRespectChoke
		c.RespectChoke = &v
	}
	if c.ChokeWait == 0 {
		c.ChokeWait = DefaultChokeWait
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = DefaultReconnectWait
	}
	if c.DownloadedCheckWait == 0 {
		c.DownloadedCheckWait = DefaultDownloadedCheckWait
	}
	if c.PeerConnectTimeout == 0 {
		c.PeerConnectTimeout = DefaultPeerConnectTimeout
	}
	if c.PieceRequestWait == 0 {
		c.PieceRequestWait = DefaultPieceRequestWait
	}
	if c.DHTChunk == 0 {
		c.DHTChunk = DefaultDHTChunk
	}
	if c.DHTMinPeers == 0 {
		c.DHTMinPeers = DefaultDHTMinPeers
	}
	if c.DHTQueryTimeout == 0 {
		c.DHTQueryTimeout = DefaultDHTQueryTimeout
	}
	if c.DownloadRoot == "" {
		c.DownloadRoot = DefaultDownloadRoot
	}
	if c.StateFilePath == "" {
		c.StateFilePath = DefaultStateFilePath
	}
}

// RespectsChoke reports whether the write loop should pause on choke,
// defaulting to true if ApplyDefaults has not yet run.
func (c *Config) RespectsChoke() bool {
	return c.RespectChoke == nil || *c.RespectChoke
}
