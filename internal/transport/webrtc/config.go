// Package webrtc wraps pion peer connections for calls: vanilla ICE
// offer/answer, an ordered data channel and switchable media tracks.
package webrtc

import (
	"time"

	"github.com/pion/webrtc/v3"
)

const (
	dataChannelLabel    = "chat"
	dataChannelProtocol = "ao-chat"

	defaultGatherTimeout = 10 * time.Second
)

var defaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
	"stun:stun4.l.google.com:19302",
}

type Config struct {
	STUNServers   []string      `yaml:"stun_servers"`
	GatherTimeout time.Duration `yaml:"gather_timeout"`
	// IncludeLoopback adds loopback candidates, for peers on one machine.
	IncludeLoopback bool `yaml:"include_loopback"`
}

func DefaultConfig() Config {
	return Config{
		STUNServers:   append([]string(nil), defaultSTUNServers...),
		GatherTimeout: defaultGatherTimeout,
	}
}

func DefaultSTUNConfig() webrtc.Configuration {
	return DefaultConfig().Configuration()
}

func (c Config) Configuration() webrtc.Configuration {
	var servers []webrtc.ICEServer
	if len(c.STUNServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: c.STUNServers}}
	}
	return webrtc.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
	}
}

func DefaultDataChannelConfig() *webrtc.DataChannelInit {
	protocolName := dataChannelProtocol
	ordered := true
	return &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: nil,
		Protocol:       &protocolName,
	}
}
