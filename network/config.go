package network

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"
)

// Role defines how a peer joins the session
type Role uint8

const (
	RoleNone  Role = iota // Offline, single player
	RoleHost              // Accepts TCP peers and relays between them, holds authority
	RolePeer              // Connects to a host over TCP
	RoleRelay             // Connects to a websocket relay server
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RolePeer:
		return "peer"
	case RoleRelay:
		return "relay"
	default:
		return "none"
	}
}

// ParseRole accepts the String forms, case-insensitive
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "offline":
		return RoleNone, nil
	case "host":
		return RoleHost, nil
	case "peer":
		return RolePeer, nil
	case "relay":
		return RoleRelay, nil
	}
	return RoleNone, fmt.Errorf("unknown network role %q", s)
}

// Config holds network configuration
type Config struct {
	Role Role

	// LocalID names this peer on the wire; empty generates one
	LocalID string

	// Address to bind (host) or connect to (peer), or the relay websocket URL
	Address string

	// TLS configuration for TCP (nil = plaintext)
	TLS *tls.Config

	// Connection limits
	MaxPeers int

	// Timing
	ConnectTimeout    time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	DisconnectTimeout time.Duration

	// Buffer sizes
	SendQueueSize int
	RecvQueueSize int // power of two
}

// DefaultConfig returns production-safe defaults
func DefaultConfig() *Config {
	return &Config{
		Role:              RoleNone,
		Address:           ":7777",
		MaxPeers:          8,
		ConnectTimeout:    5 * time.Second,
		WriteTimeout:      5 * time.Second,
		HeartbeatInterval: 5 * time.Second,
		DisconnectTimeout: 20 * time.Second,
		SendQueueSize:     256,
		RecvQueueSize:     1024,
	}
}
