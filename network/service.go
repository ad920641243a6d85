package network

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Offline is a single-player Link; sends go nowhere and the local peer holds authority
type Offline struct {
	*endpoint
}

func NewOffline(localID string) *Offline {
	e := newEndpoint(localID, 0, zap.NewNop())
	e.send = func([]byte) error { return nil }
	return &Offline{endpoint: e}
}

func (*Offline) Close() error { return nil }

// Open builds the Link for cfg.Role
func Open(ctx context.Context, cfg *Config, logger *zap.Logger) (Link, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LocalID == "" {
		cfg.LocalID = NewPeerID()
	}

	switch cfg.Role {
	case RoleNone:
		return NewOffline(cfg.LocalID), nil
	case RoleHost:
		return ListenHost(cfg, logger)
	case RolePeer:
		return DialHost(ctx, cfg, logger)
	case RoleRelay:
		return DialRelay(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported network role %s", cfg.Role)
	}
}
