// Package session holds the signed-in user and the stable identity of this
// device.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/config"
)

type Provider struct {
	deviceID string

	mu     sync.RWMutex
	userID string
}

// New returns a provider for cfg. A device id is generated on first run and
// written back to path so the snapshot key survives restarts.
func New(cfg *config.Config, path string) (*Provider, error) {
	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
		if err := config.Save(path, cfg); err != nil {
			return nil, fmt.Errorf("persist device id: %w", err)
		}
	}
	return &Provider{deviceID: cfg.DeviceID, userID: cfg.UserID}, nil
}

func (p *Provider) DeviceID() string { return p.deviceID }

func (p *Provider) ActiveUserID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.userID
}

func (p *Provider) SignIn(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userID = userID
}

func (p *Provider) SignOut() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userID = ""
}
