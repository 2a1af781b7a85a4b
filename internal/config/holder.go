package config

import "sync"

// Holder guards the live configuration. Readers take a Snapshot, which is a
// copy, so a change never alters a pipeline that is already running.
type Holder struct {
	mu     sync.RWMutex
	config Config
}

// NewHolder creates a holder seeded with cfg
func NewHolder(cfg Config) *Holder {
	return &Holder{config: cfg}
}

// Snapshot returns a copy of the current configuration
func (h *Holder) Snapshot() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Update validates and replaces the current configuration
func (h *Holder) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.config = cfg
	return nil
}
