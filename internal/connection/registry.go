package connection

import (
	"fmt"
	"sync"

	"github.com/tokenproof/ticket-gate/internal/config"
)

// Registry holds one connection manager per configured chain
type Registry struct {
	mu       sync.RWMutex
	managers map[string]*ConnectionManager
}

// NewRegistry builds managers for every configured chain
func NewRegistry(chains map[string]config.ChainConfig) *Registry {
	managers := make(map[string]*ConnectionManager, len(chains))
	for chainID := range chains {
		cfg := chains[chainID]
		managers[chainID] = NewConnectionManager(chainID, &cfg)
	}
	return &Registry{managers: managers}
}

// Get returns the manager for a chain id
func (r *Registry) Get(chainID string) (*ConnectionManager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cm, ok := r.managers[chainID]
	if !ok {
		return nil, fmt.Errorf("no node configured for chain %s", chainID)
	}
	return cm, nil
}

// ChainIDs lists the configured chain ids
func (r *Registry) ChainIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.managers))
	for id := range r.managers {
		ids = append(ids, id)
	}
	return ids
}

// Close closes every managed connection
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, cm := range r.managers {
		if err := cm.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
