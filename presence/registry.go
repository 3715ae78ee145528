package presence

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks which users currently hold at least one live gateway
// connection. It is deliberately narrow so it can be backed by a
// process-local map or a shared Redis store without changing callers.
type Registry interface {
	RegisterConnection(ctx context.Context, connID string, userID uuid.UUID) error
	UnregisterConnection(ctx context.Context, connID string) error
	IsOnline(ctx context.Context, userID uuid.UUID) (bool, error)
	ListOnlineUserIDs(ctx context.Context) ([]uuid.UUID, error)
	Close() error
}

// memoryRegistry is the default single-process backend. State is rebuilt
// from zero on restart; every user appears offline until they reconnect.
type memoryRegistry struct {
	mu sync.RWMutex
	// conn -> user, and user -> set of conns for multi-device users.
	connUser  map[string]uuid.UUID
	userConns map[uuid.UUID]map[string]struct{}
}

// NewMemoryRegistry creates the in-memory presence backend.
func NewMemoryRegistry() Registry {
	return &memoryRegistry{
		connUser:  make(map[string]uuid.UUID),
		userConns: make(map[uuid.UUID]map[string]struct{}),
	}
}

func (r *memoryRegistry) RegisterConnection(_ context.Context, connID string, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connUser[connID] = userID
	conns, ok := r.userConns[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.userConns[userID] = conns
	}
	conns[connID] = struct{}{}
	return nil
}

func (r *memoryRegistry) UnregisterConnection(_ context.Context, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.connUser[connID]
	if !ok {
		return nil
	}
	delete(r.connUser, connID)
	if conns, ok := r.userConns[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.userConns, userID)
		}
	}
	return nil
}

func (r *memoryRegistry) IsOnline(_ context.Context, userID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userConns[userID]) > 0, nil
}

func (r *memoryRegistry) ListOnlineUserIDs(_ context.Context) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(r.userConns))
	for userID := range r.userConns {
		ids = append(ids, userID)
	}
	return ids, nil
}

func (r *memoryRegistry) Close() error {
	return nil
}
