package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health is a snapshot of one client's circuit and its recent outcomes.
type Health struct {
	Name                string     `json:"name"`
	State               string     `json:"state"`
	Requests            uint32     `json:"requests"`
	ConsecutiveFailures uint32     `json:"consecutive_failures"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
}

// Healthy reports whether the circuit is closed.
func (h Health) Healthy() bool {
	return h.State == gobreaker.StateClosed.String()
}

// Registry tracks clients and the outcome of their last calls. It backs the
// ops status endpoint.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*tracked
}

type tracked struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*tracked)}
}

// Register adds client under its name, replacing any previous one.
func (r *Registry) Register(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.Name()] = &tracked{client: client}
}

// RecordSuccess notes a successful call.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.clients[name]; ok {
		now := time.Now()
		t.lastSuccessAt = &now
	}
}

// RecordFailure notes a failed call.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.clients[name]; ok {
		now := time.Now()
		t.lastFailureAt = &now
		if err != nil {
			t.lastError = err.Error()
		}
	}
}

// Health returns the snapshot for name.
func (r *Registry) Health(name string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.clients[name]
	if !ok {
		return Health{}, false
	}
	return t.snapshot(name), true
}

// All returns a snapshot of every client, ordered by name.
func (r *Registry) All() []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Health, 0, len(r.clients))
	for name, t := range r.clients {
		all = append(all, t.snapshot(name))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

func (t *tracked) snapshot(name string) Health {
	counts := t.client.Counts()
	return Health{
		Name:                name,
		State:               t.client.State().String(),
		Requests:            counts.Requests,
		ConsecutiveFailures: counts.ConsecutiveFailures,
		LastSuccessAt:       t.lastSuccessAt,
		LastFailureAt:       t.lastFailureAt,
		LastError:           t.lastError,
	}
}
