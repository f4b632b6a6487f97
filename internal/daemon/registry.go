package daemon

import (
	"slices"
	"sync"

	"sxvrs/internal/control"
	"sxvrs/internal/recorder"
)

// Registry holds the running camera supervisors in configuration order,
// along with the names of configured cameras that were disabled.
type Registry struct {
	mu         sync.RWMutex
	order      []string
	configured []string
	byKey      map[string]*recorder.Supervisor
}

func newRegistry() *Registry {
	return &Registry{byKey: make(map[string]*recorder.Supervisor)}
}

func (r *Registry) add(s *recorder.Supervisor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[s.Name()]; ok {
		return
	}
	r.order = append(r.order, s.Name())
	r.configured = append(r.configured, s.Name())
	r.byKey[s.Name()] = s
}

// addDisabled records a configured camera that has no supervisor.
func (r *Registry) addDisabled(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.configured, name) {
		return
	}
	r.configured = append(r.configured, name)
}

// reset drops every supervisor and name so the next start rebuilds them.
func (r *Registry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.configured = nil
	r.byKey = make(map[string]*recorder.Supervisor)
}

// Names returns every configured camera name in configuration order,
// including disabled cameras.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.configured))
	copy(out, r.configured)
	return out
}

// Lookup implements control.Registry.
func (r *Registry) Lookup(name string) (control.Camera, bool) {
	s, ok := r.Supervisor(name)
	if !ok {
		return nil, false
	}
	return s, true
}

// Supervisor resolves a camera by name, ignoring case.
func (r *Registry) Supervisor(name string) (*recorder.Supervisor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byKey[name]; ok {
		return s, true
	}
	folded := control.Fold(name)
	for _, key := range r.order {
		if control.Fold(key) == folded {
			return r.byKey[key], true
		}
	}
	return nil, false
}

// All returns the supervisors in configuration order.
func (r *Registry) All() []*recorder.Supervisor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*recorder.Supervisor, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byKey[key])
	}
	return out
}

// Len returns the number of registered cameras.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
