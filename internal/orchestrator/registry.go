package orchestrator

import "sync"

// Evictable is implemented by Connection; kept narrow so registry_test can
// use a stub without pulling in the whole Connection dependency graph.
type Evictable interface {
	Evict()
}

// Registry tracks the single live Connection per device_id, evicting a
// stale connection (close code 4000) when a newer one supersedes it —
// grounded on original_source's device-session handling in api/websocket.py.
type Registry struct {
	mu      sync.Mutex
	devices map[string]Evictable
}

func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]Evictable)}
}

// Register installs conn as the live connection for deviceID, evicting and
// returning whatever connection previously held that slot (nil if none).
func (r *Registry) Register(deviceID string, conn Evictable) Evictable {
	r.mu.Lock()
	prev := r.devices[deviceID]
	r.devices[deviceID] = conn
	r.mu.Unlock()

	if prev != nil {
		prev.Evict()
	}
	return prev
}

// Unregister removes deviceID from the registry, but only if conn is still
// the current holder (a connection that already lost a race to a newer one
// must not clobber the newer registration on its own cleanup path).
func (r *Registry) Unregister(deviceID string, conn Evictable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.devices[deviceID] == conn {
		delete(r.devices, deviceID)
	}
}

// Len reports the number of currently registered devices.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}
