package stream

import (
	"log"
	"sync"
)

// listenerBuffer is the per-listener send buffer. A listener that falls this
// far behind is considered dead and dropped.
const listenerBuffer = 64

// Listener receives the ordered message stream for one call. The registry
// owns the channel once registered and closes it when the listener is
// removed, whether by Unregister or by being dropped during broadcast.
type Listener chan []byte

// NewListener allocates a listener channel with the standard buffer.
func NewListener() Listener {
	return make(Listener, listenerBuffer)
}

// Registry tracks the listeners subscribed to each call. Lookup of a call's
// entry takes the registry lock; membership changes and broadcast take only
// that call's lock, so fan-out on one call never blocks another.
type Registry struct {
	mu     sync.RWMutex
	calls  map[string]*callListeners
	onDrop func(callID string)
	logger *log.Logger
}

type callListeners struct {
	mu      sync.Mutex
	members map[Listener]struct{}
}

func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{
		calls:  make(map[string]*callListeners),
		logger: logger,
	}
}

// OnDrop installs a hook invoked once per slow listener dropped during
// broadcast, after the call's lock is released. Set it during wiring,
// before any listener registers.
func (r *Registry) OnDrop(fn func(callID string)) {
	r.onDrop = fn
}

// Register subscribes a listener to a call. Multiple listeners per call are
// expected.
func (r *Registry) Register(callID string, l Listener) {
	r.mu.Lock()
	entry, ok := r.calls[callID]
	if !ok {
		entry = &callListeners{members: make(map[Listener]struct{})}
		r.calls[callID] = entry
	}
	entry.mu.Lock()
	entry.members[l] = struct{}{}
	entry.mu.Unlock()
	r.mu.Unlock()

	r.logger.Printf("stream: listener registered for call %s", callID)
}

// Unregister removes a listener and closes its channel. When the last
// listener for a call goes away the entry itself is dropped so the registry
// does not accumulate empty sets. The emission task for the call is governed
// separately and keeps running.
func (r *Registry) Unregister(callID string, l Listener) {
	r.mu.Lock()
	entry, ok := r.calls[callID]
	r.mu.Unlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	if _, member := entry.members[l]; member {
		delete(entry.members, l)
		close(l)
	}
	empty := len(entry.members) == 0
	entry.mu.Unlock()

	if empty {
		r.mu.Lock()
		// Re-check under the write lock; a Register may have raced in.
		entry.mu.Lock()
		if len(entry.members) == 0 && r.calls[callID] == entry {
			delete(r.calls, callID)
		}
		entry.mu.Unlock()
		r.mu.Unlock()
	}

	r.logger.Printf("stream: listener unregistered from call %s", callID)
}

// Broadcast delivers msg to every listener of the call, in registration-set
// iteration order, without blocking. A listener whose buffer is full is
// dropped and its channel closed; delivery continues to the rest. Broadcasts
// for unknown calls are no-ops.
//
// Each call's broadcasts are serialized by the entry lock, so all listeners
// observe messages in the exact order they were produced.
func (r *Registry) Broadcast(callID string, msg []byte) {
	r.mu.RLock()
	entry, ok := r.calls[callID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	dropped := 0
	entry.mu.Lock()
	for l := range entry.members {
		select {
		case l <- msg:
		default:
			// Slow or dead listener; one bad connection must not stall
			// the others.
			delete(entry.members, l)
			close(l)
			dropped++
			r.logger.Printf("stream: dropped slow listener on call %s", callID)
		}
	}
	entry.mu.Unlock()

	if r.onDrop != nil {
		for i := 0; i < dropped; i++ {
			r.onDrop(callID)
		}
	}
}

// ListenerCount reports how many listeners are subscribed to a call.
func (r *Registry) ListenerCount(callID string) int {
	r.mu.RLock()
	entry, ok := r.calls[callID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return len(entry.members)
}
