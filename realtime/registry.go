// Package realtime implements WebSocket connection management and SSE event
// framing (component K). The connection registry's keyed-map/cap-enforcement
// shape is grounded in the teacher gateway's middleware/concurrency.go
// Semaphore/keyed patterns, repurposed from per-org concurrency slots to
// per-connection-id tracking.
package realtime

import (
	"sync"
	"time"

	"github.com/archimedes-run/archimedes/archerr"
	"github.com/google/uuid"
)

// State is a WebSocket connection's lifecycle state.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// Connection is the registry's owned record for one WebSocket peer.
type Connection struct {
	ID             string
	ClientIdentifier string
	CreatedAt      time.Time
	LastActivity   time.Time
	State          State

	mu sync.Mutex
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.LastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.State = s
	c.mu.Unlock()
}

// Registry tracks live connections with total/per-client caps enforced on
// registration.
type Registry struct {
	mu          sync.RWMutex
	conns       map[string]*Connection
	perClient   map[string]int
	maxTotal    int
	maxPerClient int
}

// NewRegistry builds a registry enforcing the given caps (zero means
// unlimited).
func NewRegistry(maxTotal, maxPerClient int) *Registry {
	return &Registry{
		conns:        make(map[string]*Connection),
		perClient:    make(map[string]int),
		maxTotal:     maxTotal,
		maxPerClient: maxPerClient,
	}
}

// Register admits a new connection for clientIdentifier, or rejects it with
// a ServiceUnavailable error if a cap is exceeded.
func (r *Registry) Register(clientIdentifier string) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxTotal > 0 && len(r.conns) >= r.maxTotal {
		return nil, archerr.New(archerr.KindServiceUnavailable, "connection registry at total capacity")
	}
	if r.maxPerClient > 0 && r.perClient[clientIdentifier] >= r.maxPerClient {
		return nil, archerr.New(archerr.KindServiceUnavailable, "connection registry at per-client capacity")
	}

	now := time.Now()
	conn := &Connection{
		ID:               uuid.Must(uuid.NewV7()).String(),
		ClientIdentifier: clientIdentifier,
		CreatedAt:        now,
		LastActivity:     now,
		State:            StateConnecting,
	}
	r.conns[conn.ID] = conn
	r.perClient[clientIdentifier]++
	return conn, nil
}

// Open transitions a connection to the open state after a successful
// handshake.
func (r *Registry) Open(id string) {
	if c := r.Get(id); c != nil {
		c.setState(StateOpen)
	}
}

// Touch records activity (a received frame, a pong) on a connection.
func (r *Registry) Touch(id string) {
	if c := r.Get(id); c != nil {
		c.touch()
	}
}

// Get returns the connection record for id, or nil.
func (r *Registry) Get(id string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

// Deregister removes a connection from the registry, releasing its
// per-client slot.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return
	}
	conn.setState(StateClosed)
	delete(r.conns, id)
	r.perClient[conn.ClientIdentifier]--
	if r.perClient[conn.ClientIdentifier] <= 0 {
		delete(r.perClient, conn.ClientIdentifier)
	}
}

// Snapshot returns every live connection at the moment of the call.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
