package hub

import (
	"sync"
)

type Conn struct {
	ID     string
	UserID string

	// bounded outbound queue (backpressure)
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func NewConn(id, userID string, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 256
	}
	return &Conn{ID: id, UserID: userID, out: make(chan []byte, buffer), done: make(chan struct{})}
}

func (c *Conn) Out() <-chan []byte    { return c.out }
func (c *Conn) Done() <-chan struct{} { return c.done }
func (c *Conn) Close()                { c.once.Do(func() { close(c.done) }) }

// Send queues b without blocking. It reports false when the connection is
// closed or its queue is full.
func (c *Conn) Send(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- b:
		return true
	default:
		return false
	}
}

// Hub tracks live connections and the broadcast groups they joined.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	groups map[string]map[string]*Conn
	joined map[string]map[string]struct{}

	// OnSlow is called (outside the lock) for every connection whose queue was full
	// during a broadcast. The connection is already closed.
	OnSlow func(c *Conn)
}

func New() *Hub {
	return &Hub{
		conns:  make(map[string]*Conn),
		groups: make(map[string]map[string]*Conn),
		joined: make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Add(c *Conn) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.joined[c.ID] = make(map[string]struct{})
	h.mu.Unlock()
}

// Remove drops c from every group it joined and closes it.
func (h *Hub) Remove(c *Conn) {
	h.mu.Lock()
	for g := range h.joined[c.ID] {
		h.leaveLocked(g, c.ID)
	}
	delete(h.joined, c.ID)
	delete(h.conns, c.ID)
	h.mu.Unlock()
	c.Close()
}

// Join is a no-op for connections that are not registered.
func (h *Hub) Join(group string, c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	js, ok := h.joined[c.ID]
	if !ok {
		return false
	}
	m := h.groups[group]
	if m == nil {
		m = make(map[string]*Conn)
		h.groups[group] = m
	}
	m[c.ID] = c
	js[group] = struct{}{}
	return true
}

func (h *Hub) Leave(group string, c *Conn) {
	h.mu.Lock()
	h.leaveLocked(group, c.ID)
	if js, ok := h.joined[c.ID]; ok {
		delete(js, group)
	}
	h.mu.Unlock()
}

func (h *Hub) leaveLocked(group, connID string) {
	m := h.groups[group]
	if m == nil {
		return
	}
	delete(m, connID)
	if len(m) == 0 {
		delete(h.groups, group)
	}
}

func (h *Hub) InGroup(group string, c *Conn) bool {
	h.mu.RLock()
	_, ok := h.groups[group][c.ID]
	h.mu.RUnlock()
	return ok
}

// Broadcast queues b on every connection of group and returns how many accepted it.
// Connections with a full queue are closed.
func (h *Hub) Broadcast(group string, b []byte) int {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.groups[group]))
	for _, c := range h.groups[group] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range targets {
		if c.Send(b) {
			n++
			continue
		}
		c.Close()
		if h.OnSlow != nil {
			h.OnSlow(c)
		}
	}
	return n
}

func (h *Hub) Len() int {
	h.mu.RLock()
	n := len(h.conns)
	h.mu.RUnlock()
	return n
}

func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	n := len(h.groups[group])
	h.mu.RUnlock()
	return n
}
