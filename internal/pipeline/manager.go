package pipeline

import "sync"

// Manager tracks one pipeline per video stream (kiosk device). Starting a
// stream that already has a session discards it atomically, so callbacks
// from the old source can never touch the new one.
type Manager struct {
	mu       sync.Mutex
	factory  func() *Pipeline
	sessions map[string]*Pipeline
}

// NewManager creates a manager building pipelines with factory.
func NewManager(factory func() *Pipeline) *Manager {
	return &Manager{
		factory:  factory,
		sessions: make(map[string]*Pipeline),
	}
}

// Start begins a fresh session for the stream, resetting an existing one.
func (m *Manager) Start(streamID string) *Pipeline {
	m.mu.Lock()
	p, ok := m.sessions[streamID]
	if !ok {
		p = m.factory()
		m.sessions[streamID] = p
	}
	m.mu.Unlock()

	p.Start()
	return p
}

// Get returns the stream's pipeline if a session exists.
func (m *Manager) Get(streamID string) (*Pipeline, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.sessions[streamID]
	return p, ok
}

// Reset clears the stream's session back to AwaitingQR.
func (m *Manager) Reset(streamID string) bool {
	m.mu.Lock()
	p, ok := m.sessions[streamID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	p.Reset()
	return true
}
