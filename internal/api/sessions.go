package api

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/mkoval/haggleshop/internal/negotiation"
)

var (
	// ErrSessionNotFound is returned for unknown session IDs and for sessions
	// owned by a different shopper. The two cases are indistinguishable on
	// purpose so session IDs cannot be probed.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when a shopper already has an open
	// negotiation for the product.
	ErrSessionExists = errors.New("negotiation already open for this product")
)

type sessionEntry struct {
	shopperID string
	session   negotiation.Session
}

// SessionManager is the in-memory registry of open negotiation sessions.
// Sessions are never persisted: they vanish when closed or when the process
// exits. Each entry is updated atomically under the registry lock so turns
// arriving over REST and WebSocket cannot interleave.
type SessionManager struct {
	mu        sync.RWMutex
	sessions  map[string]*sessionEntry
	byProduct map[string]string // shopperID + "\x00" + productID -> sessionID
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions:  make(map[string]*sessionEntry),
		byProduct: make(map[string]string),
	}
}

func productKey(shopperID, productID string) string {
	return shopperID + "\x00" + productID
}

// Add registers a freshly opened session for a shopper. A shopper can hold at
// most one open negotiation per product.
func (m *SessionManager) Add(shopperID string, s negotiation.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := productKey(shopperID, s.ProductID)
	if _, exists := m.byProduct[key]; exists {
		return ErrSessionExists
	}

	m.sessions[s.ID] = &sessionEntry{shopperID: shopperID, session: s}
	m.byProduct[key] = s.ID
	slog.Info("Negotiation session opened", "session_id", s.ID, "product_id", s.ProductID, "shopper_id", shopperID)
	return nil
}

// Get returns the current snapshot of a session owned by the shopper.
func (m *SessionManager) Get(shopperID, sessionID string) (negotiation.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.sessions[sessionID]
	if !ok || entry.shopperID != shopperID {
		return negotiation.Session{}, ErrSessionNotFound
	}
	return entry.session, nil
}

// Update applies fn to the session under the registry lock and swaps in the
// session it returns. When fn fails the stored session is left untouched.
func (m *SessionManager) Update(shopperID, sessionID string, fn func(negotiation.Session) (negotiation.Session, error)) (negotiation.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[sessionID]
	if !ok || entry.shopperID != shopperID {
		return negotiation.Session{}, ErrSessionNotFound
	}

	next, err := fn(entry.session)
	if err != nil {
		return negotiation.Session{}, err
	}

	entry.session = next
	return next, nil
}

// Remove discards a session owned by the shopper and frees its product slot,
// returning the final snapshot.
func (m *SessionManager) Remove(shopperID, sessionID string) (negotiation.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[sessionID]
	if !ok || entry.shopperID != shopperID {
		return negotiation.Session{}, ErrSessionNotFound
	}

	delete(m.sessions, sessionID)
	delete(m.byProduct, productKey(shopperID, entry.session.ProductID))
	slog.Info("Negotiation session discarded", "session_id", sessionID, "shopper_id", shopperID)
	return entry.session, nil
}

// Len returns the number of open sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
