package push

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/collectdex/mfc-sync/internal/models"
)

// EventType identifies a push event on the client stream
type EventType string

const (
	EventConnected    EventType = "connected"
	EventItemUpdate   EventType = "item-update"
	EventPhaseChange  EventType = "phase-change"
	EventSyncComplete EventType = "sync-complete"
)

// Event is the minimal delta pushed to subscribed clients, always carrying
// the current aggregate stats. Job is only set on the connected snapshot.
type Event struct {
	Type    EventType         `json:"type"`
	Phase   models.SyncPhase  `json:"phase,omitempty"`
	Message string            `json:"message,omitempty"`
	Item    *models.SyncItem  `json:"item,omitempty"`
	Stats   *models.SyncStats `json:"stats,omitempty"`
	Job     *models.SyncJob   `json:"job,omitempty"`
}

// Subscription is one live client connection for a session. Events is
// closed by the hub when the subscription is removed.
type Subscription struct {
	ID     string
	Events chan Event
	once   sync.Once
}

func (s *Subscription) close() {
	s.once.Do(func() {
		close(s.Events)
	})
}

// Hub is the broadcast registry turning job store mutations into live
// client updates. Delivery is best-effort and at-most-once per connection;
// clients recover missed events through the query API, not replay.
//
// Implementations other than LocalHub (e.g. a pub/sub-backed fan-out for
// horizontally scaled deployments) must honor the same semantics.
type Hub interface {
	Subscribe(sessionID string) *Subscription
	Unsubscribe(sessionID string, sub *Subscription)
	Broadcast(sessionID string, event Event)
	CloseSession(sessionID string)
}

// LocalHub is the single-process Hub: an in-memory, unreplicated registry.
// It does not survive restarts and is invisible to other instances; a
// client connected to instance A will not see events caused by a webhook
// landing on instance B. Known scaling boundary.
type LocalHub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Subscription]struct{}
	logger   *logrus.Logger
}

// NewLocalHub creates a new in-process hub
func NewLocalHub(logger *logrus.Logger) *LocalHub {
	return &LocalHub{
		sessions: make(map[string]map[*Subscription]struct{}),
		logger:   logger,
	}
}

// Subscribe registers a new live connection for the session
func (h *LocalHub) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		Events: make(chan Event, 16),
	}

	h.mu.Lock()
	subs, exists := h.sessions[sessionID]
	if !exists {
		subs = make(map[*Subscription]struct{})
		h.sessions[sessionID] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"session_id":      sessionID,
		"subscription_id": sub.ID,
	}).Debug("Client subscribed to sync events")

	return sub
}

// Unsubscribe removes a connection; the last connection for a session
// removes the session key entirely.
func (h *LocalHub) Unsubscribe(sessionID string, sub *Subscription) {
	h.mu.Lock()
	if subs, exists := h.sessions[sessionID]; exists {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	h.mu.Unlock()

	sub.close()
}

// Broadcast pushes an event to every live connection for the session. A
// connection that cannot keep up drops the event rather than blocking the
// caller.
func (h *LocalHub) Broadcast(sessionID string, event Event) {
	h.mu.RLock()
	subs := h.sessions[sessionID]
	targets := make([]*Subscription, 0, len(subs))
	for sub := range subs {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.Events <- event:
		default:
			h.logger.WithFields(logrus.Fields{
				"session_id":      sessionID,
				"subscription_id": sub.ID,
				"event_type":      event.Type,
			}).Warn("Dropping push event for slow subscriber")
		}
	}
}

// CloseSession forcibly closes and removes every connection for a session.
// Used when a job reaches a terminal phase through cancellation.
func (h *LocalHub) CloseSession(sessionID string) {
	h.mu.Lock()
	subs := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
}

// ConnectionCount reports the number of live connections for a session
func (h *LocalHub) ConnectionCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}
