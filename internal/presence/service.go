package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/nfrund/courier/internal/pubsub"
)

// StatusUpdate is the event published on TopicStatus whenever the set of
// online users changes.
type StatusUpdate struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// Service is the registry of live bindings between a user identity and an
// active transport connection. A user has at most one entry at a time: a
// second registration silently replaces the first (last registration wins).
// Disconnects are looked up by connection identity, since that is all a
// closing transport can report.
type Service struct {
	mu     sync.RWMutex
	users  map[string]string // userID -> connectionID
	conns  map[string]string // connectionID -> userID (disconnect lookup)
	pub    pubsub.Publisher
	logger *slog.Logger
}

// NewService creates an empty presence registry publishing status changes to
// the given bus. A nil publisher disables publication, which tests use.
func NewService(pub pubsub.Publisher) *Service {
	return &Service{
		users:  make(map[string]string),
		conns:  make(map[string]string),
		pub:    pub,
		logger: slog.Default().With("service", "presence"),
	}
}

// Register binds userID to connID, replacing any previous binding for that
// user. It returns the connection ID that was displaced, if any, so the
// caller can tear down resources tied to the stale connection.
func (s *Service) Register(userID, connID string) (prevConnID string, replaced bool) {
	s.mu.Lock()
	prevConnID, replaced = s.users[userID]
	if replaced {
		delete(s.conns, prevConnID)
	}
	s.users[userID] = connID
	s.conns[connID] = userID
	online := s.onlineLocked()
	s.mu.Unlock()

	if replaced {
		s.logger.Info("User re-registered, previous connection displaced",
			"user_id", userID, "connection_id", connID, "prev_connection_id", prevConnID)
	} else {
		s.logger.Info("User registered", "user_id", userID, "connection_id", connID)
	}

	s.publishStatus(userID, online)
	return prevConnID, replaced && prevConnID != connID
}

// Disconnect removes the binding for connID and returns the user it belonged
// to. A connection that was never registered, or whose user has since
// re-registered on a newer connection, yields ok=false.
func (s *Service) Disconnect(connID string) (userID string, ok bool) {
	s.mu.Lock()
	userID, ok = s.conns[connID]
	if ok {
		delete(s.conns, connID)
		// Only drop the user entry if it still points at this connection; a
		// newer registration must not be clobbered by the old one closing.
		if s.users[userID] == connID {
			delete(s.users, userID)
		}
	}
	online := s.onlineLocked()
	s.mu.Unlock()

	if ok {
		s.logger.Info("User disconnected", "user_id", userID, "connection_id", connID)
		s.publishStatus(userID, online)
	}
	return userID, ok
}

// Lookup returns the connection currently bound to userID.
func (s *Service) Lookup(userID string) (connID string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	connID, ok = s.users[userID]
	return connID, ok
}

// Online returns the IDs of all currently registered users, sorted.
func (s *Service) Online() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onlineLocked()
}

func (s *Service) onlineLocked() []string {
	users := make([]string, 0, len(s.users))
	for userID := range s.users {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

func (s *Service) publishStatus(userID string, online []string) {
	if s.pub == nil {
		return
	}

	payload, err := json.Marshal(StatusUpdate{Type: "presence_update", Users: online})
	if err != nil {
		s.logger.Error("Failed to marshal presence update", "error", err)
		return
	}

	msg := pubsub.Message{
		Topic:   TopicStatus,
		UserID:  userID,
		Payload: payload,
	}
	if err := s.pub.Publish(context.Background(), msg); err != nil {
		s.logger.Error("Failed to publish presence update", "error", err, "topic", TopicStatus)
	}
}
