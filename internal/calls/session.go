package calls

import (
	"sync"
	"time"
)

// Patient keypad responses recorded from the digit-gather webhook.
const (
	ResponseConfirmed  = "confirmed"
	ResponseReschedule = "reschedule"
	ResponseUnknown    = "unknown"
)

// Session holds the appointment fields a reminder call speaks to the patient,
// plus the keypad response once one arrives. Sessions live for the lifetime of
// the process.
type Session struct {
	PatientName      string
	Date             string
	Time             string
	ServiceType      string
	OrganizationName string
	PatientResponse  string
	CreatedAt        time.Time
}

// SessionStore keeps call sessions in memory keyed by internal call id.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty session store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
	}
}

// Create stores a session for the given call id, applying display defaults for
// the optional fields so downstream consumers never see empty values.
func (s *SessionStore) Create(callID string, sess Session) {
	if sess.ServiceType == "" {
		sess.ServiceType = defaultServiceType
	}
	if sess.OrganizationName == "" {
		sess.OrganizationName = defaultOrganization
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.sessions[callID] = &sess
	s.mu.Unlock()
}

// Get returns a copy of the session for the given call id.
func (s *SessionStore) Get(callID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[callID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// SetResponse records the patient's keypad response. Last write wins; the
// update is dropped silently when the session does not exist, matching the
// webhook contract of never failing on stale call ids.
func (s *SessionStore) SetResponse(callID, response string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[callID]
	if !ok {
		return false
	}
	sess.PatientResponse = response
	return true
}

// Script renders the reminder message for the given call id. It satisfies the
// script lookup the audio service uses for on-demand synthesis.
func (s *SessionStore) Script(callID string) (string, bool) {
	sess, ok := s.Get(callID)
	if !ok {
		return "", false
	}
	return GenerateMessage(sess), true
}
