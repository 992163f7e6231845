package calls

import (
	"context"
	"sync"
)

// Call outcomes derived from provider status updates.
const (
	OutcomePending  = "pending"
	OutcomeAnswered = "answered"
	OutcomeNoAnswer = "no_answer"
	OutcomeFailed   = "failed"
)

// StatusRecord is the tracked state of one provider call. CallID links the
// record back to the internal call session; it is kept out of API responses.
type StatusRecord struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome"`
	CallID  string `json:"-"`
}

// StatusStore tracks call status keyed by provider call SID. Webhooks may
// arrive out of order; implementations apply updates last-writer-wins without
// a transition table.
type StatusStore interface {
	// Track registers a freshly dialed call as {initiated, pending} and
	// remembers the internal call id behind the SID.
	Track(ctx context.Context, callSID, callID string) error

	// Update overwrites the record with the given provider status and its
	// derived outcome, preserving the tracked call id. Unknown SIDs are
	// upserted.
	Update(ctx context.Context, callSID, status string) (StatusRecord, error)

	// Get returns the current record, or ErrStatusNotFound.
	Get(ctx context.Context, callSID string) (StatusRecord, error)
}

// OutcomeForStatus maps a provider call status to the outcome reported to
// polling clients. Unrecognized statuses stay pending.
func OutcomeForStatus(status string) string {
	switch status {
	case "completed", "in-progress":
		return OutcomeAnswered
	case "busy", "no-answer":
		return OutcomeNoAnswer
	case "failed", "canceled":
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

// IsTerminalStatus reports whether the provider status means the call is over
// and its cached audio can be released.
func IsTerminalStatus(status string) bool {
	switch status {
	case "completed", "busy", "failed", "canceled", "no-answer":
		return true
	default:
		return false
	}
}

// MemoryStatusStore is the default StatusStore backed by a process-local map.
type MemoryStatusStore struct {
	mu      sync.RWMutex
	records map[string]StatusRecord
}

// NewMemoryStatusStore creates an empty in-memory status store
func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{
		records: make(map[string]StatusRecord),
	}
}

// Track registers a new call as {initiated, pending}.
func (s *MemoryStatusStore) Track(_ context.Context, callSID, callID string) error {
	s.mu.Lock()
	s.records[callSID] = StatusRecord{
		Status:  "initiated",
		Outcome: OutcomePending,
		CallID:  callID,
	}
	s.mu.Unlock()
	return nil
}

// Update overwrites the record for the SID, keeping the tracked call id.
func (s *MemoryStatusStore) Update(_ context.Context, callSID, status string) (StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := StatusRecord{
		Status:  status,
		Outcome: OutcomeForStatus(status),
		CallID:  s.records[callSID].CallID,
	}
	s.records[callSID] = rec
	return rec, nil
}

// Get returns the record for the SID, or ErrStatusNotFound.
func (s *MemoryStatusStore) Get(_ context.Context, callSID string) (StatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[callSID]
	if !ok {
		return StatusRecord{}, ErrStatusNotFound
	}
	return rec, nil
}

var _ StatusStore = (*MemoryStatusStore)(nil)
