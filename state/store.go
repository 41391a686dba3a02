// Package state persists per-conversation data between turns: the dialog
// stack, arbitrary conversation values, and durable conversation references
// for proactive messaging.
//
// Stores are keyed by conversation id, matching the turn-per-conversation
// concurrency model: within one conversation turns are serialized, so a
// read-modify-write per turn needs no further locking.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/BaSui01/skillflow/dialog"
)

// ErrNotFound is returned by reference lookups for unknown conversations.
// Record loads never fail this way; a missing record loads empty.
var ErrNotFound = errors.New("state: not found")

// ConversationRecord is everything persisted for one conversation.
type ConversationRecord struct {
	DialogState *dialog.State  `json:"dialogState"`
	Values      map[string]any `json:"values,omitempty"`
}

// NewConversationRecord creates an empty record.
func NewConversationRecord() *ConversationRecord {
	return &ConversationRecord{
		DialogState: &dialog.State{},
		Values:      make(map[string]any),
	}
}

// normalize repairs nil fields after JSON decoding.
func (r *ConversationRecord) normalize() *ConversationRecord {
	if r.DialogState == nil {
		r.DialogState = &dialog.State{}
	}
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	return r
}

// Store persists conversation records.
type Store interface {
	// Load returns the record for a conversation, empty when none exists.
	Load(ctx context.Context, conversationID string) (*ConversationRecord, error)
	// Save persists the record.
	Save(ctx context.Context, conversationID string, record *ConversationRecord) error
	// Delete removes the record. Deleting a missing record is a no-op.
	Delete(ctx context.Context, conversationID string) error
}

// MemoryStore keeps records in process memory. Records are copied through
// JSON on both load and save so callers never share live maps.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, conversationID string) (*ConversationRecord, error) {
	s.mu.RLock()
	raw, ok := s.data[conversationID]
	s.mu.RUnlock()
	if !ok {
		return NewConversationRecord(), nil
	}
	record := &ConversationRecord{}
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, err
	}
	return record.normalize(), nil
}

func (s *MemoryStore) Save(_ context.Context, conversationID string, record *ConversationRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[conversationID] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	delete(s.data, conversationID)
	s.mu.Unlock()
	return nil
}
