// Package threads keeps the question/answer history of report conversations.
package threads

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidThreadID is returned for thread ids that are not UUIDs.
var ErrInvalidThreadID = errors.New("invalid thread id")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	ReportID  string    `json:"reportId,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is an append-only conversation log keyed by thread id.
type Store interface {
	Append(ctx context.Context, threadID string, msgs ...Message) error
	List(ctx context.Context, threadID string) ([]Message, error)
}

// NewThreadID returns a fresh thread id.
func NewThreadID() string {
	return uuid.NewString()
}

// ParseThreadID validates and canonicalizes a thread id.
func ParseThreadID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidThreadID, raw)
	}
	return id.String(), nil
}

func prepare(threadID string, msgs []Message) (string, []Message, error) {
	id, err := ParseThreadID(threadID)
	if err != nil {
		return "", nil, err
	}
	now := time.Now().UTC()
	out := make([]Message, len(msgs))
	for i, msg := range msgs {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		msg.ThreadID = id
		out[i] = msg
	}
	return id, out, nil
}

// MemoryStore keeps threads in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string][]Message)}
}

func (s *MemoryStore) Append(_ context.Context, threadID string, msgs ...Message) error {
	id, prepared, err := prepare(threadID, msgs)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[id] = append(s.threads[id], prepared...)
	return nil
}

func (s *MemoryStore) List(_ context.Context, threadID string) ([]Message, error) {
	id, err := ParseThreadID(threadID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.threads[id]...), nil
}

// Clear drops every thread.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads = make(map[string][]Message)
}

var _ Store = (*MemoryStore)(nil)
