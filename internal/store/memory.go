package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/simplifychat/backend/internal/model/chat"
)

// MemoryStore keeps conversations in process memory. Used when no database is configured
// and in tests.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]chat.Conversation
	messages      map[uuid.UUID][]chat.Message
	now           func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[uuid.UUID]chat.Conversation),
		messages:      make(map[uuid.UUID][]chat.Message),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateConversation(_ context.Context, c *chat.Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}

	stored := *c
	stored.Participants = append([]string(nil), c.Participants...)
	stored.Messages = nil

	s.mu.Lock()
	s.conversations[c.ID] = stored
	s.messages[c.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	c.Messages = []chat.Message{}
	return nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id uuid.UUID) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := s.hydrateLocked(c)
	return &out, nil
}

func (s *MemoryStore) ListConversations(_ context.Context, find FindConversations) ([]chat.Conversation, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]chat.Conversation, 0)
	for _, c := range s.conversations {
		if find.matches(&c) {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := min(max(find.Offset, 0), len(matched))
	end := len(matched)
	if find.Limit > 0 {
		end = min(start+find.Limit, len(matched))
	}

	page := make([]chat.Conversation, 0, end-start)
	for _, c := range matched[start:end] {
		page = append(page, s.hydrateLocked(c))
	}
	return page, total, nil
}

func (s *MemoryStore) DeleteConversation(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, m *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[m.ConversationID]; !ok {
		return ErrNotFound
	}

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	m.CreatedAt = storedTime(m.CreatedAt)
	history := s.messages[m.ConversationID]
	if n := len(history); n > 0 {
		m.CreatedAt = nextMessageTime(m.CreatedAt, history[n-1].CreatedAt)
	}

	s.messages[m.ConversationID] = append(history, *m)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) hydrateLocked(c chat.Conversation) chat.Conversation {
	c.Participants = append([]string{}, c.Participants...)
	history := s.messages[c.ID]
	c.Messages = make([]chat.Message, len(history))
	copy(c.Messages, history)
	return c
}
