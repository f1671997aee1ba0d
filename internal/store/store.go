package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/simplifychat/backend/internal/model/chat"
)

// ErrNotFound is returned when the referenced conversation does not exist.
var ErrNotFound = errors.New("not found")

// Store persists conversations and their messages.
type Store interface {
	// CreateConversation inserts c. ID and CreatedAt are assigned when zero.
	CreateConversation(ctx context.Context, c *chat.Conversation) error
	// GetConversation returns the conversation with its messages in creation order.
	GetConversation(ctx context.Context, id uuid.UUID) (*chat.Conversation, error)
	// ListConversations returns one page of matches, newest first, plus the unpaged total.
	ListConversations(ctx context.Context, find FindConversations) ([]chat.Conversation, int64, error)
	// DeleteConversation removes the conversation and all of its messages.
	DeleteConversation(ctx context.Context, id uuid.UUID) error
	// AppendMessage inserts m into its conversation. ID and CreatedAt are assigned when zero.
	AppendMessage(ctx context.Context, m *chat.Message) error
	Ping(ctx context.Context) error
	Close() error
}

// FindConversations filters ListConversations.
type FindConversations struct {
	UserID    string
	StartDate *time.Time
	EndDate   *time.Time
	Offset    int
	Limit     int
}

func (f FindConversations) matches(c *chat.Conversation) bool {
	if c.UserID != f.UserID {
		return false
	}
	if f.StartDate != nil && c.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && c.CreatedAt.After(*f.EndDate) {
		return false
	}
	return true
}

// nextMessageTime keeps message timestamps monotonic within a conversation so that
// ordering by created_at matches insertion order. Both values are compared at the
// microsecond precision PostgreSQL stores.
func nextMessageTime(now, last time.Time) time.Time {
	now, last = storedTime(now), storedTime(last)
	if !now.After(last) {
		return last.Add(time.Microsecond)
	}
	return now
}

// storedTime rounds t down to what a timestamptz column keeps.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
