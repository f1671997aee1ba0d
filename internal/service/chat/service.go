package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/zhouzirui/simplifychat/backend/internal/model/chat"
	"github.com/zhouzirui/simplifychat/backend/internal/store"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrConversationNotFound = errors.New("conversation not found")
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
	maxFieldLen  = 255
)

// Publisher receives conversation events after they are persisted.
type Publisher interface {
	PublishMessage(m chat.Message) int
	PublishDeleted(conversationID uuid.UUID) int
}

// Option customizes a Service.
type Option func(*Service)

// WithPublisher forwards appended messages and deletions to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// OnDelete registers fn to run after a conversation has been deleted.
func OnDelete(fn func(ctx context.Context, conversationID uuid.UUID)) Option {
	return func(s *Service) { s.onDelete = append(s.onDelete, fn) }
}

// Service encapsulates conversation and message management on top of a Store.
type Service struct {
	store     store.Store
	publisher Publisher
	onDelete  []func(ctx context.Context, conversationID uuid.UUID)
	now       func() time.Time
}

// NewService wires the chat service to its store.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateConversationInput carries the fields a client may set on a new conversation.
type CreateConversationInput struct {
	UserID       string
	Participants []string
	Title        *string
}

// MessageInput carries a message to append.
type MessageInput struct {
	Content string
	Sender  string
}

// ListOptions paginates and filters ListUserConversations. A zero Limit means DefaultLimit.
type ListOptions struct {
	Skip      int
	Limit     int
	StartDate *time.Time
	EndDate   *time.Time
}

// CreateConversation validates in and stores a new conversation with no messages.
func (s *Service) CreateConversation(ctx context.Context, in CreateConversationInput) (*chat.Conversation, error) {
	userID, err := requiredField("user_id", in.UserID)
	if err != nil {
		return nil, err
	}
	participants, err := normalizeParticipants(in.Participants)
	if err != nil {
		return nil, err
	}
	title, err := optionalTitle(in.Title)
	if err != nil {
		return nil, err
	}

	c := &chat.Conversation{
		ID:           uuid.New(),
		UserID:       userID,
		Participants: participants,
		Title:        title,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateConversation(ctx, c); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	log.Printf("[chat] conversation created id=%s user=%s participants=%d", c.ID, c.UserID, len(c.Participants))
	return c, nil
}

// GetConversation returns the conversation with its messages in creation order.
func (s *Service) GetConversation(ctx context.Context, id uuid.UUID) (*chat.Conversation, error) {
	c, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, translate(err, "get conversation")
	}
	return c, nil
}

// DeleteConversation removes the conversation together with its messages.
func (s *Service) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteConversation(ctx, id); err != nil {
		return translate(err, "delete conversation")
	}

	for _, fn := range s.onDelete {
		fn(ctx, id)
	}
	if s.publisher != nil {
		s.publisher.PublishDeleted(id)
	}

	log.Printf("[chat] conversation deleted id=%s", id)
	return nil
}

// ListUserConversations returns one page of the user's conversations, newest first,
// and the number of conversations matching the filters before paging.
func (s *Service) ListUserConversations(ctx context.Context, userID string, opts ListOptions) ([]chat.Conversation, int64, error) {
	userID, err := requiredField("user_id", userID)
	if err != nil {
		return nil, 0, err
	}

	limit := opts.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 1 || limit > MaxLimit {
		return nil, 0, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, MaxLimit)
	}
	if opts.Skip < 0 {
		return nil, 0, fmt.Errorf("%w: skip must not be negative", ErrInvalidInput)
	}
	if opts.StartDate != nil && opts.EndDate != nil && opts.StartDate.After(*opts.EndDate) {
		return nil, 0, fmt.Errorf("%w: start_date must not be after end_date", ErrInvalidInput)
	}

	list, total, err := s.store.ListConversations(ctx, store.FindConversations{
		UserID:    userID,
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
		Offset:    opts.Skip,
		Limit:     limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	return list, total, nil
}

// AddMessage appends a message and returns the whole updated conversation.
func (s *Service) AddMessage(ctx context.Context, conversationID uuid.UUID, in MessageInput) (*chat.Conversation, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	sender, err := requiredField("sender", in.Sender)
	if err != nil {
		return nil, err
	}

	m := &chat.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Content:        in.Content,
		Sender:         sender,
		CreatedAt:      s.now(),
	}
	if err := s.store.AppendMessage(ctx, m); err != nil {
		return nil, translate(err, "append message")
	}

	if s.publisher != nil {
		s.publisher.PublishMessage(*m)
	}

	return s.GetConversation(ctx, conversationID)
}

func translate(err error, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrConversationNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requiredField(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidInput, name)
	}
	if utf8.RuneCountInString(value) > maxFieldLen {
		return "", fmt.Errorf("%w: %s must be at most %d characters", ErrInvalidInput, name, maxFieldLen)
	}
	return value, nil
}

func optionalTitle(title *string) (*string, error) {
	if title == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*title)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > maxFieldLen {
		return nil, fmt.Errorf("%w: title must be at most %d characters", ErrInvalidInput, maxFieldLen)
	}
	return &trimmed, nil
}

// normalizeParticipants trims entries and drops duplicates, keeping first-seen order.
func normalizeParticipants(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("%w: participants must not contain empty names", ErrInvalidInput)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
