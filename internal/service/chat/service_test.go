package chat_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	model "github.com/zhouzirui/simplifychat/backend/internal/model/chat"
	chat "github.com/zhouzirui/simplifychat/backend/internal/service/chat"
	"github.com/zhouzirui/simplifychat/backend/internal/store"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []model.Message
	deleted  []uuid.UUID
}

func (p *recordingPublisher) PublishMessage(m model.Message) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, m)
	return 1
}

func (p *recordingPublisher) PublishDeleted(id uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, id)
	return 1
}

func strPtr(s string) *string { return &s }

func TestServiceCreateConversation(t *testing.T) {
	svc := chat.NewService(store.NewMemoryStore())
	ctx := context.Background()

	c, err := svc.CreateConversation(ctx, chat.CreateConversationInput{
		UserID:       "  user-1 ",
		Participants: []string{" alice", "bob", "alice"},
		Title:        strPtr("  planning  "),
	})
	if err != nil {
		t.Fatalf("CreateConversation err: %v", err)
	}
	if c.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}
	if c.UserID != "user-1" {
		t.Fatalf("unexpected user id: %q", c.UserID)
	}
	if got := strings.Join(c.Participants, ","); got != "alice,bob" {
		t.Fatalf("unexpected participants: %s", got)
	}
	if c.Title == nil || *c.Title != "planning" {
		t.Fatalf("unexpected title: %v", c.Title)
	}
	if c.Messages == nil || len(c.Messages) != 0 {
		t.Fatalf("expected empty messages, got %v", c.Messages)
	}

	blank, err := svc.CreateConversation(ctx, chat.CreateConversationInput{UserID: "u", Title: strPtr("   ")})
	if err != nil {
		t.Fatalf("CreateConversation err: %v", err)
	}
	if blank.Title != nil {
		t.Fatalf("blank title should become nil, got %q", *blank.Title)
	}
	if blank.Participants == nil {
		t.Fatal("missing participants should become an empty list")
	}
}

func TestServiceCreateConversationValidation(t *testing.T) {
	svc := chat.NewService(store.NewMemoryStore())
	ctx := context.Background()

	cases := []struct {
		name string
		in   chat.CreateConversationInput
	}{
		{"missing user", chat.CreateConversationInput{UserID: "  "}},
		{"long user", chat.CreateConversationInput{UserID: strings.Repeat("u", 256)}},
		{"empty participant", chat.CreateConversationInput{UserID: "u", Participants: []string{"alice", " "}}},
		{"long title", chat.CreateConversationInput{UserID: "u", Title: strPtr(strings.Repeat("t", 256))}},
	}
	for _, tc := range cases {
		if _, err := svc.CreateConversation(ctx, tc.in); !errors.Is(err, chat.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestServiceAddMessage(t *testing.T) {
	pub := &recordingPublisher{}
	svc := chat.NewService(store.NewMemoryStore(), chat.WithPublisher(pub))
	ctx := context.Background()

	c, err := svc.CreateConversation(ctx, chat.CreateConversationInput{UserID: "u", Participants: []string{"alice", "bob"}})
	if err != nil {
		t.Fatalf("CreateConversation err: %v", err)
	}

	if _, err := svc.AddMessage(ctx, c.ID, chat.MessageInput{Content: "hi bob", Sender: "alice"}); err != nil {
		t.Fatalf("AddMessage err: %v", err)
	}
	updated, err := svc.AddMessage(ctx, c.ID, chat.MessageInput{Content: "hey alice", Sender: " bob "})
	if err != nil {
		t.Fatalf("AddMessage err: %v", err)
	}

	if len(updated.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(updated.Messages))
	}
	if updated.Messages[0].Content != "hi bob" || updated.Messages[1].Sender != "bob" {
		t.Fatalf("unexpected messages: %+v", updated.Messages)
	}
	if len(pub.messages) != 2 || pub.messages[1].ConversationID != c.ID {
		t.Fatalf("expected 2 published messages, got %+v", pub.messages)
	}
}

func TestServiceAddMessageErrors(t *testing.T) {
	svc := chat.NewService(store.NewMemoryStore())
	ctx := context.Background()

	if _, err := svc.AddMessage(ctx, uuid.New(), chat.MessageInput{Content: "hi", Sender: "a"}); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}

	c, _ := svc.CreateConversation(ctx, chat.CreateConversationInput{UserID: "u"})
	if _, err := svc.AddMessage(ctx, c.ID, chat.MessageInput{Content: "  ", Sender: "a"}); !errors.Is(err, chat.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank content, got %v", err)
	}
	if _, err := svc.AddMessage(ctx, c.ID, chat.MessageInput{Content: "hi"}); !errors.Is(err, chat.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing sender, got %v", err)
	}
}

func TestServiceDeleteConversation(t *testing.T) {
	pub := &recordingPublisher{}
	var hooked []uuid.UUID
	svc := chat.NewService(store.NewMemoryStore(),
		chat.WithPublisher(pub),
		chat.OnDelete(func(_ context.Context, id uuid.UUID) { hooked = append(hooked, id) }),
	)
	ctx := context.Background()

	c, _ := svc.CreateConversation(ctx, chat.CreateConversationInput{UserID: "u"})
	_, _ = svc.AddMessage(ctx, c.ID, chat.MessageInput{Content: "hi", Sender: "a"})

	if err := svc.DeleteConversation(ctx, c.ID); err != nil {
		t.Fatalf("DeleteConversation err: %v", err)
	}
	if _, err := svc.GetConversation(ctx, c.ID); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if len(hooked) != 1 || hooked[0] != c.ID {
		t.Fatalf("delete hook not invoked: %v", hooked)
	}
	if len(pub.deleted) != 1 || pub.deleted[0] != c.ID {
		t.Fatalf("deletion not published: %v", pub.deleted)
	}

	if err := svc.DeleteConversation(ctx, c.ID); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound on second delete, got %v", err)
	}
	if len(hooked) != 1 {
		t.Fatal("hook must not run for a failed delete")
	}
}

func TestServiceListUserConversations(t *testing.T) {
	svc := chat.NewService(store.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if _, err := svc.CreateConversation(ctx, chat.CreateConversationInput{UserID: "u1"}); err != nil {
			t.Fatalf("CreateConversation err: %v", err)
		}
	}
	_, _ = svc.CreateConversation(ctx, chat.CreateConversationInput{UserID: "u2"})

	page, total, err := svc.ListUserConversations(ctx, "u1", chat.ListOptions{})
	if err != nil {
		t.Fatalf("ListUserConversations err: %v", err)
	}
	if total != 12 || len(page) != chat.DefaultLimit {
		t.Fatalf("expected default page of %d out of 12, got %d of %d", chat.DefaultLimit, len(page), total)
	}
	for i := 1; i < len(page); i++ {
		if page[i].CreatedAt.After(page[i-1].CreatedAt) {
			t.Fatal("conversations should be ordered newest first")
		}
	}

	rest, _, err := svc.ListUserConversations(ctx, "u1", chat.ListOptions{Skip: 10, Limit: 5})
	if err != nil {
		t.Fatalf("ListUserConversations err: %v", err)
	}
	if len(rest) != 2 {
		t.Fatalf("expected 2 remaining conversations, got %d", len(rest))
	}

	future := time.Now().Add(time.Hour)
	none, total, err := svc.ListUserConversations(ctx, "u1", chat.ListOptions{StartDate: &future})
	if err != nil {
		t.Fatalf("ListUserConversations err: %v", err)
	}
	if total != 0 || len(none) != 0 {
		t.Fatalf("expected no conversations after start_date, got %d", total)
	}
}

func TestServiceListUserConversationsValidation(t *testing.T) {
	svc := chat.NewService(store.NewMemoryStore())
	ctx := context.Background()

	now := time.Now()
	earlier := now.Add(-time.Hour)
	cases := []struct {
		name string
		opts chat.ListOptions
	}{
		{"limit too large", chat.ListOptions{Limit: 101}},
		{"negative limit", chat.ListOptions{Limit: -1}},
		{"negative skip", chat.ListOptions{Skip: -1}},
		{"inverted range", chat.ListOptions{StartDate: &now, EndDate: &earlier}},
	}
	for _, tc := range cases {
		if _, _, err := svc.ListUserConversations(ctx, "u1", tc.opts); !errors.Is(err, chat.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}
