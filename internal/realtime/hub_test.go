package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/simplifychat/backend/internal/model/chat"
)

func newHubServer(t *testing.T, hub *Hub, conversationID uuid.UUID) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConnection(conversationID, ws)
		hub.Subscribe(conn)
		conn.ReadLoop()
		hub.Unsubscribe(conn)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	waitFor(t, func() bool { return hub.Subscribers(conversationID) == 1 })
	return client
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHubDeliversAppendedMessages(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	conversationID := uuid.New()
	client := newHubServer(t, hub, conversationID)

	msg := chat.Message{ID: uuid.New(), ConversationID: conversationID, Content: "hello", Sender: "alice"}
	if n := hub.PublishMessage(msg); n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	// Other conversations are not delivered to this subscriber.
	if n := hub.PublishMessage(chat.Message{ConversationID: uuid.New(), Content: "x"}); n != 0 {
		t.Fatalf("expected 0 deliveries for other room, got %d", n)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt Event
	if err := client.ReadJSON(&evt); err != nil {
		t.Fatalf("read err: %v", err)
	}
	if evt.Type != EventMessage || evt.ConversationID != conversationID {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.Message == nil || evt.Message.Content != "hello" || evt.Message.ID != msg.ID {
		t.Fatalf("unexpected message payload: %+v", evt.Message)
	}
}

func TestHubDeletedEventClosesSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	conversationID := uuid.New()
	client := newHubServer(t, hub, conversationID)

	if n := hub.PublishDeleted(conversationID); n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	if hub.Subscribers(conversationID) != 0 {
		t.Fatal("room should be cleared after delete")
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt Event
	if err := client.ReadJSON(&evt); err != nil {
		t.Fatalf("read err: %v", err)
	}
	if evt.Type != EventDeleted || evt.ConversationID != conversationID || evt.Message != nil {
		t.Fatalf("unexpected event: %+v", evt)
	}

	_, _, err := client.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}

func TestHubUnsubscribeOnClientDisconnect(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	conversationID := uuid.New()
	client := newHubServer(t, hub, conversationID)

	_ = client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	_ = client.Close()

	waitFor(t, func() bool { return hub.Subscribers(conversationID) == 0 })
}
