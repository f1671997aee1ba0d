package realtime

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/simplifychat/backend/internal/model/chat"
)

// Event types pushed to subscribers.
const (
	EventMessage = "message"
	EventDeleted = "deleted"
)

// Event is the JSON frame written to subscribers of a conversation.
type Event struct {
	Type           string        `json:"type"`
	ConversationID uuid.UUID     `json:"conversation_id"`
	Message        *chat.Message `json:"message,omitempty"`
}

// Hub tracks websocket subscribers per conversation and fans events out to them.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[string]*Connection
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[uuid.UUID]map[string]*Connection)}
}

// Subscribe registers conn in its conversation room and starts its write loop.
func (h *Hub) Subscribe(conn *Connection) {
	h.mu.Lock()
	room := h.rooms[conn.ConversationID]
	if room == nil {
		room = make(map[string]*Connection)
		h.rooms[conn.ConversationID] = room
	}
	room[conn.ID] = conn
	h.mu.Unlock()

	conn.Start()
}

// Unsubscribe removes conn if it is still tracked.
func (h *Hub) Unsubscribe(conn *Connection) {
	h.mu.Lock()
	if room := h.rooms[conn.ConversationID]; room != nil {
		delete(room, conn.ID)
		if len(room) == 0 {
			delete(h.rooms, conn.ConversationID)
		}
	}
	h.mu.Unlock()
}

// Subscribers returns the number of live subscribers of a conversation.
func (h *Hub) Subscribers(conversationID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// PublishMessage pushes an appended message to the conversation's subscribers.
func (h *Hub) PublishMessage(m chat.Message) int {
	payload, err := json.Marshal(Event{Type: EventMessage, ConversationID: m.ConversationID, Message: &m})
	if err != nil {
		log.Printf("[ws] marshal message event: %v", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, conn := range h.rooms[m.ConversationID] {
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// PublishDeleted notifies subscribers that the conversation is gone and closes their sockets.
func (h *Hub) PublishDeleted(conversationID uuid.UUID) int {
	payload, ok := deletedPayload(conversationID)
	if !ok {
		return 0
	}

	h.mu.Lock()
	room := h.rooms[conversationID]
	delete(h.rooms, conversationID)
	h.mu.Unlock()

	delivered := 0
	for _, conn := range room {
		if err := conn.Finish(payload, websocket.CloseNormalClosure, "conversation deleted"); err == nil {
			delivered++
		}
	}
	return delivered
}

// Evict drops conn and sends it the deleted event. Used when the conversation disappeared
// while conn was subscribing, after PublishDeleted had already emptied the room.
func (h *Hub) Evict(conn *Connection) {
	h.Unsubscribe(conn)
	if payload, ok := deletedPayload(conn.ConversationID); ok {
		_ = conn.Finish(payload, websocket.CloseNormalClosure, "conversation deleted")
		return
	}
	conn.Close(websocket.CloseNormalClosure, "conversation deleted")
}

func deletedPayload(conversationID uuid.UUID) ([]byte, bool) {
	payload, err := json.Marshal(Event{Type: EventDeleted, ConversationID: conversationID})
	if err != nil {
		log.Printf("[ws] marshal deleted event: %v", err)
		return nil, false
	}
	return payload, true
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[uuid.UUID]map[string]*Connection)
	h.mu.Unlock()

	for _, room := range rooms {
		for _, conn := range room {
			conn.Close(websocket.CloseGoingAway, "server shutdown")
		}
	}
}
