package realtime

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	chatHandler "github.com/zhouzirui/simplifychat/backend/internal/handler/chat"
	"github.com/zhouzirui/simplifychat/backend/internal/model/chat"
	"github.com/zhouzirui/simplifychat/backend/internal/realtime"
	chatService "github.com/zhouzirui/simplifychat/backend/internal/service/chat"
	"github.com/zhouzirui/simplifychat/backend/pkg/utils"
)

// ConversationLoader 用于在升级连接前确认会话存在。
type ConversationLoader interface {
	GetConversation(ctx context.Context, id uuid.UUID) (*chat.Conversation, error)
}

// Handler 会话实时推送的WebSocket处理器
type Handler struct {
	chats    ConversationLoader
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器
func New(chats ConversationLoader, hub *realtime.Hub) *Handler {
	return &Handler{
		chats: chats,
		hub:   hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chats/{id}/ws", h.handleWebSocket)
}

// handleWebSocket 订阅会话的新消息与删除事件
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, ok := chatHandler.ParseConversationID(w, r)
	if !ok {
		return
	}

	if _, err := h.chats.GetConversation(r.Context(), id); err != nil {
		if errors.Is(err, chatService.ErrConversationNotFound) {
			utils.RespondError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		log.Printf("[ws] load conversation=%s: %v", id, err)
		utils.RespondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed for conversation=%s: %v", id, err)
		return
	}

	conn := realtime.NewConnection(id, ws)
	h.hub.Subscribe(conn)
	log.Printf("[ws] subscriber %s joined conversation=%s", conn.ID, id)

	// 删除可能发生在首次检查与订阅之间，此时房间已被清空，需要补发删除事件。
	if _, err := h.chats.GetConversation(r.Context(), id); errors.Is(err, chatService.ErrConversationNotFound) {
		log.Printf("[ws] conversation=%s deleted while subscribing", id)
		h.hub.Evict(conn)
	}

	conn.ReadLoop()

	h.hub.Unsubscribe(conn)
	log.Printf("[ws] subscriber %s left conversation=%s", conn.ID, id)
}
