package chat

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	chatService "github.com/zhouzirui/simplifychat/backend/internal/service/chat"
	"github.com/zhouzirui/simplifychat/backend/pkg/utils"
)

// Handler 会话与消息的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chats", h.handleCreateConversation)
	r.Get("/chats/{id}", h.handleGetConversation)
	r.Delete("/chats/{id}", h.handleDeleteConversation)
	r.Post("/chats/{id}/messages", h.handleAddMessage)
	r.Get("/users/{user_id}/chats", h.handleListUserConversations)
}

type createConversationRequest struct {
	UserID       string   `json:"user_id"`
	Participants *[]string `json:"participants"`
	Title        *string   `json:"title"`
}

type addMessageRequest struct {
	Content string `json:"content"`
	Sender  string `json:"sender"`
}

// handleCreateConversation 创建会话
func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var payload createConversationRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// participants 必须显式给出，允许为空数组。
	if payload.Participants == nil {
		utils.RespondError(w, http.StatusBadRequest, "participants is required")
		return
	}

	conversation, err := h.chatSvc.CreateConversation(r.Context(), chatService.CreateConversationInput{
		UserID:       payload.UserID,
		Participants: *payload.Participants,
		Title:        payload.Title,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, conversation)
}

// handleGetConversation 获取会话及其消息
func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseConversationID(w, r)
	if !ok {
		return
	}

	conversation, err := h.chatSvc.GetConversation(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, conversation)
}

// handleDeleteConversation 删除会话及其消息
func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseConversationID(w, r)
	if !ok {
		return
	}

	if err := h.chatSvc.DeleteConversation(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "Conversation deleted successfully"})
}

// handleAddMessage 追加消息并返回完整会话
func (h *Handler) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseConversationID(w, r)
	if !ok {
		return
	}

	var payload addMessageRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conversation, err := h.chatSvc.AddMessage(r.Context(), id, chatService.MessageInput{
		Content: payload.Content,
		Sender:  payload.Sender,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, conversation)
}

// handleListUserConversations 分页查询用户的会话
func (h *Handler) handleListUserConversations(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conversations, total, err := h.chatSvc.ListUserConversations(r.Context(), chi.URLParam(r, "user_id"), opts)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	utils.RespondJSON(w, http.StatusOK, conversations)
}

func parseListOptions(r *http.Request) (chatService.ListOptions, error) {
	query := r.URL.Query()
	opts := chatService.ListOptions{Limit: chatService.DefaultLimit}

	if raw := strings.TrimSpace(query.Get("skip")); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil || skip < 0 {
			return opts, fmt.Errorf("skip must be a non-negative integer")
		}
		opts.Skip = skip
	}

	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > chatService.MaxLimit {
			return opts, fmt.Errorf("limit must be an integer between 1 and %d", chatService.MaxLimit)
		}
		opts.Limit = limit
	}

	start, err := parseDateParam(query.Get("start_date"), false)
	if err != nil {
		return opts, fmt.Errorf("start_date: %w", err)
	}
	end, err := parseDateParam(query.Get("end_date"), true)
	if err != nil {
		return opts, fmt.Errorf("end_date: %w", err)
	}
	opts.StartDate, opts.EndDate = start, end

	return opts, nil
}

// parseDateParam 支持 RFC 3339 与 YYYY-MM-DD；仅日期的结束时间覆盖当天全部时间。
func parseDateParam(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", raw); err == nil {
		return &t, nil
	}

	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected RFC 3339 or YYYY-MM-DD", raw)
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day, nil
}

// ParseConversationID 解析路径中的会话 ID，失败时直接写回 400。
func ParseConversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid conversation id")
		return uuid.Nil, false
	}
	return id, true
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrInvalidInput):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrConversationNotFound):
		utils.RespondError(w, http.StatusNotFound, "Conversation not found")
	default:
		log.Printf("[chat] request failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}
