package summary

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatHandler "github.com/zhouzirui/simplifychat/backend/internal/handler/chat"
	"github.com/zhouzirui/simplifychat/backend/internal/service/ai"
	chatService "github.com/zhouzirui/simplifychat/backend/internal/service/chat"
	summaryService "github.com/zhouzirui/simplifychat/backend/internal/service/summary"
	"github.com/zhouzirui/simplifychat/backend/pkg/utils"
)

// Handler 会话摘要的HTTP处理器
type Handler struct {
	summarySvc *summaryService.Service
}

// New 创建摘要处理器
func New(summarySvc *summaryService.Service) *Handler {
	return &Handler{summarySvc: summarySvc}
}

// RegisterRoutes 注册普通摘要路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chats/{id}/summarize", h.handleSummarize)
}

// RegisterStreamRoutes 注册流式摘要路由，调用方不应为其设置请求超时
func (h *Handler) RegisterStreamRoutes(r chi.Router) {
	r.Get("/chats/{id}/summarize/stream", h.handleSummarizeStream)
}

// StreamEvent SSE 事件负载
type StreamEvent struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	Error          string `json:"error,omitempty"`
}

// handleSummarize 生成会话摘要
func (h *Handler) handleSummarize(w http.ResponseWriter, r *http.Request) {
	id, ok := chatHandler.ParseConversationID(w, r)
	if !ok {
		return
	}

	summary, err := h.summarySvc.Summarize(r.Context(), id)
	if err != nil {
		status, message := errorStatus(err)
		utils.RespondError(w, status, message)
		return
	}

	utils.RespondJSON(w, http.StatusOK, summary)
}

// handleSummarizeStream 以 SSE 方式流式输出摘要
func (h *Handler) handleSummarizeStream(w http.ResponseWriter, r *http.Request) {
	id, ok := chatHandler.ParseConversationID(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// 在写出 SSE 头之前完成前置检查，使 404/400/503 仍以普通 JSON 返回。
	if !h.summarySvc.Enabled() {
		utils.RespondError(w, http.StatusServiceUnavailable, "AI summarization is not configured")
		return
	}

	started := false
	start := func() error {
		if started {
			return nil
		}
		started = true
		utils.SetupSSEHeaders(w)
		w.WriteHeader(http.StatusOK)
		return utils.SendSSEEvent(w, flusher, "start", StreamEvent{ConversationID: id.String()})
	}

	summary, err := h.summarySvc.Stream(r.Context(), id, func(delta string) error {
		if err := start(); err != nil {
			return err
		}
		return utils.SendSSEEvent(w, flusher, "delta", StreamEvent{Content: delta})
	})
	if err != nil {
		status, message := errorStatus(err)
		if !started {
			utils.RespondError(w, status, message)
			return
		}
		if sendErr := utils.SendSSEEvent(w, flusher, "error", StreamEvent{Error: message}); sendErr != nil {
			log.Printf("[summary] failed to send sse error for conversation=%s: %v", id, sendErr)
		}
		return
	}

	if err := start(); err != nil {
		log.Printf("[summary] failed to open sse stream for conversation=%s: %v", id, err)
		return
	}
	if err := utils.SendSSEEvent(w, flusher, "summary", summary); err != nil {
		log.Printf("[summary] failed to send summary for conversation=%s: %v", id, err)
		return
	}
	_ = utils.SendSSEEvent(w, flusher, "end", StreamEvent{ConversationID: id.String()})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chatService.ErrConversationNotFound):
		return http.StatusNotFound, "Conversation not found"
	case errors.Is(err, summaryService.ErrNoMessages):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, summaryService.ErrUnavailable):
		return http.StatusServiceUnavailable, "AI summarization is not configured"
	case errors.Is(err, ai.ErrUpstream):
		log.Printf("[summary] upstream failure: %v", err)
		return http.StatusBadGateway, "Error generating summary"
	default:
		log.Printf("[summary] request failed: %v", err)
		return http.StatusInternalServerError, "internal server error"
	}
}
