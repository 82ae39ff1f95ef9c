package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"aksara/internal/models"
	"aksara/internal/worker"
)

const (
	minTemperature = 0.0
	maxTemperature = 1.0
	maxReplyTokens = 4096
)

func (h *Handler) sendMessage(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	input := strings.TrimSpace(req.Input)
	if input == "" {
		respondError(c, http.StatusBadRequest, "input cannot be empty")
		return
	}
	temperature := h.chat.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if temperature < minTemperature || temperature > maxTemperature {
		respondError(c, http.StatusBadRequest, "temperature must be between 0 and 1")
		return
	}
	maxTokens := h.chat.DefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if maxTokens < 1 || maxTokens > maxReplyTokens {
		respondError(c, http.StatusBadRequest, "max_tokens must be between 1 and 4096")
		return
	}

	res, err := h.workers.Reply(c.Request.Context(), worker.ReplyRequest{
		UserID:         user.ID,
		ConversationID: strings.TrimSpace(req.ChatHistoryID),
		Input:          input,
		Temperature:    float32(temperature),
		MaxTokens:      maxTokens,
	})
	if err != nil {
		h.respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, "message processed", models.ChatResponse{
		ConversationID: res.Conversation.ID,
		Model:          res.Conversation.Model,
		Input:          res.UserMessage.Text,
		Output:         res.AssistantMessage.Text,
		Timestamp:      res.AssistantMessage.CreatedAt,
	})
}

func (h *Handler) listHistories(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	list, err := h.assistant.ListConversations(c.Request.Context(), user.ID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if list == nil {
		list = make([]models.ConversationSummary, 0)
	}
	respondOK(c, http.StatusOK, "chat histories retrieved", list)
}

func (h *Handler) getHistory(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	detail, err := h.assistant.GetConversationDetail(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, "chat history retrieved", detail)
}

func (h *Handler) deleteHistory(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.assistant.DeleteConversation(c.Request.Context(), user.ID, id); err != nil {
		h.respondErr(c, err)
		return
	}
	h.workers.Purge(c.Request.Context(), user.ID, id)
	respondOK(c, http.StatusOK, "chat history deleted", nil)
}
