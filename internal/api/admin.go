package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aksara/internal/models"
)

func (h *Handler) statistics(c *gin.Context) {
	stats, err := h.assistant.Statistics(c.Request.Context())
	if err != nil {
		h.respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, "statistics retrieved", stats)
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.assistant.ListUsers(c.Request.Context())
	if err != nil {
		h.respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, "users retrieved", users)
}

func (h *Handler) getUser(c *gin.Context) {
	user, err := h.assistant.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, "user retrieved", user)
}

func (h *Handler) createUser(c *gin.Context) {
	var req models.AdminUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.assistant.CreateUser(c.Request.Context(), req)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	respondOK(c, http.StatusCreated, "user created", user)
}

func (h *Handler) updateUser(c *gin.Context) {
	var req models.AdminUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.assistant.UpdateUser(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if !user.IsActive {
		h.signOut(c, user.ID)
	}
	respondOK(c, http.StatusOK, "user updated", user)
}

func (h *Handler) toggleActive(c *gin.Context) {
	var req models.ToggleActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "is_active is required")
		return
	}
	user, err := h.assistant.SetActive(c.Request.Context(), c.Param("id"), *req.IsActive)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if !user.IsActive {
		h.signOut(c, user.ID)
	}
	respondOK(c, http.StatusOK, "user status updated", user)
}

func (h *Handler) changeRole(c *gin.Context) {
	var req models.ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "role is required")
		return
	}
	user, err := h.assistant.SetRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, "user role updated", user)
}

func (h *Handler) deleteUser(c *gin.Context) {
	actor, ok := h.currentUser(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.assistant.DeleteUser(c.Request.Context(), actor.ID, id); err != nil {
		h.respondErr(c, err)
		return
	}
	h.signOut(c, id)
	respondOK(c, http.StatusOK, "user deleted", nil)
}

// signOut revokes every token of a disabled account and drops its queued replies.
func (h *Handler) signOut(c *gin.Context, userID string) {
	if err := h.auth.RevokeUserTokens(c.Request.Context(), userID); err != nil {
		h.logger.Warn("revoke user tokens failed", zap.String("user_id", userID), zap.Error(err))
	}
	h.workers.CancelUser(userID)
}
