package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aksara/internal/auth"
	"aksara/internal/models"
	"aksara/internal/service/assistant"
)

func (h *Handler) registerUser(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.assistant.RegisterUser(c.Request.Context(), assistant.RegisterInput{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Password:    req.Password,
	})
	if err != nil {
		h.respondErr(c, err)
		return
	}
	tokens, err := h.auth.IssuePair(c.Request.Context(), user)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	h.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("username", user.Username))
	respondOK(c, http.StatusCreated, "user registered successfully", tokens)
}

func (h *Handler) loginUser(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.assistant.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	tokens, err := h.auth.IssuePair(c.Request.Context(), user)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	respondOK(c, http.StatusAccepted, "login successful", tokens)
}

func (h *Handler) refreshToken(c *gin.Context) {
	refresh := h.auth.TokenFromRequest(c)
	if refresh == "" {
		respondError(c, http.StatusUnauthorized, "refresh token required")
		return
	}
	ctx := c.Request.Context()
	userID, err := h.auth.ValidateToken(ctx, refresh, auth.KindRefresh)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	user, err := h.assistant.GetUser(ctx, userID)
	if err != nil || !user.IsActive {
		respondError(c, http.StatusUnauthorized, "account is not available")
		return
	}
	access, err := h.auth.IssueToken(ctx, user.ID, auth.KindAccess)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, "token refreshed", models.RefreshResponse{
		AccessToken: access,
		TokenType:   auth.TokenType,
	})
}

func (h *Handler) logoutUser(c *gin.Context) {
	ctx := c.Request.Context()
	if token, ok := auth.AuthTokenFromContext(c); ok {
		if err := h.auth.RevokeToken(ctx, token); err != nil {
			h.respondErr(c, err)
			return
		}
	}
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if c.Request.ContentLength > 0 && c.ShouldBindJSON(&body) == nil && body.RefreshToken != "" {
		if err := h.auth.RevokeToken(ctx, body.RefreshToken); err != nil {
			h.logger.Warn("revoke refresh token failed", zap.Error(err))
		}
	}
	respondOK(c, http.StatusOK, "logged out", nil)
}

func (h *Handler) getProfile(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	respondOK(c, http.StatusOK, "profile retrieved", user)
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req models.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.assistant.UpdateProfile(c.Request.Context(), c.Param("id"), assistant.ProfileInput{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
	})
	if err != nil {
		h.respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, "profile updated", user)
}

func (h *Handler) updatePassword(c *gin.Context) {
	var req models.PasswordUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.assistant.ChangePassword(c.Request.Context(), c.Param("id"), req.OldPassword, req.NewPassword); err != nil {
		h.respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, "password updated", nil)
}
