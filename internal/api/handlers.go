package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aksara/internal/auth"
	"aksara/internal/config"
	"aksara/internal/logging"
	"aksara/internal/models"
	"aksara/internal/service/assistant"
	"aksara/internal/worker"
)

// ReplyManager runs chat replies off the request goroutine.
type ReplyManager interface {
	Reply(ctx context.Context, req worker.ReplyRequest) (*worker.ReplyResult, error)
	Purge(ctx context.Context, userID, conversationID string)
	CancelUser(userID string)
}

// Handler wires HTTP routes to the assistant service and the reply workers.
type Handler struct {
	assistant *assistant.Service
	auth      *auth.Service
	workers   ReplyManager
	chat      config.ChatConfig
	logger    *zap.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(service *assistant.Service, authService *auth.Service, workers ReplyManager, chat config.ChatConfig, logger *zap.Logger) *Handler {
	if chat.DefaultMaxTokens <= 0 {
		chat.DefaultMaxTokens = config.DefaultMaxTokens
	}
	return &Handler{
		assistant: service,
		auth:      authService,
		workers:   workers,
		chat:      chat,
		logger:    logging.OrNop(logger),
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.health)

	api := router.Group("/api")
	authMW := h.auth.Middleware(h.assistant)

	users := api.Group("/users")
	users.POST("/register", h.registerUser)
	users.POST("/login", h.loginUser)
	users.POST("/refresh-token", h.refreshToken)
	users.POST("/logout", authMW, h.logoutUser)
	users.GET("/profile", authMW, h.getProfile)
	users.PUT("/update-password/:id", authMW, h.requirePathUser(), h.updatePassword)
	users.PUT("/:id", authMW, h.requirePathUser(), h.updateProfile)

	chat := api.Group("/chat", authMW)
	chat.POST("/message", h.sendMessage)
	chat.GET("/histories", h.listHistories)
	chat.GET("/histories/:id", h.getHistory)
	chat.DELETE("/histories/:id", h.deleteHistory)

	admin := api.Group("/admin", authMW, auth.RequireRole(models.RoleAdmin))
	admin.GET("/statistics", h.statistics)
	admin.GET("/users", h.listUsers)
	admin.POST("/users", h.createUser)
	admin.GET("/users/:id", h.getUser)
	admin.PUT("/users/:id", h.updateUser)
	admin.PATCH("/users/:id/toggle-active", h.toggleActive)
	admin.PATCH("/users/:id/change-role", h.changeRole)
	admin.DELETE("/users/:id", h.deleteUser)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requirePathUser rejects edits of an account other than the caller's own.
func (h *Handler) requirePathUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.UserIDFromContext(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "authorization required")
			return
		}
		if c.Param("id") != userID {
			respondError(c, http.StatusForbidden, "you can only modify your own account")
			return
		}
		c.Next()
	}
}

func (h *Handler) currentUser(c *gin.Context) (*models.User, bool) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "authorization required")
		return nil, false
	}
	return user, true
}
