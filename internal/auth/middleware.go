package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"aksara/internal/models"
)

const (
	userContextKey      = "auth_user"
	authTokenContextKey = "auth_token"
)

// UserLookup loads the account behind a validated token.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Middleware validates bearer access tokens and stores the authenticated user in the context.
func (s *Service) Middleware(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		authToken := s.TokenFromRequest(c)
		if authToken == "" {
			abort(c, http.StatusUnauthorized, "authorization required")
			return
		}
		userID, err := s.ValidateToken(c.Request.Context(), authToken, KindAccess)
		if err != nil {
			abort(c, http.StatusUnauthorized, err.Error())
			return
		}
		user, err := users.GetUser(c.Request.Context(), userID)
		if err != nil {
			abort(c, http.StatusUnauthorized, "user not found")
			return
		}
		if !user.IsActive {
			abort(c, http.StatusUnauthorized, "account is inactive")
			return
		}
		c.Set(userContextKey, user)
		c.Set(authTokenContextKey, authToken)
		c.Next()
	}
}

// RequireRole rejects requests whose user does not hold one of roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := UserFromContext(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "authorization required")
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "insufficient permissions")
	}
}

// UserFromContext retrieves the authenticated user from the gin context.
func UserFromContext(c *gin.Context) (*models.User, bool) {
	val, ok := c.Get(userContextKey)
	if !ok {
		return nil, false
	}
	user, ok := val.(*models.User)
	return user, ok && user != nil
}

// UserIDFromContext retrieves the authenticated user id from the gin context.
func UserIDFromContext(c *gin.Context) (string, bool) {
	user, ok := UserFromContext(c)
	if !ok {
		return "", false
	}
	return user.ID, user.ID != ""
}

// AuthTokenFromContext retrieves the bearer token captured by the middleware.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(authTokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

// TokenFromRequest extracts the bearer token from the Authorization header.
func (s *Service) TokenFromRequest(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"message": message,
		"error":   gin.H{"error_code": status},
	})
}
