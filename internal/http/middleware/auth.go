package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/atrium-auth/internal/domain"
	"github.com/smallbiznis/atrium-auth/internal/service"
)

const userContextKey = "auth.user"

// RequireAuth validates the Bearer access token and loads the current user
// into the request context. Requests without a valid, live access token are
// rejected with 401.
func RequireAuth(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Unauthorized."})
			return
		}
		user, err := auth.ValidateAccessToken(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Unauthorized."})
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}

// GetUser returns the authenticated user placed by RequireAuth.
func GetUser(c *gin.Context) (domain.User, bool) {
	v, ok := c.Get(userContextKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := v.(domain.User)
	return user, ok
}
