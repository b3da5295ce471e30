package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smallbiznis/atrium-auth/internal/http/middleware"
	"github.com/smallbiznis/atrium-auth/internal/service"
)

// AuthHandler exposes the auth command handlers over HTTP.
type AuthHandler struct {
	Auth *service.AuthService
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type signupRequest struct {
	Email          string `json:"email" binding:"required"`
	Password       string `json:"password" binding:"required"`
	OrgName        string `json:"organization_name" binding:"required"`
	OrgSlug        string `json:"organization_slug" binding:"required"`
	OrgDescription string `json:"organization_description"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "email and password are required"})
		return
	}
	sess, err := h.Auth.Login(c.Request.Context(), requestMeta(c), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(sess))
}

// Signup handles POST /auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "email, password, organization_name and organization_slug are required"})
		return
	}
	sess, err := h.Auth.Signup(c.Request.Context(), requestMeta(c), service.SignupInput{
		Email:          req.Email,
		Password:       req.Password,
		OrgName:        req.OrgName,
		OrgSlug:        req.OrgSlug,
		OrgDescription: req.OrgDescription,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse(sess))
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "refresh_token is required"})
		return
	}
	sess, err := h.Auth.Refresh(c.Request.Context(), requestMeta(c), req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(sess))
}

// Logout handles POST /auth/logout. It ends every live session for the
// token's user.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "refresh_token is required"})
		return
	}
	if err := h.Auth.Logout(c.Request.Context(), requestMeta(c), req.RefreshToken); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Me handles GET /auth/me behind the JWT middleware.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.GetUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	resp := gin.H{
		"id":             user.ID,
		"email":          user.Email,
		"email_verified": user.EmailVerified,
		"is_active":      user.IsActive,
		"role":           user.Role,
	}
	if user.HasOrg() {
		resp["organization_id"] = user.OrgID
	}
	c.JSON(http.StatusOK, resp)
}

func sessionResponse(sess service.Session) gin.H {
	resp := gin.H{
		"token_type":               "Bearer",
		"access_token":             sess.Pair.AccessToken,
		"refresh_token":            sess.Pair.RefreshToken,
		"expires_in":               sess.Pair.ExpiresIn,
		"access_token_expires_at":  sess.Pair.AccessExpiresAt,
		"refresh_token_expires_at": sess.Pair.RefreshExpiresAt,
		"user": gin.H{
			"id":    sess.User.ID,
			"email": sess.User.Email,
		},
	}
	if sess.Org != nil {
		resp["organization"] = gin.H{
			"id":   sess.Org.ID,
			"slug": sess.Org.Slug,
			"name": sess.Org.Name,
		}
	}
	return resp
}

// respondError translates the service's tagged errors to the wire format.
// Anything that is not an AuthError is an internal failure and surfaces as
// a generic server error.
func respondError(c *gin.Context, err error) {
	if authErr, ok := err.(*service.AuthError); ok {
		body := gin.H{"error": authErr.Code, "error_description": authErr.Description}
		if len(authErr.Details) > 0 {
			body["details"] = authErr.Details
		}
		c.JSON(authErr.Status, body)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal error."})
}

func requestMeta(c *gin.Context) service.Meta {
	correlationID := c.GetHeader("X-Correlation-ID")
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return service.Meta{
		CorrelationID: correlationID,
		CausationID:   c.GetHeader("X-Causation-ID"),
		IPAddress:     c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	}
}
