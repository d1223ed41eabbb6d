package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailsync/internal/model"
	"mailsync/pkg/util"
)

// memberStore is the slice of the team member repository the login flow
// needs.
type memberStore interface {
	FindByEmail(ctx context.Context, siteID, email string) (*model.TeamMember, error)
}

type AuthHandler struct {
	members   memberStore
	jwtSecret string
	logger    *zap.Logger
}

func NewAuthHandler(members memberStore, jwtSecret string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{members: members, jwtSecret: jwtSecret, logger: logger}
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		SiteID   string `json:"site_id" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	member, err := h.members.FindByEmail(c.Request.Context(), req.SiteID, req.Email)
	if err != nil {
		h.logger.Error("Team member lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if member == nil || !util.CheckPassword(req.Password, member.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := util.GenerateJWT(member.ID.String(), h.jwtSecret)
	if err != nil {
		h.logger.Error("Token generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
