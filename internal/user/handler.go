package user

import (
	"errors"

	"TrackHub/internal/session"
	"TrackHub/pkg/response"
	"TrackHub/pkg/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=6,max=100"`
	Nickname string `json:"nickname" binding:"omitempty,max=50"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LogoutRequest struct {
	Session string `json:"session" binding:"required"`
}

// Handler serves the auth endpoints. Login mints both a JWT for the HTTP API
// and a redis session the subscriber socket binds against.
type Handler struct {
	repo     *Repo
	sessions *session.Store
}

func NewHandler(repo *Repo, sessions *session.Store) *Handler {
	return &Handler{repo: repo, sessions: sessions}
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ReplyBadRequest(c, err.Error())
		return
	}
	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		zap.L().Error("failed to hash password", zap.Error(err))
		response.ReplyError500(c, "Failed to hash password")
		return
	}
	if err := h.repo.Insert(req.Username, hashedPassword, req.Nickname); err != nil {
		zap.L().Error("failed to insert user", zap.Error(err))
		response.ReplyError500(c, "Failed to register user")
		return
	}
	response.ReplySuccess(c, "User registered successfully")
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ReplyBadRequest(c, err.Error())
		return
	}
	u, err := h.repo.FindByUsername(req.Username)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			zap.L().Error("failed to load user at login", zap.Error(err))
		}
		response.ReplyUnauthorized(c, "Invalid username or password")
		return
	}
	if !utils.CheckPasswordHash(req.Password, u.PasswordHash) {
		response.ReplyUnauthorized(c, "Invalid username or password")
		return
	}

	token, err := utils.GenerateToken(u.Username, u.ID)
	if err != nil {
		zap.L().Error("failed to generate token", zap.Error(err))
		response.ReplyError500(c, "Failed to generate token")
		return
	}
	sessKey, err := h.sessions.Create(c.Request.Context(), &session.Session{UserID: u.ID, Username: u.Username})
	if err != nil {
		zap.L().Error("failed to create session", zap.Error(err))
		response.ReplyError500(c, "Failed to create session")
		return
	}
	response.ReplySuccessWithData(c, "Login successful", gin.H{
		"token":   token,
		"session": sessKey,
	})
}

func (h *Handler) Logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ReplyBadRequest(c, err.Error())
		return
	}
	if err := h.sessions.Destroy(c.Request.Context(), session.ExtractKey(req.Session)); err != nil {
		zap.L().Error("failed to destroy session", zap.Error(err))
		response.ReplyError500(c, "Failed to destroy session")
		return
	}
	response.ReplySuccess(c, "Logged out")
}
