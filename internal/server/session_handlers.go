package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/inkwell/internal/auth"
	"github.com/MarcoPoloResearchLab/inkwell/internal/storage"
	"github.com/MarcoPoloResearchLab/inkwell/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerRequestPayload struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type userResponsePayload struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
}

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponsePayload struct {
	AccessToken   string `json:"accessToken"`
	TokenType     string `json:"tokenType"`
	ExpiresAt     int64  `json:"expiresAt"`
	UserID        string `json:"userId"`
	SchemaVersion int    `json:"schemaVersion"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	hash, err := auth.HashPassword(request.Password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "user.weak_password"})
			return
		}
		h.logger.Error("password hashing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "registration failed", Code: "user.create_failed"})
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), users.NewUser{
		Username:     request.Username,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(request.DisplayName),
	})
	switch {
	case errors.Is(err, users.ErrUsernameTaken):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), Code: "user.username_taken"})
		return
	case errors.Is(err, users.ErrInvalidUser):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "user.invalid"})
		return
	case err != nil:
		h.logger.Error("user registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "registration failed", Code: "user.create_failed"})
		return
	}

	c.JSON(http.StatusCreated, userResponsePayload{ID: user.ID, Username: user.Username, DisplayName: user.DisplayName})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Username) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "username and password are required", Code: "request.invalid"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.GetUserByUsername(ctx, request.Username)
	if err != nil && !errors.Is(err, users.ErrUserNotFound) {
		h.logger.Error("user lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "login failed", Code: "session.create_failed"})
		return
	}
	if err != nil || auth.CheckPassword(user.PasswordHash, request.Password) != nil {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: auth.ErrInvalidCredentials.Error(), Code: "session.invalid_credentials"})
		return
	}

	var schemaVersion int
	err = h.registry.Do(ctx, user.ID, func(store *storage.Store) error {
		schemaVersion = store.Version
		return nil
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	token, expiresAt, err := h.tokens.IssueToken(user.ID, user.Username)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "login failed", Code: "session.create_failed"})
		return
	}
	if err := h.users.Touch(ctx, user.ID); err != nil {
		h.logger.Warn("failed to record last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken:   token,
		TokenType:     "Bearer",
		ExpiresAt:     expiresAt.UnixMilli(),
		UserID:        user.ID,
		SchemaVersion: schemaVersion,
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	if err := h.registry.Release(c.GetString(userIDContextKey)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDestroyStore(c *gin.Context) {
	if err := h.registry.Destroy(c.GetString(userIDContextKey)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleExport(c *gin.Context) {
	store, err := h.registry.Current()
	if err != nil {
		h.respondError(c, err)
		return
	}
	exported, err := store.Export(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", exported)
}
