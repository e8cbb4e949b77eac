package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dicampus-admin/internal/middleware"
	"github.com/noah-isme/dicampus-admin/internal/models"
	appErrors "github.com/noah-isme/dicampus-admin/pkg/errors"
	"github.com/noah-isme/dicampus-admin/pkg/response"
)

type identityProvider interface {
	SignIn(ctx context.Context, cred models.Credential) (*models.Session, error)
	SignOut(ctx context.Context, token string) error
}

// AuthHandler wires HTTP endpoints to the identity provider.
type AuthHandler struct {
	service identityProvider
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc identityProvider) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Login godoc
// @Summary Sign in
// @Description Authenticate an operator by email and password. meta.redirect echoes the redirect query parameter.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.Credential true "Credentials"
// @Param redirect query string false "Where to go after sign-in"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.Credential
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	session, err := h.service.SignIn(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, session, map[string]interface{}{"redirect": safeRedirect(c.Query("redirect"))})
}

// Logout godoc
// @Summary Sign out
// @Tags Authentication
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
		return
	}
	if err := h.service.SignOut(c.Request.Context(), token); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Me godoc
// @Summary Current operator
// @Tags Authentication
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	principal := middleware.PrincipalFrom(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, principal)
}

// safeRedirect only allows local paths so the login page cannot be used as an open redirect.
func safeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "/"
	}
	return target
}
