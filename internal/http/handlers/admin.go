package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/memberhub/internal/auth"
	"github.com/geocoder89/memberhub/internal/domain/user"
	"github.com/geocoder89/memberhub/internal/http/middlewares"
	"github.com/geocoder89/memberhub/internal/session"
)

type AdminService interface {
	ListUsers(ctx context.Context, sess *session.Session) ([]user.User, error)
	Promote(ctx context.Context, sess *session.Session, id string) error
	Demote(ctx context.Context, sess *session.Session, id string) error
}

type AdminHandler struct {
	admin AdminService
}

func NewAdminHandler(admin AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

func (h *AdminHandler) Admin(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	users, err := h.admin.ListUsers(cctx, middlewares.SessionFrom(ctx))
	if err != nil {
		h.fail(ctx, "list users", err)
		return
	}

	ctx.HTML(http.StatusOK, "admin.tmpl", gin.H{
		"Title": "Admin",
		"Users": users,
	})
}

func (h *AdminHandler) Promote(ctx *gin.Context) {
	h.setRole(ctx, "promote", h.admin.Promote)
}

func (h *AdminHandler) Demote(ctx *gin.Context) {
	h.setRole(ctx, "demote", h.admin.Demote)
}

func (h *AdminHandler) setRole(ctx *gin.Context, op string, apply func(context.Context, *session.Session, string) error) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	if err := apply(cctx, middlewares.SessionFrom(ctx), ctx.Param("userId")); err != nil {
		h.fail(ctx, op, err)
		return
	}

	ctx.Redirect(http.StatusFound, "/admin")
}

func (h *AdminHandler) fail(ctx *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		ctx.Redirect(http.StatusFound, "/")
	case errors.Is(err, auth.ErrForbidden):
		// in-page denial, not an HTTP level rejection
		RenderMessage(ctx, http.StatusOK, Message{
			Title:    "Admin",
			Message:  err.Error(),
			Alert:    true,
			LinkHref: "/members",
			LinkText: "Members Area",
		})
	case errors.Is(err, user.ErrNotFound):
		RenderError(ctx, http.StatusNotFound, err.Error())
	default:
		RenderFault(ctx, op, err)
	}
}
