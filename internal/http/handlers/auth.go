package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/memberhub/internal/auth"
	"github.com/geocoder89/memberhub/internal/http/middlewares"
	"github.com/geocoder89/memberhub/internal/session"
	"github.com/geocoder89/memberhub/internal/validate"
)

const storeTimeout = 3 * time.Second

type AuthFlow interface {
	SignUpForm(ctx context.Context, sess *session.Session, raw map[string]any) (*session.Session, error)
	LoginForm(ctx context.Context, sess *session.Session, raw map[string]any) (*session.Session, error)
	Logout(ctx context.Context, sess *session.Session) error
}

type AuthHandler struct {
	flow    AuthFlow
	cookies *SessionCookie
}

func NewAuthHandler(flow AuthFlow, cookies *SessionCookie) *AuthHandler {
	return &AuthHandler{flow: flow, cookies: cookies}
}

func (h *AuthHandler) SignUpPage(ctx *gin.Context) {
	ctx.HTML(http.StatusOK, "signup.tmpl", gin.H{"Title": "Sign up"})
}

func (h *AuthHandler) LoginPage(ctx *gin.Context) {
	ctx.HTML(http.StatusOK, "login.tmpl", gin.H{
		"Title": "Log in",
		"Error": ctx.Query("error"),
	})
}

// SubmitUser creates an account from name, email and password and logs the
// new user in.
func (h *AuthHandler) SubmitUser(ctx *gin.Context) {
	raw := rawInput(ctx, "name", "email", "password")

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	next, err := h.flow.SignUpForm(cctx, middlewares.SessionFrom(ctx), raw)
	if err != nil {
		var ve *validate.ValidationError
		switch {
		case validate.IsInjection(err):
			RenderInjection(ctx)
		case errors.As(err, &ve):
			RenderMessage(ctx, http.StatusBadRequest, Message{
				Title:    "Sign up",
				Message:  ve.Message,
				LinkHref: "/signup",
				LinkText: "Go back to Sign Up",
			})
		case errors.Is(err, auth.ErrEmailTaken):
			RenderMessage(ctx, http.StatusConflict, Message{
				Title:    "Sign up",
				Message:  err.Error(),
				LinkHref: "/login",
				LinkText: "Log in instead",
			})
		default:
			RenderFault(ctx, "signup", err)
		}
		return
	}

	h.authenticated(ctx, next)
}

// LoggingIn checks email and password. Every failure goes back to the login
// form with the reason in the query string.
func (h *AuthHandler) LoggingIn(ctx *gin.Context) {
	raw := rawInput(ctx, "email", "password")

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	next, err := h.flow.LoginForm(cctx, middlewares.SessionFrom(ctx), raw)
	if err != nil {
		var ve *validate.ValidationError
		switch {
		case validate.IsInjection(err):
			redirectLogin(ctx, injectionMessage)
		case errors.As(err, &ve):
			redirectLogin(ctx, ve.Message)
		case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrIncorrectPassword):
			redirectLogin(ctx, err.Error())
		default:
			RenderFault(ctx, "login", err)
		}
		return
	}

	h.authenticated(ctx, next)
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	if err := h.flow.Logout(cctx, middlewares.SessionFrom(ctx)); err != nil {
		RenderFault(ctx, "logout", err)
		return
	}

	h.cookies.Clear(ctx)
	ctx.Redirect(http.StatusFound, "/")
}

func (h *AuthHandler) authenticated(ctx *gin.Context, s *session.Session) {
	if err := h.cookies.Set(ctx, s); err != nil {
		RenderFault(ctx, "set session cookie", err)
		return
	}
	ctx.Set(middlewares.CtxSession, s)
	ctx.Redirect(http.StatusFound, "/members")
}

func redirectLogin(ctx *gin.Context, reason string) {
	ctx.Redirect(http.StatusFound, "/login?"+url.Values{"error": {reason}}.Encode())
}
