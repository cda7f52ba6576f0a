package middlewares

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/memberhub/internal/actorctx"
	"github.com/geocoder89/memberhub/internal/session"
)

// SessionLoader resolves the cookie value to a session. Keep it small so
// tests can fake it.
type SessionLoader interface {
	Load(ctx context.Context, cookieValue string) (*session.Session, error)
}

// LoadSession attaches the caller's session to the gin context. Requests
// without a valid cookie get an unsaved anonymous session. When the store
// cannot be read, onFault renders the response and must abort; with a nil
// onFault a plain-text 500 is written.
func LoadSession(loader SessionLoader, onFault func(*gin.Context, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, _ := c.Cookie(SessionCookieName)

		s, err := loader.Load(c.Request.Context(), raw)
		if err != nil {
			if onFault != nil {
				onFault(c, err)
				c.Abort()
				return
			}
			slog.Default().ErrorContext(c.Request.Context(), "session load failed", "err", err)
			c.String(http.StatusInternalServerError, "Something went wrong. Please try again later.")
			c.Abort()
			return
		}

		if s.Authenticated && s.UserID != "" {
			c.Request = c.Request.WithContext(actorctx.WithUserID(c.Request.Context(), s.UserID))
		}

		c.Set(CtxSession, s)
		c.Next()
	}
}

// SessionFrom returns the session attached by LoadSession, or nil.
func SessionFrom(c *gin.Context) *session.Session {
	v, ok := c.Get(CtxSession)
	if !ok {
		return nil
	}
	s, _ := v.(*session.Session)
	return s
}

// RequireAuthenticated redirects anonymous and expired sessions to the
// landing page before the handler runs.
func RequireAuthenticated(now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !SessionFrom(c).IsAuthenticated(now()) {
			c.Redirect(http.StatusFound, "/")
			c.Abort()
			return
		}
		c.Next()
	}
}
