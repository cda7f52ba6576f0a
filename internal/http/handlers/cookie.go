package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/memberhub/internal/http/middlewares"
	"github.com/geocoder89/memberhub/internal/session"
)

type CookieSigner interface {
	CookieValue(s *session.Session) (string, error)
}

// SessionCookie writes and clears the session cookie: HttpOnly, SameSite=Lax,
// path "/", Secure when requested.
type SessionCookie struct {
	signer CookieSigner
	maxAge int
	secure bool
}

func NewSessionCookie(signer CookieSigner, ttl time.Duration, secure bool) *SessionCookie {
	return &SessionCookie{
		signer: signer,
		maxAge: int(ttl.Seconds()),
		secure: secure,
	}
}

func (sc *SessionCookie) Set(ctx *gin.Context, s *session.Session) error {
	value, err := sc.signer.CookieValue(s)
	if err != nil {
		return err
	}

	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(middlewares.SessionCookieName, value, sc.maxAge, "/", "", sc.secure, true)
	return nil
}

func (sc *SessionCookie) Clear(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(middlewares.SessionCookieName, "", -1, "/", "", sc.secure, true)
}
