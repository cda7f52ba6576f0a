package handlers

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/memberhub/internal/auth"
	"github.com/geocoder89/memberhub/internal/domain/user"
	"github.com/geocoder89/memberhub/internal/http/middlewares"
	"github.com/geocoder89/memberhub/internal/session"
)

type MembersReader interface {
	Members(ctx context.Context, sess *session.Session) (auth.MembersView, error)
}

type MembersHandler struct {
	members MembersReader
	now     func() time.Time
}

func NewMembersHandler(members MembersReader, now func() time.Time) *MembersHandler {
	if now == nil {
		now = time.Now
	}
	return &MembersHandler{members: members, now: now}
}

func (h *MembersHandler) Home(ctx *gin.Context) {
	s := middlewares.SessionFrom(ctx)

	data := gin.H{"Authenticated": false}
	if s.IsAuthenticated(h.now()) {
		data["Authenticated"] = true
		data["Name"] = s.Name
		data["IsAdmin"] = s.Role == user.RoleAdmin
	}

	ctx.HTML(http.StatusOK, "home.tmpl", data)
}

func (h *MembersHandler) Members(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	view, err := h.members.Members(cctx, middlewares.SessionFrom(ctx))
	if err != nil {
		if errors.Is(err, auth.ErrNotAuthenticated) {
			ctx.Redirect(http.StatusFound, "/")
			return
		}
		RenderFault(ctx, "members", err)
		return
	}

	ctx.HTML(http.StatusOK, "members.tmpl", gin.H{
		"Title": "Members",
		"Name":  view.Name,
		"Role":  view.Role,
		"Image": memberImages[rand.IntN(len(memberImages))],
	})
}
