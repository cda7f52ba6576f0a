package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/memberhub/internal/auth"
	"github.com/geocoder89/memberhub/internal/validate"
)

type NameLookup interface {
	LookupByName(ctx context.Context, raw any) (auth.LookupResult, error)
}

type LookupHandler struct {
	lookup NameLookup
}

func NewLookupHandler(lookup NameLookup) *LookupHandler {
	return &LookupHandler{lookup: lookup}
}

// ByName looks a user up by the "user" query parameter. Every value that is
// not a plain string of at most 20 characters is answered with the injection
// page and never reaches the store.
func (h *LookupHandler) ByName(ctx *gin.Context) {
	raw := rawValue(ctx, "user")
	if raw == nil || raw == "" {
		RenderMessage(ctx, http.StatusOK, Message{
			Title: "Lookup",
			Hints: []string{
				"no user provided - try /nosql-injection?user=name",
				"or /nosql-injection?user[$ne]=name",
			},
		})
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	res, err := h.lookup.LookupByName(cctx, raw)
	if err != nil {
		var ve *validate.ValidationError
		if errors.As(err, &ve) {
			RenderInjection(ctx)
			return
		}
		RenderFault(ctx, "lookup by name", err)
		return
	}

	RenderMessage(ctx, http.StatusOK, Message{
		Title:   "Lookup",
		Message: "Hello " + res.Name,
	})
}
