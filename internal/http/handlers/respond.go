package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/geocoder89/memberhub/internal/auth"
	"github.com/geocoder89/memberhub/internal/http/middlewares"
)

const (
	injectionMessage   = "A NoSQL injection attack was detected!!"
	notFoundMessage    = "Page not found - 404"
	serverFaultMessage = "Something went wrong. Please try again later."
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get(middlewares.CtxRequestID)

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

// RespondError writes the JSON error envelope used by the probe endpoints.
func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

// Message is the data for message.tmpl.
type Message struct {
	Title     string
	Message   string
	Alert     bool
	Hints     []string
	LinkHref  string
	LinkText  string
	RequestID string
}

func RenderMessage(ctx *gin.Context, status int, msg Message) {
	ctx.HTML(status, "message.tmpl", msg)
}

// RenderError renders a plain error page carrying the request id.
func RenderError(ctx *gin.Context, status int, message string) {
	RenderMessage(ctx, status, Message{
		Title:     http.StatusText(status),
		Message:   message,
		LinkHref:  "/",
		LinkText:  "Home",
		RequestID: requestIDFrom(ctx),
	})
}

// RenderFault logs err with the request id and renders the generic 500 page.
func RenderFault(ctx *gin.Context, op string, err error) {
	storeFault := auth.IsStoreFault(err)

	msg := "request failed"
	if storeFault {
		msg = "store unavailable"
	}

	slog.Default().ErrorContext(ctx.Request.Context(), msg,
		"op", op,
		"err", err,
		"store_fault", storeFault,
		"request_id", requestIDFrom(ctx),
	)
	RenderError(ctx, http.StatusInternalServerError, serverFaultMessage)
}

// SessionFault is the LoadSession fault hook: the session store could not be
// read, so no page handler runs.
func SessionFault(ctx *gin.Context, err error) {
	RenderFault(ctx, "load session", oops.Code(auth.CodeStoreFault).With("operation", "load session").Wrap(err))
	ctx.Abort()
}

func RenderInjection(ctx *gin.Context) {
	RenderMessage(ctx, http.StatusBadRequest, Message{
		Title:   "Rejected",
		Message: injectionMessage,
		Alert:   true,
	})
}

// NotFound is the catch-all for unmatched routes.
func NotFound(ctx *gin.Context) {
	RenderMessage(ctx, http.StatusNotFound, Message{
		Title:   "Not found",
		Message: notFoundMessage,
	})
}
