package middlewares

const (
	CtxRequestID = "request_id"
	CtxSession   = "session"
)

// SessionCookieName is the cookie that carries the signed session id.
const SessionCookieName = "session_id"
