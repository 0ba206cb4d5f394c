package websocket

import "errors"

// Error kinds of the real-time protocol. Only ErrUnauthorized and
// ErrTransportFailure end a connection; the rest are reported to the sender
// and the read loop continues.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAuthorizationDenied = errors.New("not a participant of this chat")
	ErrMalformedPayload    = errors.New("malformed payload")
	ErrPersistence         = errors.New("message could not be stored")
	ErrDeliveryFailure     = errors.New("delivery failed")
	ErrTransportFailure    = errors.New("transport failure")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrStoreUnavailable    = errors.New("membership lookup failed")
)

// Error codes carried by error frames.
const (
	CodeMalformedPayload    = "malformed_payload"
	CodeAuthorizationDenied = "authorization_denied"
	CodePersistenceFailed   = "persistence_failed"
	CodeRateLimited         = "rate_limited"
	CodeUnavailable         = "unavailable"
	CodeInternal            = "internal_error"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrMalformedPayload, CodeMalformedPayload},
	{ErrAuthorizationDenied, CodeAuthorizationDenied},
	{ErrPersistence, CodePersistenceFailed},
	{ErrRateLimited, CodeRateLimited},
	{ErrStoreUnavailable, CodeUnavailable},
}

// classify returns the wire code for err and the text safe to show the
// client. Wrapped causes stay in the server log.
func classify(err error) (string, string) {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code, c.err.Error()
		}
	}

	return CodeInternal, "internal error"
}
