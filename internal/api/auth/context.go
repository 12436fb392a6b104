package auth

import "github.com/labstack/echo/v4"

// ContextKey represents keys for context values
type ContextKey string

const (
	IdentityContextKey ContextKey = "identity"
)

// GuestSessionHeader carries the guest session id. It is generated and echoed back
// when a request without credentials does not send one.
const GuestSessionHeader = "X-Guest-Session"

// Identity is the caller of a request. Guests are identified by their session id.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Guest bool   `json:"guest"`
}

// FromContext returns the identity set by Identify.
func FromContext(c echo.Context) (Identity, bool) {
	id, ok := c.Get(string(IdentityContextKey)).(Identity)
	return id, ok
}
