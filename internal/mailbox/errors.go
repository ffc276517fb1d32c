package mailbox

import (
	"errors"
	"fmt"
)

// ErrMessageNotFound is returned when a fetch yields no message for a UID.
var ErrMessageNotFound = errors.New("message not found")

// AuthError indicates that the server rejected the configured credentials.
type AuthError struct {
	Username string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Username, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
