package users

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

// User represents an account that can act on workflow documents.
type User struct {
	ID            int64       `json:"id"`
	Username      string      `json:"username"`
	Email         string      `json:"email"`
	Role          shared.Role `json:"role"`
	SignaturePath string      `json:"signature_path,omitempty"`
}

// Principal converts the account into the identity passed to workflow services.
func (u User) Principal() shared.Principal {
	return shared.Principal{UserID: u.ID, Username: u.Username, Role: u.Role}
}

// ErrUserNotFound indicates the user id is unknown.
var ErrUserNotFound = fmt.Errorf("%w: user", shared.ErrNotFound)
