package ws

import (
	"context"
	"errors"
	"strings"

	"github.com/urosperisic/chatapp/internal/store"
	"github.com/urosperisic/chatapp/pkg/auth"
)

// Identity is the authenticated user attached to a connection.
// Immutable once attached.
type Identity struct {
	ID       string
	Username string
}

// errRejected is the single rejection surfaced for any bad token:
// expired, malformed, bad signature, or a deleted user. Callers must
// not learn which.
var errRejected = errors.New("token rejected")

// TokenVerifier turns a bearer token into an Identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// UserGetter resolves a token's user id to a live user.
type UserGetter interface {
	GetUserByID(ctx context.Context, id string) (store.User, error)
}

// StoreVerifier verifies JWT claims and requires the referenced user to
// still exist.
type StoreVerifier struct {
	jwt   *auth.JWT
	users UserGetter
}

func NewStoreVerifier(j *auth.JWT, users UserGetter) *StoreVerifier {
	return &StoreVerifier{jwt: j, users: users}
}

func (v *StoreVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	uid, err := v.jwt.Verify(token)
	if err != nil {
		return Identity{}, errRejected
	}
	u, err := v.users.GetUserByID(ctx, uid)
	if err != nil {
		return Identity{}, errRejected
	}
	return Identity{ID: u.ID, Username: u.Username}, nil
}

// bearerFromSubprotocol extracts the token from a
// "authorization, <token>" Sec-WebSocket-Protocol header. Returns ""
// when the header is absent or not in that form.
func bearerFromSubprotocol(header string) string {
	parts := strings.Split(header, ",")
	if len(parts) < 2 {
		return ""
	}
	if strings.TrimSpace(parts[0]) != "authorization" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
