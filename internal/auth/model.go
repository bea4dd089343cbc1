package auth

import (
	"context"
	"errors"

	"github.com/gofrs/uuid"
)

var (
	ErrUnauthenticated = errors.New("authentication credentials were not provided or are invalid")
	ErrForbidden       = errors.New("you do not have permission to perform this action")
	ErrUserNotFound    = errors.New("user not found")
)

type User struct {
	ID           uuid.UUID `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	APIToken     string    `db:"api_token"`
	IsStaff      bool      `db:"is_staff"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID  uuid.UUID
	IsStaff bool
}

// CanAccess reports whether the principal owns the resource or is an administrator.
// A resource whose owner was deleted is reachable by administrators only.
func (p Principal) CanAccess(owner uuid.NullUUID) bool {
	if p.IsStaff {
		return true
	}
	return owner.Valid && owner.UUID == p.UserID
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
