package auth

import (
	"context"

	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
)

// AllowAll authorizes every well-formed principal. Intended for local
// development and tests; production wiring uses TokenAuthorizer.
type AllowAll struct{}

var _ Authorizer = AllowAll{}

// Authorize implements Authorizer.
func (AllowAll) Authorize(_ context.Context, _ string, principal domain.Principal, role domain.Role) error {
	if !principal.Valid() {
		return domain.ErrUnauthorized
	}
	if role == domain.RoleDriver && !principal.CanPublish() {
		return domain.ErrUnauthorized
	}
	return nil
}
