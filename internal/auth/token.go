// Package auth implements authorization for tracking connections.
//
// The default implementation verifies HMAC-signed capability tokens minted
// by the ordering system: a token binds a principal to one delivery and one
// role, with an expiry. The Authorizer interface keeps the relay pluggable
// for deployments with an external authorization service.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
	"github.com/Ireoluwatomide/swift-track-relay/pkg/signature"
)

// Authorizer answers "is principal P allowed to act as role R on delivery D".
type Authorizer interface {
	Authorize(ctx context.Context, deliveryID string, principal domain.Principal, role domain.Role) error
}

// Claims is the signed payload of a tracking token.
type Claims struct {
	DeliveryID string           `json:"delivery_id"`
	Role       domain.Role      `json:"role"`
	Principal  domain.Principal `json:"principal"`
	ExpiresAt  int64            `json:"exp"`
}

// TokenCodec mints and verifies tracking tokens.
// Wire format: base64url(claims JSON) + "." + v1=<hmac-sha256 hex>.
type TokenCodec struct {
	signer *signature.Signer
	ttl    time.Duration
}

// NewTokenCodec creates a codec with the given signing key and token TTL.
func NewTokenCodec(signingKey string, ttl time.Duration) *TokenCodec {
	return &TokenCodec{
		signer: signature.NewSigner(signingKey),
		ttl:    ttl,
	}
}

// Mint creates a signed token for the principal/delivery/role triple.
func (c *TokenCodec) Mint(deliveryID string, principal domain.Principal, role domain.Role, now time.Time) (string, error) {
	if !principal.Valid() {
		return "", fmt.Errorf("mint token: invalid principal")
	}
	claims := Claims{
		DeliveryID: deliveryID,
		Role:       role,
		Principal:  principal,
		ExpiresAt:  now.Add(c.ttl).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("mint token: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + c.signer.Sign(payload), nil
}

// Verify checks the token signature and expiry and returns its claims.
func (c *TokenCodec) Verify(token string, now time.Time) (Claims, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return Claims{}, domain.ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Claims{}, domain.ErrInvalidToken
	}
	if !c.signer.Verify(sig, payload) {
		return Claims{}, domain.ErrInvalidToken
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, domain.ErrInvalidToken
	}
	if now.Unix() >= claims.ExpiresAt {
		return Claims{}, domain.ErrTokenExpired
	}
	return claims, nil
}

// TokenAuthorizer authorizes connections by verifying capability tokens.
type TokenAuthorizer struct {
	codec *TokenCodec
}

// NewTokenAuthorizer creates the default token-based authorizer.
func NewTokenAuthorizer(codec *TokenCodec) *TokenAuthorizer {
	return &TokenAuthorizer{codec: codec}
}

var _ Authorizer = (*TokenAuthorizer)(nil)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// tokenKey carries the raw presented token through the request context.
const tokenKey contextKey = "trackingToken"

// WithToken stores the presented token in the context for Authorize.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromContext retrieves the presented token from the context.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}

// Authorize implements Authorizer. The presented token must verify, match
// the requested delivery and role, and name the same principal.
func (a *TokenAuthorizer) Authorize(ctx context.Context, deliveryID string, principal domain.Principal, role domain.Role) error {
	token, ok := TokenFromContext(ctx)
	if !ok {
		return domain.ErrUnauthorized
	}

	claims, err := a.codec.Verify(token, time.Now())
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			return err
		}
		return domain.ErrUnauthorized
	}

	if claims.DeliveryID != deliveryID || claims.Role != role {
		return domain.ErrUnauthorized
	}
	if claims.Principal.Kind != principal.Kind || claims.Principal.ID != principal.ID {
		return domain.ErrUnauthorized
	}
	if role == domain.RoleDriver && !claims.Principal.CanPublish() {
		return domain.ErrUnauthorized
	}
	return nil
}
