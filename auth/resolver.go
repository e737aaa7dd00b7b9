// auth/resolver.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/storage"
	"github.com/ViniZap4/lumi-notes/token"
)

var (
	// ErrMissingCredential means no usable "Bearer <token>" header was sent.
	ErrMissingCredential = errors.New("auth: missing credential")

	// ErrUnknownIdentity means the token verified but its subject no
	// longer exists.
	ErrUnknownIdentity = errors.New("auth: unknown identity")
)

// IsAuthFailure reports whether err is one of the authentication failure
// kinds. The boundary reports all of them the same way.
func IsAuthFailure(err error) bool {
	return FailureKind(err) != ""
}

// FailureKind names the authentication failure in err, or returns "" when
// err is not one. The name is for logs and metrics only.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, token.ErrMalformed):
		return "malformed"
	case errors.Is(err, token.ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, ErrUnknownIdentity):
		return "unknown_identity"
	}
	return ""
}

// TokenVerifier is the part of token.Codec the resolver needs.
type TokenVerifier interface {
	Verify(tok string) (*token.Claims, error)
}

// TokenIssuer is the part of token.Codec the account flow needs.
type TokenIssuer interface {
	Issue(identityID string) (string, time.Time, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingCredential
	}
	tok = strings.TrimSpace(tok)
	if tok == "" || strings.ContainsAny(tok, " \t") {
		return "", ErrMissingCredential
	}
	return tok, nil
}

// Resolver turns a presented credential into the identity it belongs to.
// Every note operation runs behind it.
type Resolver struct {
	tokens     TokenVerifier
	identities storage.IdentityStore
}

// NewResolver returns a Resolver.
func NewResolver(tokens TokenVerifier, identities storage.IdentityStore) *Resolver {
	return &Resolver{tokens: tokens, identities: identities}
}

// Resolve authenticates an Authorization header value.
func (r *Resolver) Resolve(ctx context.Context, header string) (*domain.Identity, error) {
	tok, err := BearerToken(header)
	if err != nil {
		return nil, err
	}
	return r.ResolveToken(ctx, tok)
}

// ResolveToken authenticates a bare token. Token failures are returned
// unchanged; a store failure is returned wrapped and is not an
// authentication failure.
func (r *Resolver) ResolveToken(ctx context.Context, tok string) (*domain.Identity, error) {
	claims, err := r.tokens.Verify(tok)
	if err != nil {
		return nil, err
	}

	identity, err := r.identities.FindByID(ctx, claims.Subject)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnknownIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("auth: looking up identity %s: %w", claims.Subject, err)
	}
	return identity, nil
}
