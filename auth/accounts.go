package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/storage"
)

// MinPasswordLength is the shortest password Register accepts. It matches
// the min tag on Registration.Password.
const MinPasswordLength = 8

var (
	// ErrInvalidCredentials is returned by Login for an unknown login and
	// for a wrong password alike.
	ErrInvalidCredentials = errors.New("auth: invalid login or password")

	// ErrLoginTaken is returned by Register when the login is in use.
	ErrLoginTaken = errors.New("auth: login already registered")
)

// Session is what a successful register or login hands back.
type Session struct {
	Identity  *domain.Identity
	Token     string
	ExpiresAt time.Time
}

// Registration is the input to Register.
type Registration struct {
	Login       string `json:"login" validate:"required"`
	Password    string `json:"password" validate:"min=8"`
	DisplayName string `json:"display_name"`
}

// Accounts creates identities and exchanges passwords for tokens. It sits
// in front of the credential store; the gate itself never sees passwords.
type Accounts struct {
	identities storage.IdentityStore
	hasher     *Hasher
	tokens     TokenIssuer
	now        func() time.Time

	// dummyHash is compared against when a login is unknown so that both
	// failure paths cost one hash.
	dummyHash string
}

// NewAccounts returns an Accounts service.
func NewAccounts(identities storage.IdentityStore, hasher *Hasher, tokens TokenIssuer) (*Accounts, error) {
	dummy, err := hasher.Hash("lumi-notes-dummy-password")
	if err != nil {
		return nil, err
	}
	return &Accounts{
		identities: identities,
		hasher:     hasher,
		tokens:     tokens,
		now:        time.Now,
		dummyHash:  dummy,
	}, nil
}

// Register creates an identity and issues its first token.
func (a *Accounts) Register(ctx context.Context, reg Registration) (*Session, error) {
	login := normalizeLogin(reg.Login)
	reg.Login = login
	if err := domain.Validate(reg); err != nil {
		return nil, err
	}

	displayName := strings.TrimSpace(reg.DisplayName)
	if displayName == "" {
		displayName = login
	}

	hash, err := a.hasher.Hash(reg.Password)
	if err != nil {
		return nil, err
	}

	identity, err := a.identities.Create(ctx, domain.Identity{
		Login:        login,
		PasswordHash: hash,
		DisplayName:  displayName,
		CreatedAt:    a.now().UTC().Truncate(time.Microsecond),
	})
	if errors.Is(err, storage.ErrDuplicateLogin) {
		return nil, ErrLoginTaken
	}
	if err != nil {
		return nil, fmt.Errorf("auth: creating identity: %w", err)
	}
	return a.session(identity)
}

// Login checks the password for login and issues a token.
func (a *Accounts) Login(ctx context.Context, login, password string) (*Session, error) {
	identity, err := a.identities.FindByLogin(ctx, normalizeLogin(login))
	if errors.Is(err, storage.ErrNotFound) {
		_, _ = a.hasher.Compare(a.dummyHash, password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("auth: looking up login: %w", err)
	}

	ok, err := a.hasher.Compare(identity.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("auth: checking password of %s: %w", identity.ID, err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return a.session(identity)
}

func (a *Accounts) session(identity *domain.Identity) (*Session, error) {
	tok, expiresAt, err := a.tokens.Issue(identity.ID)
	if err != nil {
		return nil, err
	}
	return &Session{Identity: identity, Token: tok, ExpiresAt: expiresAt}, nil
}

func normalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}
