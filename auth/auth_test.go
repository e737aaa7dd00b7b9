package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/storage"
	"github.com/ViniZap4/lumi-notes/storage/memory"
	"github.com/ViniZap4/lumi-notes/token"
)

var fastHash = HashParams{Memory: 64, Iterations: 1, Parallelism: 1}

type fixture struct {
	codec      *token.Codec
	identities *memory.IdentityStore
	resolver   *Resolver
	accounts   *Accounts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec, err := token.NewCodec([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)
	identities := memory.NewIdentityStore()
	accounts, err := NewAccounts(identities, NewHasher(fastHash), codec)
	require.NoError(t, err)
	return &fixture{
		codec:      codec,
		identities: identities,
		resolver:   NewResolver(codec, identities),
		accounts:   accounts,
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{header: "Bearer abc", want: "abc"},
		{header: "bearer abc", want: "abc"},
		{header: "  Bearer   abc  ", want: "abc"},
		{header: "", wantErr: true},
		{header: "Bearer", wantErr: true},
		{header: "Bearer ", wantErr: true},
		{header: "Basic abc", wantErr: true},
		{header: "abc", wantErr: true},
		{header: "Bearer a b", wantErr: true},
	}
	for _, tc := range cases {
		got, err := BearerToken(tc.header)
		if tc.wantErr {
			assert.ErrorIs(t, err, ErrMissingCredential, "header %q", tc.header)
			continue
		}
		require.NoError(t, err, "header %q", tc.header)
		assert.Equal(t, tc.want, got)
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	session, err := f.accounts.Register(ctx, Registration{Login: "u@example.com", Password: "correct horse"})
	require.NoError(t, err)

	identity, err := f.resolver.Resolve(ctx, "Bearer "+session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.Identity.ID, identity.ID)

	t.Run("missing", func(t *testing.T) {
		_, err := f.resolver.Resolve(ctx, "")
		assert.ErrorIs(t, err, ErrMissingCredential)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := f.resolver.Resolve(ctx, "Bearer %%%")
		assert.ErrorIs(t, err, token.ErrMalformed)
		assert.Equal(t, "malformed", FailureKind(err))
	})

	t.Run("unknown identity", func(t *testing.T) {
		tok, _, err := f.codec.Issue("deleted-user")
		require.NoError(t, err)
		_, err = f.resolver.Resolve(ctx, "Bearer "+tok)
		assert.ErrorIs(t, err, ErrUnknownIdentity)
		assert.True(t, IsAuthFailure(err))
	})

	t.Run("identity deleted after issue", func(t *testing.T) {
		other, err := f.accounts.Register(ctx, Registration{Login: "gone@example.com", Password: "correct horse"})
		require.NoError(t, err)
		require.NoError(t, f.identities.Delete(ctx, other.Identity.ID))
		_, err = f.resolver.Resolve(ctx, "Bearer "+other.Token)
		assert.ErrorIs(t, err, ErrUnknownIdentity)
	})
}

type failingIdentities struct{ storage.IdentityStore }

func (failingIdentities) FindByID(context.Context, string) (*domain.Identity, error) {
	return nil, errors.New("connection refused")
}

func TestResolveStoreFailureIsNotAuthFailure(t *testing.T) {
	f := newFixture(t)
	tok, _, err := f.codec.Issue("user-1")
	require.NoError(t, err)

	resolver := NewResolver(f.codec, failingIdentities{})
	_, err = resolver.Resolve(context.Background(), "Bearer "+tok)
	require.Error(t, err)
	assert.False(t, IsAuthFailure(err))
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	session, err := f.accounts.Register(ctx, Registration{Login: " Alice@Example.com ", Password: "correct horse", DisplayName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", session.Identity.Login)
	assert.Equal(t, "Alice", session.Identity.DisplayName)
	assert.NotEqual(t, "correct horse", session.Identity.PasswordHash)
	assert.NotEmpty(t, session.Token)

	_, err = f.accounts.Register(ctx, Registration{Login: "alice@example.com", Password: "another one"})
	assert.ErrorIs(t, err, ErrLoginTaken)

	loggedIn, err := f.accounts.Login(ctx, "ALICE@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, session.Identity.ID, loggedIn.Identity.ID)

	_, err = f.accounts.Login(ctx, "alice@example.com", "wrong horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.accounts.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	var verr *domain.ValidationError

	_, err := f.accounts.Register(context.Background(), Registration{Login: " ", Password: "correct horse"})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "login", verr.Field)

	_, err = f.accounts.Register(context.Background(), Registration{Login: "bob", Password: "short"})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "password", verr.Field)
	assert.Equal(t, "password must be at least 8 characters", verr.Message)

	// Length counts characters, not bytes.
	_, err = f.accounts.Register(context.Background(), Registration{Login: "bob", Password: "ééééééé"})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "password", verr.Field)

	_, err = f.accounts.Register(context.Background(), Registration{Login: "bob", Password: "éééééééé"})
	require.NoError(t, err)
}

func TestHasher(t *testing.T) {
	h := NewHasher(fastHash)
	encoded, err := h.Hash("s3cret-pass")
	require.NoError(t, err)
	assert.Contains(t, encoded, "$argon2id$v=19$m=64,t=1,p=1$")

	ok, err := h.Compare(encoded, "s3cret-pass")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Compare(encoded, "s3cret-pasS")
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := h.Hash("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, other)

	_, err = h.Compare("$2a$10$bcrypt-looking-hash", "x")
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session, err := f.accounts.Register(ctx, Registration{Login: "mw@example.com", Password: "correct horse"})
	require.NoError(t, err)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if IsAuthFailure(err) {
				return c.SendStatus(fiber.StatusUnauthorized)
			}
			return c.SendStatus(fiber.StatusInternalServerError)
		},
	})
	app.Get("/me", Middleware(f.resolver), func(c *fiber.Ctx) error {
		identity, ok := Principal(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(identity.ID)
	})

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+session.Token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/me", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
