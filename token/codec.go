// token/codec.go
package token

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// macSize is the length of the keyed BLAKE3 tag appended to every token.
const macSize = 32

// keyContext separates the token key from any other key derived from the
// same secret.
const keyContext = "lumi-notes 2026-10 session token v1"

// minSecretSize is the shortest signing secret NewCodec accepts.
const minSecretSize = 32

// MinLifetime is the shortest token lifetime NewCodec accepts.
const MinLifetime = time.Second

// Errors returned by Verify. Each kind is distinct so callers can decide
// between asking for a fresh login and rejecting outright.
var (
	ErrMalformed        = errors.New("token: malformed")
	ErrSignatureInvalid = errors.New("token: signature invalid")
	ErrExpired          = errors.New("token: expired")
)

// Claims is the CBOR payload of a session token.
type Claims struct {
	// ID is a unique token identifier.
	ID string `cbor:"1,keyasint"`

	// Subject is the identity id the token was issued to.
	Subject string `cbor:"2,keyasint"`

	// IssuedAt and ExpiresAt are Unix timestamps in milliseconds.
	IssuedAt  int64 `cbor:"3,keyasint"`
	ExpiresAt int64 `cbor:"4,keyasint"`
}

// Expiry returns ExpiresAt as a time.
func (c *Claims) Expiry() time.Time {
	return time.UnixMilli(c.ExpiresAt)
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("token: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("token: CBOR decoder initialization failed: " + err.Error())
	}
}

// Codec issues and verifies session tokens. A Codec is safe for
// concurrent use; its key never changes after construction.
//
// Wire format is base64url (no padding) of the CBOR payload followed by a
// 32-byte keyed BLAKE3 tag over the payload bytes.
type Codec struct {
	key      []byte
	lifetime time.Duration
	now      func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock replaces time.Now as the source of issue times.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec derives the token key from secret. Rotating the secret
// invalidates every token issued under the previous one.
func NewCodec(secret []byte, lifetime time.Duration, opts ...Option) (*Codec, error) {
	if len(secret) < minSecretSize {
		return nil, fmt.Errorf("token: signing secret must be at least %d bytes, got %d", minSecretSize, len(secret))
	}
	if lifetime < MinLifetime {
		return nil, fmt.Errorf("token: lifetime must be at least %s, got %s", MinLifetime, lifetime)
	}

	key := make([]byte, macSize)
	blake3.DeriveKey(keyContext, secret, key)

	c := &Codec{key: key, lifetime: lifetime, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Lifetime returns the configured token lifetime.
func (c *Codec) Lifetime() time.Duration {
	return c.lifetime
}

// Issue returns a token for identityID and the moment it stops being valid.
func (c *Codec) Issue(identityID string) (string, time.Time, error) {
	if identityID == "" {
		return "", time.Time{}, errors.New("token: empty identity id")
	}

	now := c.now()
	claims := Claims{
		ID:        uuid.NewString(),
		Subject:   identityID,
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: now.Add(c.lifetime).UnixMilli(),
	}

	payload, err := encMode.Marshal(&claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: encoding claims: %w", err)
	}

	raw := make([]byte, 0, len(payload)+macSize)
	raw = append(raw, payload...)
	raw = append(raw, c.mac(payload)...)

	return base64.RawURLEncoding.EncodeToString(raw), claims.Expiry(), nil
}

// Verify checks the token against the current time.
func (c *Codec) Verify(token string) (*Claims, error) {
	return c.VerifyAt(token, c.now())
}

// VerifyAt is like Verify but checks expiry against now.
func (c *Codec) VerifyAt(token string, now time.Time) (*Claims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) <= macSize {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrMalformed, len(raw))
	}

	split := len(raw) - macSize
	payload, tag := raw[:split], raw[split:]

	if subtle.ConstantTimeCompare(tag, c.mac(payload)) != 1 {
		return nil, ErrSignatureInvalid
	}

	var claims Claims
	if err := decMode.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.Subject == "" || claims.ExpiresAt <= claims.IssuedAt {
		return nil, fmt.Errorf("%w: incomplete claims", ErrMalformed)
	}

	if !now.Before(claims.Expiry()) {
		return nil, ErrExpired
	}
	return &claims, nil
}

func (c *Codec) mac(payload []byte) []byte {
	hasher, err := blake3.NewKeyed(c.key)
	if err != nil {
		panic("token: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(payload)
	return hasher.Sum(nil)
}
