/**
 * @description
 * Authorization token codec. A token binds a (guild, member, config) triple to a single
 * verification attempt for a fixed five minute window. Tokens are HS256 JWTs signed with a
 * key derived from the configured secret; nothing about them is stored server side.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: signing and validation.
 * - golang.org/x/crypto/hkdf: purpose-bound signing key derivation.
 */
package token

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// ValidityWindow is how long an issued token can be redeemed.
const ValidityWindow = 5 * time.Minute

const keyDerivationInfo = "xeneaguard/authorization-token/v1"

var (
	// ErrTokenExpiredOrInvalid covers every reason a token cannot be redeemed.
	ErrTokenExpiredOrInvalid = errors.New("token expired or invalid")
	// ErrEmptySecret is returned by NewCodec when no secret is supplied.
	ErrEmptySecret = errors.New("token signing secret is empty")
)

// Grant is the payload recovered from a valid token.
type Grant struct {
	GuildID   string
	MemberID  string
	ConfigRef string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type claims struct {
	GuildID   string `json:"guildId"`
	MemberID  string `json:"memberId"`
	ConfigRef string `json:"configId"`
	jwt.RegisteredClaims
}

// Codec issues and redeems authorization tokens.
type Codec struct {
	key []byte
	now func() time.Time
}

// Option customizes a Codec.
type Option func(*Codec)

// WithClock replaces the codec's time source.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec derives the signing key from secret and returns a ready codec.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyDerivationInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive token key: %w", err)
	}

	c := &Codec{key: key, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue mints a token for the member of a guild, referencing the config snapshot it was issued against.
func (c *Codec) Issue(guildID, memberID, configRef string) (string, error) {
	if guildID == "" || memberID == "" {
		return "", errors.New("guild ID and member ID are required")
	}

	issuedAt := c.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		GuildID:   guildID,
		MemberID:  memberID,
		ConfigRef: configRef,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   memberID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ValidityWindow)),
		},
	})

	signed, err := tok.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Redeem validates a token and returns its payload. Every failure, structural or
// cryptographic or temporal, is reported as ErrTokenExpiredOrInvalid.
func (c *Codec) Redeem(raw string) (*Grant, error) {
	var parsed claims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(*jwt.Token) (interface{}, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, ErrTokenExpiredOrInvalid
	}
	if parsed.GuildID == "" || parsed.MemberID == "" || parsed.ExpiresAt == nil || parsed.IssuedAt == nil {
		return nil, ErrTokenExpiredOrInvalid
	}
	// exp must sit exactly one window after iat; anything else was not minted here.
	if !parsed.ExpiresAt.Time.Equal(parsed.IssuedAt.Time.Add(ValidityWindow)) {
		return nil, ErrTokenExpiredOrInvalid
	}

	return &Grant{
		GuildID:   parsed.GuildID,
		MemberID:  parsed.MemberID,
		ConfigRef: parsed.ConfigRef,
		IssuedAt:  parsed.IssuedAt.Time,
		ExpiresAt: parsed.ExpiresAt.Time,
	}, nil
}
