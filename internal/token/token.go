// Package token implements the link-token codec.
//
// A link token is a signed, time-boxed capability proving the bearer may act
// as a specific role on a specific envelope. It is an HMAC-SHA256 signed JWT
// carrying {envelope id, role, iat, exp}; it is a signed claim, not an
// encrypted payload - possession plus validity is sufficient proof of
// authorization for a single action.
//
// Verification is a pure, local operation: it never consults external state.
// Whether the claimed role is still the one the envelope is waiting on is a
// separate check made by the workflow engine on every action.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/markmyw0rd/digital-declaration101/internal/envelope"
)

// Claims are the verified contents of a link token.
type Claims struct {
	EnvelopeID uuid.UUID
	Role       envelope.Role
}

type linkClaims struct {
	EnvelopeID string `json:"env"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// Codec mints and verifies link tokens with a shared HMAC secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec creates a codec signing with the given secret.
func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret, now: time.Now}
}

// NewCodecWithClock creates a codec with an injectable clock for tests.
func NewCodecWithClock(secret []byte, now func() time.Time) *Codec {
	return &Codec{secret: secret, now: now}
}

// Mint produces an opaque signed token authorizing role to act on the
// envelope until ttl elapses.
func (c *Codec) Mint(envelopeID uuid.UUID, role envelope.Role, ttl time.Duration) (string, error) {
	if envelopeID == uuid.Nil {
		return "", NewMalformedError("envelope id is required")
	}
	if ttl <= 0 {
		return "", NewMalformedError("ttl must be positive")
	}

	issuedAt := c.now()
	claims := linkClaims{
		EnvelopeID: envelopeID.String(),
		Role:       string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", WrapMalformedError(err, "failed to sign token")
	}
	return signed, nil
}

// Verify checks the token's signature and expiry and returns the embedded
// claims. Any bit-level modification of the token is detected here.
func (c *Codec) Verify(tokenString string) (Claims, error) {
	var claims linkClaims

	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, WrapExpiredError(err, "token has expired")
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, WrapBadSignatureError(err, "token signature does not verify")
		default:
			return Claims{}, WrapMalformedError(err, "token could not be parsed")
		}
	}

	envelopeID, err := uuid.Parse(claims.EnvelopeID)
	if err != nil {
		return Claims{}, WrapMalformedError(err, "token envelope id is not a UUID")
	}

	role, err := envelope.ParseRole(claims.Role)
	if err != nil {
		return Claims{}, WrapMalformedError(err, "token role is not recognised")
	}

	return Claims{EnvelopeID: envelopeID, Role: role}, nil
}
