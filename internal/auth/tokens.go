// Package auth issues and parses the JWTs used for sessions and email
// confirmation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	Issuer   = "askallery-api"
	Audience = "askallery-client"

	typeAccess            = "access"
	typeEmailConfirmation = "email_confirmation"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
)

// Revocations records logged-out token ids until they would have expired anyway.
type Revocations interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
}

// AccessClaims is what a verified session token says about its bearer.
type AccessClaims struct {
	UserID    uint
	Username  string
	ID        string
	ExpiresAt time.Time
}

type accessClaims struct {
	Username string `json:"username"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

type verificationClaims struct {
	User string `json:"user"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 tokens with a shared secret.
type Tokens struct {
	secret          []byte
	accessTTL       time.Duration
	verificationTTL time.Duration
	revocations     Revocations
	now             func() time.Time
}

// NewTokens builds a token service. revocations may be nil, in which case
// logout is a no-op and every well-formed token is honoured until it expires.
func NewTokens(secret string, accessTTL, verificationTTL time.Duration, revocations Revocations) *Tokens {
	return &Tokens{
		secret:          []byte(secret),
		accessTTL:       accessTTL,
		verificationTTL: verificationTTL,
		revocations:     revocations,
		now:             time.Now,
	}
}

// WithClock overrides the time source.
func (t *Tokens) WithClock(now func() time.Time) *Tokens {
	t.now = now
	return t
}

// IssueAccess signs a session token for userID.
func (t *Tokens) IssueAccess(userID uint, username string) (string, *AccessClaims, error) {
	now := t.now()
	exp := now.Add(t.accessTTL)
	jti := uuid.NewString()

	claims := accessClaims{
		Username: username,
		Type:     typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign access token: %w", err)
	}

	return signed, &AccessClaims{UserID: userID, Username: username, ID: jti, ExpiresAt: exp}, nil
}

// ParseAccess verifies a session token and checks it has not been revoked.
func (t *Tokens) ParseAccess(ctx context.Context, raw string) (*AccessClaims, error) {
	var claims accessClaims
	if err := t.parse(raw, &claims, jwt.WithIssuer(Issuer), jwt.WithAudience(Audience)); err != nil {
		return nil, err
	}
	if claims.Type != typeAccess || claims.ID == "" {
		return nil, ErrTokenInvalid
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || userID == 0 {
		return nil, ErrTokenInvalid
	}

	if t.revocations != nil {
		revoked, err := t.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	return &AccessClaims{
		UserID:    uint(userID),
		Username:  claims.Username,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke blacklists a session token for the rest of its lifetime.
func (t *Tokens) Revoke(ctx context.Context, claims *AccessClaims) error {
	if t.revocations == nil || claims == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(t.now())
	if ttl <= 0 {
		return nil
	}
	return t.revocations.Revoke(ctx, claims.ID, ttl)
}

// IssueVerification signs an email confirmation token for username.
func (t *Tokens) IssueVerification(username string) (string, error) {
	claims := verificationClaims{
		User: username,
		Type: typeEmailConfirmation,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(t.now().Add(t.verificationTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign verification token: %w", err)
	}
	return signed, nil
}

// ParseVerification returns the username an email confirmation token was issued for.
func (t *Tokens) ParseVerification(raw string) (string, error) {
	var claims verificationClaims
	if err := t.parse(raw, &claims); err != nil {
		return "", err
	}
	if claims.Type != typeEmailConfirmation || claims.User == "" {
		return "", ErrTokenInvalid
	}
	return claims.User, nil
}

func (t *Tokens) parse(raw string, claims jwt.Claims, opts ...jwt.ParserOption) error {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, opts...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}
