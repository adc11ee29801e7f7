// Package auth implements the two trust boundaries of the service:
//
//   - TelegramValidator checks the signed init-data a Mini-App client
//     receives from Telegram and extracts the asserted user.
//   - TokenService issues and verifies the session JWT that the server sets
//     as the "token" cookie after a successful login.
//
// Authenticate (middleware.go) ties the second one to HTTP: it reads the
// cookie on every non-public request and puts the caller's UserID into the
// request context.
//
// JWT STRUCTURE (three base64url parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header:  {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"42","iat":...,"nbf":...,"exp":...,"iss":"miniapp-backend"}
//	- Signature: HMAC(header+"."+payload, secret)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 32

// DefaultLeeway is the clock skew tolerated on exp, nbf and iat.
const DefaultLeeway = 5 * time.Second

// TokenErrorKind classifies verification failures.
type TokenErrorKind string

const (
	TokenExpired          TokenErrorKind = "expired"
	TokenMalformed        TokenErrorKind = "malformed"
	TokenInvalidSignature TokenErrorKind = "invalid_signature"
)

// TokenError is returned by Verify for every rejected token.
type TokenError struct {
	Kind TokenErrorKind
	Err  error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("auth: token %s: %v", e.Kind, e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

// TokenConfig configures a TokenService.
type TokenConfig struct {
	Secret    string
	Algorithm string // HS256, HS384 or HS512; empty means HS256
	Issuer    string
	TTL       time.Duration
	Leeway    time.Duration // zero means DefaultLeeway
	Now       func() time.Time
}

// TokenService handles JWT creation and validation. It is safe for
// concurrent use.
type TokenService struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	issuer string
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// Claims is the verified content of a session token.
type Claims struct {
	Subject   string
	Issuer    string
	IssuedAt  time.Time
	NotBefore time.Time
	ExpiresAt time.Time
}

// IssuedToken is a freshly signed token together with its lifetime.
type IssuedToken struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NewTokenService validates cfg and returns a ready TokenService.
// Only HMAC algorithms are accepted.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", MinSecretLength)
	}

	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("auth: unsupported JWT algorithm %q (want HS256, HS384 or HS512)", alg)
	}

	if cfg.Issuer == "" {
		return nil, errors.New("auth: JWT issuer must not be empty")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("auth: JWT TTL must be positive")
	}

	leeway := cfg.Leeway
	if leeway == 0 {
		leeway = DefaultLeeway
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &TokenService{
		secret: []byte(cfg.Secret),
		method: method,
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		leeway: leeway,
		now:    now,
	}, nil
}

// TTL is the lifetime given to every issued token.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a token for subject with iat = nbf = now and exp = now + TTL.
// Timestamps are truncated to whole seconds, as encoded in the token.
func (s *TokenService) Issue(subject string) (IssuedToken, error) {
	if subject == "" {
		return IssuedToken{}, errors.New("auth: token subject must not be empty")
	}

	now := s.now().Truncate(time.Second)
	exp := now.Add(s.ttl)

	c := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	signed, err := jwt.NewWithClaims(s.method, c).SignedString(s.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("auth: signing token: %w", err)
	}

	return IssuedToken{Token: signed, IssuedAt: now, ExpiresAt: exp}, nil
}

// Verify parses tokenStr and checks signature, algorithm, issuer, exp, nbf
// and iat. Every failure is a *TokenError.
//
// Only TokenExpired and TokenInvalidSignature are reported specifically;
// everything else (bad encoding, wrong algorithm, wrong issuer, not yet
// valid, missing claims) is TokenMalformed.
func (s *TokenService) Verify(tokenStr string) (Claims, error) {
	var c jwt.RegisteredClaims

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, classify(err)
	}
	if !token.Valid {
		return Claims{}, &TokenError{Kind: TokenMalformed, Err: errors.New("token not valid")}
	}
	if c.Subject == "" {
		return Claims{}, &TokenError{Kind: TokenMalformed, Err: errors.New("token has no subject")}
	}
	if c.IssuedAt == nil || c.NotBefore == nil {
		return Claims{}, &TokenError{Kind: TokenMalformed, Err: errors.New("token is missing iat or nbf")}
	}

	return Claims{
		Subject:   c.Subject,
		Issuer:    c.Issuer,
		IssuedAt:  c.IssuedAt.Time,
		NotBefore: c.NotBefore.Time,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

func classify(err error) *TokenError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &TokenError{Kind: TokenExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &TokenError{Kind: TokenInvalidSignature, Err: err}
	default:
		return &TokenError{Kind: TokenMalformed, Err: err}
	}
}
