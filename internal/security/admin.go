package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingSecret is returned by NewAdminTokens when the signing secret is empty.
	ErrMissingSecret = errors.New("admin token secret is empty")
)

// RoleAdmin is the only role accepted on admin routes.
const RoleAdmin = "admin"

// AdminClaims holds JWT claims for an admin bearer token.
type AdminClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// AdminTokens issues and validates HS256 bearer tokens for the admin surface (the external approval actor).
type AdminTokens struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// NewAdminTokens returns an AdminTokens signing with secret. issuer and audience are set on claims and validated.
func NewAdminTokens(secret, issuer, audience string, ttl time.Duration) (*AdminTokens, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &AdminTokens{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
	}, nil
}

// Issue returns a signed admin token for subject, its jti, and expiration time.
func (p *AdminTokens) Issue(subject string) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.ttl)
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: RoleAdmin,
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	return token, jti, expiresAt, err
}

// Validate parses and validates an admin token (signature, exp, iss, aud, role). Returns the subject.
func (p *AdminTokens) Validate(tokenString string) (subject string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
			return p.secret, nil
		}
		return nil, ErrInvalidToken
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid || claims.Role != RoleAdmin {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
