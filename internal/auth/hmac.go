package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionClaims is the JWT body issued for marketplace sessions.
type sessionClaims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name,omitempty"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// HMACVerifier verifies HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
	issuer string
}

// NewHMACVerifier creates a verifier for tokens signed with secret. An empty
// issuer disables the issuer check.
func NewHMACVerifier(secret []byte, issuer string) (*HMACVerifier, error) {
	if len(secret) < 16 {
		return nil, errors.New("hmac secret must be at least 16 bytes")
	}
	return &HMACVerifier{secret: secret, issuer: issuer}, nil
}

// Verify validates signature, expiry and issuer.
func (v *HMACVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	sc := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(stripBearer(token), sc, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if sc.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	claims := &Claims{
		Subject: sc.Subject,
		Name:    sc.Name,
		Email:   sc.Email,
		Roles:   sc.Roles,
	}
	if sc.ExpiresAt != nil {
		claims.Expiry = sc.ExpiresAt.Time
	}
	return claims, nil
}

// Issue signs a token for claims valid for ttl.
func (v *HMACVerifier) Issue(claims *Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	sc := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:  claims.Name,
		Email: claims.Email,
		Roles: claims.Roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, sc).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ChainVerifier tries each verifier in order and returns the first success.
type ChainVerifier []Verifier

func (c ChainVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	var errs []error
	for _, v := range c {
		claims, err := v.Verify(ctx, token)
		if err == nil {
			return claims, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("no verifier configured")
	}
	return nil, errors.Join(errs...)
}

var (
	_ Verifier = (*OIDCProvider)(nil)
	_ Verifier = (*HMACVerifier)(nil)
	_ Verifier = ChainVerifier(nil)
)
