// Package auth authenticates API callers and throttles them.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Verifier turns a bearer token into claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// OIDCProvider verifies tokens issued by an OpenID Connect provider.
type OIDCProvider struct {
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// OIDCConfig holds OIDC provider configuration.
type OIDCConfig struct {
	// Issuer is the OIDC provider URL (e.g., https://auth.example.com)
	Issuer string

	ClientID     string
	ClientSecret string

	// RedirectURL for the code flow used by the marketplace login page
	RedirectURL string

	Scopes []string

	// SkipIssuerCheck disables issuer validation (use only for testing)
	SkipIssuerCheck bool
}

// NewOIDCProvider fetches the discovery document and builds a verifier.
func NewOIDCProvider(ctx context.Context, cfg *OIDCConfig) (*OIDCProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client_id is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("create oidc provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:        cfg.ClientID,
		SkipIssuerCheck: cfg.SkipIssuerCheck,
	})

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &OIDCProvider{
		provider: provider,
		verifier: verifier,
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
	}, nil
}

// Verify accepts an ID token, falling back to the userinfo endpoint for
// opaque access tokens.
func (p *OIDCProvider) Verify(ctx context.Context, token string) (*Claims, error) {
	token = stripBearer(token)

	idToken, err := p.verifier.Verify(ctx, token)
	if err == nil {
		var claims Claims
		if err := idToken.Claims(&claims); err != nil {
			return nil, fmt.Errorf("extract claims: %w", err)
		}
		claims.Expiry = idToken.Expiry
		return &claims, nil
	}

	userInfo, uerr := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
	}))
	if uerr != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	claims := &Claims{
		Subject: userInfo.Subject,
		Email:   userInfo.Email,
	}
	var extra struct {
		Name   string   `json:"name"`
		Groups []string `json:"groups"`
	}
	if err := userInfo.Claims(&extra); err == nil {
		claims.Name = extra.Name
		claims.Groups = extra.Groups
	}
	return claims, nil
}

// AuthCodeURL generates an authorization URL for the code flow.
func (p *OIDCProvider) AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	return p.oauth2Config.AuthCodeURL(state, opts...)
}

// Exchange exchanges an authorization code for tokens.
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.oauth2Config.Exchange(ctx, code)
}

// Claims identifies an authenticated marketplace user.
type Claims struct {
	Subject string    `json:"sub"`
	Name    string    `json:"name,omitempty"`
	Email   string    `json:"email,omitempty"`
	Groups  []string  `json:"groups,omitempty"`
	Roles   []string  `json:"roles,omitempty"`
	Expiry  time.Time `json:"-"`
}

// HasRole checks if the user has a specific role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsExpired checks if the token has expired.
func (c *Claims) IsExpired() bool {
	if c.Expiry.IsZero() {
		return false
	}
	return time.Now().After(c.Expiry)
}

func stripBearer(token string) string {
	token = strings.TrimPrefix(token, "Bearer ")
	return strings.TrimPrefix(token, "bearer ")
}
