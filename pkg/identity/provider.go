package identity

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ErrLoginDisabled is returned by the login flow when no client secret or redirect URL
// was configured
var ErrLoginDisabled = errors.New("interactive login is not configured")

// TokenVerifier verifies a bearer token and returns its claims
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (Claims, error)
}

// ProviderConfig configures the OpenID Connect issuer (a Cognito user pool in production)
type ProviderConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Validate checks the configuration
func (c ProviderConfig) Validate() error {
	if c.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.RedirectURL != "" && c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required when redirect_url is set")
	}
	return nil
}

// LoginResult is the outcome of a completed authorization code exchange
type LoginResult struct {
	IDToken      string    `json:"id_token"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
	Claims       Claims    `json:"claims"`
}

// Provider verifies ID tokens and optionally runs the authorization code login flow
type Provider struct {
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewProvider discovers the issuer and builds a provider
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	p := &Provider{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}
	if cfg.RedirectURL != "" {
		p.oauth2Config = newOAuth2Config(cfg, provider.Endpoint())
	}
	return p, nil
}

// NewStaticProvider builds a provider that verifies tokens against fixed public keys
// instead of the issuer's discovery document. Login is enabled when endpoint is non-empty.
func NewStaticProvider(cfg ProviderConfig, endpoint oauth2.Endpoint, keys ...crypto.PublicKey) *Provider {
	keySet := &oidc.StaticKeySet{PublicKeys: keys}
	p := &Provider{
		verifier: oidc.NewVerifier(cfg.IssuerURL, keySet, &oidc.Config{ClientID: cfg.ClientID}),
	}
	if endpoint.TokenURL != "" && cfg.RedirectURL != "" {
		p.oauth2Config = newOAuth2Config(cfg, endpoint)
	}
	return p
}

func newOAuth2Config(cfg ProviderConfig, endpoint oauth2.Endpoint) *oauth2.Config {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopes,
	}
}

// Verify checks the token signature, issuer, audience and expiry
func (p *Provider) Verify(ctx context.Context, rawToken string) (Claims, error) {
	idToken, err := p.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	if claims.Subject() == "" {
		claims["sub"] = idToken.Subject
	}
	return claims, nil
}

// LoginEnabled reports whether the authorization code flow is configured
func (p *Provider) LoginEnabled() bool {
	return p.oauth2Config != nil
}

// AuthCodeURL returns the issuer login URL for state
func (p *Provider) AuthCodeURL(state string) (string, error) {
	if p.oauth2Config == nil {
		return "", ErrLoginDisabled
	}
	return p.oauth2Config.AuthCodeURL(state), nil
}

// Exchange trades an authorization code for tokens and verifies the ID token
func (p *Provider) Exchange(ctx context.Context, code string) (*LoginResult, error) {
	if p.oauth2Config == nil {
		return nil, ErrLoginDisabled
	}
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("missing id_token in response")
	}

	claims, err := p.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		IDToken:      rawIDToken,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		Claims:       claims,
	}, nil
}

var _ TokenVerifier = (*Provider)(nil)
