package sso

import (
	"context"
	"fmt"
	"slices"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCProvider logs staff in through an OpenID Connect issuer. The authorization code is
// redeemed for an ID token whose signature, audience and expiry are verified against the
// issuer's published keys.
type OIDCProvider struct {
	config   *ProviderConfig
	issuer   *oidc.Provider
	verifier *oidc.IDTokenVerifier
	client   *oauth2.Config
}

// NewOIDCProvider runs issuer discovery. ctx is kept by the remote key set for later key
// refreshes, so it must outlive the provider.
func NewOIDCProvider(ctx context.Context, config *ProviderConfig) (*OIDCProvider, error) {
	oc := config.OIDCConfig
	if oc == nil {
		return nil, fmt.Errorf("OIDC config is required")
	}

	issuer, err := oidc.NewProvider(ctx, oc.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC issuer %s: %w", oc.IssuerURL, err)
	}

	return &OIDCProvider{
		config: config,
		issuer: issuer,
		verifier: issuer.Verifier(&oidc.Config{
			ClientID:        oc.ClientID,
			SkipIssuerCheck: oc.SkipIssuerCheck,
		}),
		client: &oauth2.Config{
			ClientID:     oc.ClientID,
			ClientSecret: oc.ClientSecret,
			Endpoint:     issuer.Endpoint(),
			RedirectURL:  oc.RedirectURL,
			Scopes:       oc.Scopes,
		},
	}, nil
}

func (p *OIDCProvider) Name() string       { return p.config.Name }
func (p *OIDCProvider) Label() string      { return label(p.config) }
func (p *OIDCProvider) Type() ProviderType { return ProviderTypeOIDC }

func (p *OIDCProvider) AuthorizationURL(state string) (string, error) {
	return p.client.AuthCodeURL(state), nil
}

// Exchange redeems code and builds an Assertion from the verified ID token, topped up from
// the user info endpoint when FetchUserInfo is set. ID token claims win over user info.
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*Assertion, error) {
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	token, err := p.client.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	raw, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errMissing("OIDC", "id_token")
	}
	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	claims := map[string]any{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}
	if p.config.OIDCConfig.FetchUserInfo {
		info, err := p.issuer.UserInfo(ctx, oauth2.StaticTokenSource(token))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch user info: %w", err)
		}
		extra := map[string]any{}
		if err := info.Claims(&extra); err != nil {
			return nil, fmt.Errorf("failed to parse user info: %w", err)
		}
		for k, v := range extra {
			if _, set := claims[k]; !set {
				claims[k] = v
			}
		}
	}

	if p.config.OIDCConfig.RequireVerifiedEmail {
		if verified, _ := claims["email_verified"].(bool); !verified {
			return nil, ErrEmailNotVerified
		}
	}

	assertion := mapClaims(p.config, claims)
	if assertion.Subject == "" {
		assertion.Subject = idToken.Subject
	}
	if err := assertion.complete(p.config, "OIDC"); err != nil {
		return nil, err
	}
	return assertion, nil
}

// ValidateConfig checks the client registration. The openid scope is mandatory.
func (p *OIDCProvider) ValidateConfig() error {
	cfg := p.config.OIDCConfig
	if cfg == nil {
		return fmt.Errorf("OIDC config is required")
	}
	if err := requireFields(
		"client_id", cfg.ClientID,
		"client_secret", cfg.ClientSecret,
		"issuer_url", cfg.IssuerURL,
		"redirect_url", cfg.RedirectURL,
	); err != nil {
		return err
	}
	if len(cfg.Scopes) == 0 {
		return fmt.Errorf("scopes are required")
	}
	if !slices.Contains(cfg.Scopes, oidc.ScopeOpenID) {
		return fmt.Errorf("'openid' scope is required for OIDC")
	}
	return nil
}
