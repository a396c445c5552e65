package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
)

const maxUserInfoBytes = 1 << 20

// OAuth2Provider implements plain OAuth2 login backed by a user info endpoint
type OAuth2Provider struct {
	config       *ProviderConfig
	oauth2Config *oauth2.Config
}

// NewOAuth2Provider creates a new OAuth2 provider
func NewOAuth2Provider(config *ProviderConfig) (*OAuth2Provider, error) {
	if config.OAuth2Config == nil {
		return nil, fmt.Errorf("OAuth2 config is required")
	}

	oauth2Cfg := &oauth2.Config{
		ClientID:     config.OAuth2Config.ClientID,
		ClientSecret: config.OAuth2Config.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  config.OAuth2Config.AuthURL,
			TokenURL: config.OAuth2Config.TokenURL,
		},
		RedirectURL: config.OAuth2Config.RedirectURL,
		Scopes:      config.OAuth2Config.Scopes,
	}

	return &OAuth2Provider{
		config:       config,
		oauth2Config: oauth2Cfg,
	}, nil
}

func (p *OAuth2Provider) Name() string       { return p.config.Name }
func (p *OAuth2Provider) Label() string      { return label(p.config) }
func (p *OAuth2Provider) Type() ProviderType { return ProviderTypeOAuth2 }

// AuthorizationURL returns the authorization endpoint for state
func (p *OAuth2Provider) AuthorizationURL(state string) (string, error) {
	return p.oauth2Config.AuthCodeURL(state), nil
}

// Exchange redeems code and maps the claims served by the user info endpoint
func (p *OAuth2Provider) Exchange(ctx context.Context, code string) (*Assertion, error) {
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	claims, err := p.userInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	assertion := mapClaims(p.config, claims)
	if err := assertion.complete(p.config, "OAuth2"); err != nil {
		return nil, err
	}
	return assertion, nil
}

func (p *OAuth2Provider) userInfo(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.OAuth2Config.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user info request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.oauth2Config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxUserInfoBytes)
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		return nil, fmt.Errorf("user info request failed with status %d: %s", resp.StatusCode, snippet)
	}

	claims := map[string]any{}
	if err := json.NewDecoder(body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	return claims, nil
}

// ValidateConfig checks that every endpoint and credential is set
func (p *OAuth2Provider) ValidateConfig() error {
	cfg := p.config.OAuth2Config
	if cfg == nil {
		return fmt.Errorf("OAuth2 config is required")
	}
	if err := requireFields(
		"client_id", cfg.ClientID,
		"client_secret", cfg.ClientSecret,
		"auth_url", cfg.AuthURL,
		"token_url", cfg.TokenURL,
		"user_info_url", cfg.UserInfoURL,
		"redirect_url", cfg.RedirectURL,
	); err != nil {
		return err
	}
	if len(cfg.Scopes) == 0 {
		return fmt.Errorf("scopes are required")
	}
	return nil
}

// mapClaims keeps the string claims, and numeric ones formatted as integers, then maps them
func mapClaims(config *ProviderConfig, claims map[string]any) *Assertion {
	attrs := make(map[string]string, len(claims))
	for k, v := range claims {
		switch val := v.(type) {
		case string:
			attrs[k] = val
		case float64:
			// numeric subjects (GitHub style) still need to round-trip as ids
			attrs[k] = strconv.FormatFloat(val, 'f', 0, 64)
		}
	}
	return mapAttributes(config, attrs)
}

// mapAttributes fills an Assertion from attrs using the provider's AttributeMapping.
// Unmapped fields stay empty.
func mapAttributes(config *ProviderConfig, attrs map[string]string) *Assertion {
	m := config.AttributeMapping
	pick := func(key string) string {
		if key == "" {
			return ""
		}
		return attrs[key]
	}
	return &Assertion{
		Provider:   config.Name,
		Subject:    pick(m.Subject),
		Username:   pick(m.Username),
		Email:      pick(m.Email),
		FullName:   pick(m.FullName),
		Attributes: attrs,
	}
}
