package sso

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownProvider is returned for a provider name that is not configured
var ErrUnknownProvider = errors.New("unknown identity provider")

// Provider exchanges a provider callback artefact for an Assertion
type Provider interface {
	// Name returns the configured instance name
	Name() string

	// Label returns the human readable provider name used in notifications
	Label() string

	// Type returns the protocol (SAML, OAuth2, OIDC)
	Type() ProviderType

	// AuthorizationURL returns where the browser is sent to start a login
	AuthorizationURL(state string) (string, error)

	// Exchange validates the callback artefact (authorization code or SAML response)
	Exchange(ctx context.Context, credential string) (*Assertion, error)

	// ValidateConfig validates the provider configuration
	ValidateConfig() error
}

// ProviderFactory creates providers from configuration
type ProviderFactory struct {
	baseURL string
}

// NewProviderFactory creates a new provider factory. baseURL is the externally visible
// address used for the SAML assertion consumer service.
func NewProviderFactory(baseURL string) *ProviderFactory {
	return &ProviderFactory{baseURL: baseURL}
}

// CreateProvider creates a provider instance from configuration
func (f *ProviderFactory) CreateProvider(ctx context.Context, config *ProviderConfig) (Provider, error) {
	if !config.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", config.Name)
	}
	if config.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}

	var (
		p   Provider
		err error
	)
	switch config.ProviderType {
	case ProviderTypeSAML:
		if config.SAMLConfig == nil {
			return nil, fmt.Errorf("SAML config is required for SAML provider")
		}
		p, err = NewSAMLProvider(config, f.baseURL)

	case ProviderTypeOAuth2:
		if config.OAuth2Config == nil {
			return nil, fmt.Errorf("OAuth2 config is required for OAuth2 provider")
		}
		p, err = NewOAuth2Provider(config)

	case ProviderTypeOIDC:
		if config.OIDCConfig == nil {
			return nil, fmt.Errorf("OIDC config is required for OIDC provider")
		}
		if err := (&OIDCProvider{config: config}).ValidateConfig(); err != nil {
			return nil, err
		}
		p, err = NewOIDCProvider(ctx, config)

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", config.ProviderType)
	}
	if err != nil {
		return nil, err
	}
	if err := p.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("provider %s: %w", config.Name, err)
	}
	return p, nil
}

// Registry holds the configured providers by name
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry holding providers
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// LoadRegistry builds every enabled provider in configs. Disabled entries are skipped.
func LoadRegistry(ctx context.Context, factory *ProviderFactory, configs []ProviderConfig) (*Registry, error) {
	r := NewRegistry()
	for i := range configs {
		cfg := configs[i]
		if !cfg.Enabled {
			continue
		}
		merged, err := WithPreset(cfg)
		if err != nil {
			return nil, err
		}
		p, err := factory.CreateProvider(ctx, merged)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider %s: %w", cfg.Name, err)
		}
		r.providers[p.Name()] = p
	}
	return r, nil
}

// Get returns the named provider
func (r *Registry) Get(name string) (Provider, error) {
	if r != nil {
		if p, ok := r.providers[name]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}

// Names returns the configured provider names, sorted
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPresetConfig returns preset configuration for well-known providers
func GetPresetConfig(providerName ProviderName) (*ProviderConfig, error) {
	switch providerName {
	case ProviderGoogle:
		return &ProviderConfig{
			DisplayName:  "Google",
			ProviderType: ProviderTypeOIDC,
			ProviderName: ProviderGoogle,
			AttributeMapping: AttributeMap{
				Subject:  "sub",
				Username: "name",
				Email:    "email",
				FullName: "name",
			},
			OIDCConfig: &OIDCConfig{
				IssuerURL: "https://accounts.google.com",
				Scopes:    []string{"openid", "profile", "email"},
			},
		}, nil

	case ProviderApple:
		return &ProviderConfig{
			DisplayName:  "Apple",
			ProviderType: ProviderTypeOIDC,
			ProviderName: ProviderApple,
			AttributeMapping: AttributeMap{
				Subject: "sub",
				Email:   "email",
			},
			OIDCConfig: &OIDCConfig{
				IssuerURL: "https://appleid.apple.com",
				Scopes:    []string{"openid", "email", "name"},
			},
		}, nil

	case ProviderAzureAD:
		return &ProviderConfig{
			DisplayName:  "Azure AD",
			ProviderType: ProviderTypeOIDC,
			ProviderName: ProviderAzureAD,
			AttributeMapping: AttributeMap{
				Subject:  "oid",
				Username: "preferred_username",
				Email:    "email",
				FullName: "name",
			},
			OIDCConfig: &OIDCConfig{
				Scopes: []string{"openid", "profile", "email"},
			},
		}, nil

	case ProviderOkta:
		return &ProviderConfig{
			DisplayName:  "Okta",
			ProviderType: ProviderTypeOIDC,
			ProviderName: ProviderOkta,
			AttributeMapping: AttributeMap{
				Subject:  "sub",
				Username: "preferred_username",
				Email:    "email",
				FullName: "name",
			},
			OIDCConfig: &OIDCConfig{
				Scopes: []string{"openid", "profile", "email"},
			},
		}, nil

	default:
		return nil, fmt.Errorf("no preset configuration for provider: %s", providerName)
	}
}

// WithPreset fills the unset fields of cfg from the preset for its ProviderName. Generic
// providers are returned unchanged.
func WithPreset(cfg ProviderConfig) (*ProviderConfig, error) {
	switch cfg.ProviderName {
	case ProviderGoogle, ProviderApple, ProviderAzureAD, ProviderOkta:
	default:
		return &cfg, nil
	}

	preset, err := GetPresetConfig(cfg.ProviderName)
	if err != nil {
		return nil, err
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = preset.DisplayName
	}
	if cfg.ProviderType == "" {
		cfg.ProviderType = preset.ProviderType
	}
	if cfg.AttributeMapping == (AttributeMap{}) {
		cfg.AttributeMapping = preset.AttributeMapping
	}
	if cfg.OIDCConfig == nil {
		cfg.OIDCConfig = &OIDCConfig{}
	} else {
		oc := *cfg.OIDCConfig
		cfg.OIDCConfig = &oc
	}
	if cfg.OIDCConfig.IssuerURL == "" {
		cfg.OIDCConfig.IssuerURL = preset.OIDCConfig.IssuerURL
	}
	if len(cfg.OIDCConfig.Scopes) == 0 {
		cfg.OIDCConfig.Scopes = preset.OIDCConfig.Scopes
	}
	return &cfg, nil
}

func label(config *ProviderConfig) string {
	if config.DisplayName != "" {
		return config.DisplayName
	}
	return config.Name
}

func errMissing(kind, field string) error {
	return fmt.Errorf("missing %s in %s response", field, kind)
}

// requireFields takes name/value pairs and reports the first blank value
func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("%s is required", pairs[i])
		}
	}
	return nil
}
