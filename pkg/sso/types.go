package sso

import (
	"errors"
	"fmt"
	"strings"
)

// Assertion rejections that are not protocol failures
var (
	ErrDomainNotAllowed = errors.New("email domain is not allowed")
	ErrEmailNotVerified = errors.New("email address is not verified")
)

// ProviderType represents the federation protocol
type ProviderType string

const (
	ProviderTypeSAML   ProviderType = "saml"
	ProviderTypeOAuth2 ProviderType = "oauth2"
	ProviderTypeOIDC   ProviderType = "oidc"
)

// ProviderName identifies a well-known identity provider
type ProviderName string

const (
	ProviderGoogle        ProviderName = "google"
	ProviderApple         ProviderName = "apple"
	ProviderAzureAD       ProviderName = "azuread"
	ProviderOkta          ProviderName = "okta"
	ProviderGenericSAML   ProviderName = "generic_saml"
	ProviderGenericOAuth2 ProviderName = "generic_oauth2"
	ProviderGenericOIDC   ProviderName = "generic_oidc"
)

// ProviderConfig represents one configured identity provider
type ProviderConfig struct {
	Name             string        `json:"name" yaml:"name"` // route segment, e.g. /session/federated/google
	DisplayName      string        `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	ProviderType     ProviderType  `json:"provider_type" yaml:"provider_type"`
	ProviderName     ProviderName  `json:"provider_name" yaml:"provider_name"`
	Enabled          bool          `json:"enabled" yaml:"enabled"`
	SAMLConfig       *SAMLConfig   `json:"saml_config,omitempty" yaml:"saml,omitempty"`
	OAuth2Config     *OAuth2Config `json:"oauth2_config,omitempty" yaml:"oauth2,omitempty"`
	OIDCConfig       *OIDCConfig   `json:"oidc_config,omitempty" yaml:"oidc,omitempty"`
	AttributeMapping AttributeMap  `json:"attribute_mapping" yaml:"attribute_mapping"`
	// AllowedDomains restricts logins to these email domains. Empty allows any.
	AllowedDomains []string `json:"allowed_domains,omitempty" yaml:"allowed_domains,omitempty"`
}

// SAMLConfig holds SAML 2.0 configuration
type SAMLConfig struct {
	EntityID     string `json:"entity_id" yaml:"entity_id"`
	SSOURL       string `json:"sso_url" yaml:"sso_url"`
	Certificate  string `json:"certificate" yaml:"certificate"` // PEM
	PrivateKey   string `json:"-" yaml:"private_key,omitempty"`
	SignRequests bool   `json:"sign_requests" yaml:"sign_requests"`
	NameIDFormat string `json:"name_id_format,omitempty" yaml:"name_id_format,omitempty"`
}

// OAuth2Config holds plain OAuth2 configuration
type OAuth2Config struct {
	ClientID     string   `json:"client_id" yaml:"client_id"`
	ClientSecret string   `json:"-" yaml:"client_secret"`
	AuthURL      string   `json:"auth_url" yaml:"auth_url"`
	TokenURL     string   `json:"token_url" yaml:"token_url"`
	UserInfoURL  string   `json:"user_info_url" yaml:"user_info_url"`
	Scopes       []string `json:"scopes" yaml:"scopes"`
	RedirectURL  string   `json:"redirect_url" yaml:"redirect_url"`
}

// OIDCConfig holds OpenID Connect configuration
type OIDCConfig struct {
	ClientID        string   `json:"client_id" yaml:"client_id"`
	ClientSecret    string   `json:"-" yaml:"client_secret"`
	IssuerURL       string   `json:"issuer_url" yaml:"issuer_url"`
	RedirectURL     string   `json:"redirect_url" yaml:"redirect_url"`
	Scopes          []string `json:"scopes" yaml:"scopes"`
	SkipIssuerCheck bool     `json:"skip_issuer_check,omitempty" yaml:"skip_issuer_check,omitempty"`
	FetchUserInfo   bool     `json:"fetch_user_info,omitempty" yaml:"fetch_user_info,omitempty"`
	// RequireVerifiedEmail rejects ID tokens whose email_verified claim is not true
	RequireVerifiedEmail bool `json:"require_verified_email,omitempty" yaml:"require_verified_email,omitempty"`
}

// AttributeMap names the claims or SAML attributes that carry each field
type AttributeMap struct {
	Subject  string `json:"subject" yaml:"subject"`
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email" yaml:"email"`
	FullName string `json:"full_name,omitempty" yaml:"full_name,omitempty"`
}

// Assertion is what an identity provider vouches for after a successful exchange
type Assertion struct {
	Provider   string            `json:"provider"`
	Subject    string            `json:"subject"` // stable id at the provider
	Username   string            `json:"username,omitempty"`
	Email      string            `json:"email"`
	FullName   string            `json:"full_name,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// complete fills derived fields, checks the required ones and applies the email domain
// policy of config
func (a *Assertion) complete(config *ProviderConfig, kind string) error {
	if a.Username == "" && a.Email != "" {
		a.Username = a.Email
	}
	if a.Subject == "" {
		return errMissing(kind, "subject")
	}
	if a.Email == "" {
		return errMissing(kind, "email")
	}
	if len(config.AllowedDomains) == 0 {
		return nil
	}
	_, domain, _ := strings.Cut(a.Email, "@")
	for _, allowed := range config.AllowedDomains {
		if strings.EqualFold(domain, strings.TrimPrefix(allowed, "@")) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrDomainNotAllowed, domain)
}
