package sso

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
)

// SAMLProvider implements SAML 2.0 login with the HTTP-POST binding
type SAMLProvider struct {
	config *ProviderConfig
	sp     *saml2.SAMLServiceProvider
}

// NewSAMLProvider creates a new SAML provider. The assertion consumer service lives at
// baseURL/session/federated/<name>.
func NewSAMLProvider(config *ProviderConfig, baseURL string) (*SAMLProvider, error) {
	if config.SAMLConfig == nil {
		return nil, fmt.Errorf("SAML config is required")
	}

	cert, err := parseCertificate(config.SAMLConfig.Certificate)
	if err != nil {
		return nil, err
	}

	certStore := dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	}

	var keyStore dsig.X509KeyStore
	if config.SAMLConfig.PrivateKey != "" {
		privateKey, err := parsePrivateKey(config.SAMLConfig.PrivateKey)
		if err != nil {
			return nil, err
		}
		keyStore = &dsig.TLSCertKeyStore{
			PrivateKey:  privateKey,
			Certificate: [][]byte{cert.Raw},
		}
	}

	baseURL = strings.TrimRight(baseURL, "/")
	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      config.SAMLConfig.SSOURL,
		IdentityProviderIssuer:      config.SAMLConfig.EntityID,
		ServiceProviderIssuer:       baseURL + "/session/federated/" + config.Name + "/metadata",
		AssertionConsumerServiceURL: baseURL + "/session/federated/" + config.Name,
		SignAuthnRequests:           config.SAMLConfig.SignRequests && keyStore != nil,
		AudienceURI:                 baseURL,
		IDPCertificateStore:         &certStore,
		SPKeyStore:                  keyStore,
	}
	if config.SAMLConfig.NameIDFormat != "" {
		sp.NameIdFormat = config.SAMLConfig.NameIDFormat
	}

	return &SAMLProvider{config: config, sp: sp}, nil
}

func (p *SAMLProvider) Name() string       { return p.config.Name }
func (p *SAMLProvider) Label() string      { return label(p.config) }
func (p *SAMLProvider) Type() ProviderType { return ProviderTypeSAML }

// AuthorizationURL builds the IdP redirect carrying an AuthnRequest and state as RelayState
func (p *SAMLProvider) AuthorizationURL(state string) (string, error) {
	authURL, err := p.sp.BuildAuthURL(state)
	if err != nil {
		return "", fmt.Errorf("failed to build auth URL: %w", err)
	}
	return authURL, nil
}

// Exchange validates a base64 SAMLResponse and maps its attributes
func (p *SAMLProvider) Exchange(ctx context.Context, samlResponse string) (*Assertion, error) {
	if samlResponse == "" {
		return nil, fmt.Errorf("missing SAMLResponse parameter")
	}

	assertionInfo, err := p.sp.RetrieveAssertionInfo(samlResponse)
	if err != nil {
		return nil, fmt.Errorf("failed to validate assertion: %w", err)
	}

	if assertionInfo.WarningInfo != nil {
		if assertionInfo.WarningInfo.InvalidTime {
			return nil, fmt.Errorf("assertion has invalid time")
		}
		if assertionInfo.WarningInfo.NotInAudience {
			return nil, fmt.Errorf("assertion not in expected audience")
		}
	}

	// multi-valued attributes keep their first value
	attrs := make(map[string]string, len(assertionInfo.Values))
	for _, attr := range assertionInfo.Values {
		if len(attr.Values) > 0 {
			attrs[attr.Name] = attr.Values[0].Value
		}
	}
	assertion := mapAttributes(p.config, attrs)
	if assertion.Subject == "" {
		assertion.Subject = assertionInfo.NameID
	}
	if err := assertion.complete(p.config, "SAML"); err != nil {
		return nil, err
	}
	return assertion, nil
}

// ValidateConfig checks the IdP settings and that the PEM material parses
func (p *SAMLProvider) ValidateConfig() error {
	cfg := p.config.SAMLConfig
	if cfg == nil {
		return fmt.Errorf("SAML config is required")
	}
	if err := requireFields(
		"entity_id", cfg.EntityID,
		"sso_url", cfg.SSOURL,
		"certificate", cfg.Certificate,
	); err != nil {
		return err
	}
	if _, err := parseCertificate(cfg.Certificate); err != nil {
		return err
	}
	if cfg.PrivateKey != "" {
		if _, err := parsePrivateKey(cfg.PrivateKey); err != nil {
			return err
		}
	}
	return nil
}

func parseCertificate(certPEM string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

func parsePrivateKey(keyPEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	pkcs8Key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := pkcs8Key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return key, nil
}
