// Package sso provides federated login for Cura through OpenID Connect, OAuth2 and SAML 2.0.
//
// # Overview
//
// A Provider turns the artefact handed back by an identity provider (an authorization code or
// a SAMLResponse) into an Assertion. The Authenticator links that assertion to a profile under
// the account id "<provider>:<subject>".
//
// # Providers
//
// Presets exist for Google, Apple, Azure AD and Okta (all OIDC). Generic OIDC, OAuth2 and SAML
// providers are configured in full:
//
//	providers:
//	  - name: google
//	    provider_name: google
//	    enabled: true
//	    oidc:
//	      client_id: ...
//	      client_secret: ...
//	      redirect_url: https://cura.example.org/login/google
//
// # First login
//
// When no profile exists for the subject the Authenticator:
//  1. Creates a profile with the pending role, unapproved
//  2. Notifies administrators that a role needs assigning
//  3. Signs the backend session out again
//  4. Returns auth.ErrPendingApproval
//
// An existing but unapproved profile yields auth.ErrUnapproved.
package sso
