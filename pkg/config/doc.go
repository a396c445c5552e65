// Package config loads the agent configuration.
//
// Values come from three layers, later ones winning: built-in defaults, an optional YAML
// file named by CURA_CONFIG_FILE, and CURA_* environment variables. Identity providers can
// only be configured in the file:
//
//	server:
//	  port: "8700"
//	session:
//	  inactivity_timeout: 8h
//	  reconcile_interval: 5m
//	cache:
//	  type: redis
//	  redis_url: redis://cache:6379/0
//	sso:
//	  base_url: https://cura.hospital.org
//	  providers:
//	    - name: google
//	      provider_type: oidc
//	      provider_name: google
//	      enabled: true
//	      oidc:
//	        client_id: cura
//	        issuer_url: https://accounts.google.com
//
// Secrets such as CURA_REDIS_PASSWORD, CURA_NOTIFY_WEBHOOK_SECRET and
// CURA_BOOTSTRAP_ADMIN_PASSWORD are read from the environment only.
package config
