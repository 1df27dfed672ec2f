// Package config loads docgate's YAML configuration.
//
// Load starts from built-in defaults, decodes the file over it, applies DOCGATE_*
// environment overrides, then validates. Secrets belong in the environment:
//
//	DOCGATE_JWT_SECRET         token signing key (HMAC algorithms)
//	DOCGATE_MQTT_PASSWORD      broker password
//	DOCGATE_INFLUXDB_TOKEN     usage metrics write token
//
// The routes section drives the gateway. Allow and disallow lists are
// path prefixes, and the login page is always reachable without a token.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return fmt.Errorf("loading config: %w", err)
//	}
package config
