// Package config loads Gatekeeper's YAML configuration, layers environment
// overrides on top (GATEKEEPER_* variables, optionally from a .env file) and
// validates the result.
//
// Credentials such as security.jwt.secret and mqtt.auth.password belong in
// the environment rather than the file. When the file omits the rbac section
// the shipped role catalogue and route table are used.
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    return fmt.Errorf("loading config: %w", err)
//	}
//	ttl := cfg.GetAccessTokenTTL()
package config
