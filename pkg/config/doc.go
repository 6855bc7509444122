// Package config loads application configuration.
//
// Scalar settings come from FORMLOFT_-prefixed environment variables with
// sensible defaults. The authentication provider set lives in a YAML file
// so role mappings can be edited and hot-reloaded without redeploying;
// see providers.go and watch.go.
package config
