// Package settings loads the service configuration from
// config/config.<GOGUARD_ENV>.yaml and GOGUARD_* environment variables.
//
// Environment variables win over the file. Secrets should only ever come
// from the environment outside of local development.
package settings
