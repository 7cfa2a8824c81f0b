// Package config loads the portal's configuration from MOSAIC_-prefixed
// environment variables, with validated defaults suitable for local
// development.
package config
