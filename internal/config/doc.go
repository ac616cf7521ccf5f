// Package config loads the proofd configuration from a JSON or YAML file,
// applies environment overrides and defaults, and validates the selected
// storage, event, receipt and auth backends.
package config
