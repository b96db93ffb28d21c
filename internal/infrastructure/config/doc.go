// Package config loads and validates the periph-core configuration.
//
// Configuration comes from a YAML file with environment variable
// overrides (PERIPH_SECTION_KEY) applied on top of built-in defaults.
package config
