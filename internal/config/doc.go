// Package config loads scheduler settings from an optional YAML file, SCRY_*
// environment variables and command-line flags, in increasing precedence,
// and validates the result before anything is wired.
package config
