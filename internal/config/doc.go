// Package config provides configuration loading and validation for the
// voice transcription service. It handles YAML-based configuration layered
// over built-in defaults, environment fallbacks for provider API keys, and a
// holder that hands out consistent snapshots at runtime.
package config
