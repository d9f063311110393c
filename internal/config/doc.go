// Package config provides YAML-based service configuration with validation.
package config
