// Package config loads, validates, and normalizes streamlapse configuration.
package config
