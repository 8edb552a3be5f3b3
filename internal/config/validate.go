package config

import (
	"fmt"
	"strings"
)

// validValues maps known keys to their allowed values.
// An empty slice means any non-empty string is accepted.
var validValues = map[string][]string{
	KeyActor:           {},
	KeyStorageBackend:  {BackendJSON, BackendSQLite},
	KeyDatabasePath:    {},
	KeyLogLevel:        {"debug", "info", "warn", "error"},
	KeyLogFormat:       {"text", "json", "logfmt"},
	KeyVersionsEnabled: {"true", "false"},
}

// IsKnownKey reports whether key is a recognized config key.
func IsKnownKey(key string) bool {
	_, ok := validValues[key]
	return ok
}

// Validate checks all values in s for known keys. It returns an error
// describing every invalid value found, or nil if all values are valid.
func Validate(s Store) error {
	all := s.All()
	var errs []string

	for key, allowed := range validValues {
		val, ok := all[key]
		if !ok {
			continue
		}
		if len(allowed) > 0 && !contains(allowed, val) {
			errs = append(errs, fmt.Sprintf(
				"%s: invalid value %q (allowed: %s)",
				key, val, strings.Join(allowed, ", ")))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
