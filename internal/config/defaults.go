package config

// Config keys.
const (
	KeyActor           = "actor"
	KeyStorageBackend  = "storage.backend"
	KeyDatabasePath    = "database.path"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"
	KeyVersionsEnabled = "versions.enabled"
)

// Storage backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// DefaultValues returns the default config map for the core keys.
func DefaultValues() map[string]string {
	return map[string]string{
		KeyActor:           "${USER}",
		KeyStorageBackend:  BackendJSON,
		KeyLogLevel:        "info",
		KeyLogFormat:       "text",
		KeyVersionsEnabled: "true",
	}
}

// ApplyDefaults fills any missing core keys in s with their default values
// and persists them.
func ApplyDefaults(s Store) error {
	defaults := DefaultValues()
	all := s.All()
	for k, v := range defaults {
		if _, exists := all[k]; !exists {
			if err := s.Set(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Lookup returns the value for key from s, falling back to the default.
func Lookup(s Store, key string) string {
	if s != nil {
		if v, ok := s.Get(key); ok && v != "" {
			return v
		}
	}
	return DefaultValues()[key]
}

// Bool reports whether key is set to a true value.
func Bool(s Store, key string) bool {
	switch Lookup(s, key) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
