package config

import "os"

// Environment variable names for taskmaster configuration.
const (
	EnvProjectDir = "TASKMASTER_DIR" // Project root or .taskmaster directory
	EnvActor      = "TM_ACTOR"       // Override actor name
	EnvBackend    = "TM_BACKEND"     // Override storage backend
	EnvLogLevel   = "TM_LOG_LEVEL"   // Override log level
)

// ApplyEnvOverrides checks TM_ACTOR, TM_BACKEND and TM_LOG_LEVEL and
// overrides the corresponding config values in memory. These overrides are
// not persisted to the config file.
func ApplyEnvOverrides(s Store) {
	if actor := os.Getenv(EnvActor); actor != "" {
		s.SetInMemory(KeyActor, actor)
	}
	if backend := os.Getenv(EnvBackend); backend != "" {
		s.SetInMemory(KeyStorageBackend, backend)
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		s.SetInMemory(KeyLogLevel, level)
	}
}
