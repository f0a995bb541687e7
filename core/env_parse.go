package core

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvOrDefault returns the value of an environment variable or a default value.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ParseIntEnv parses an environment variable as an integer.
// Returns the default value if the variable is not set or cannot be parsed.
func ParseIntEnv(key string, defaultValue int) int {
	if v, ok := LookupIntEnv(key); ok {
		return v
	}
	return defaultValue
}

// ParseBoolEnv parses an environment variable as a boolean.
// Accepts "true", "1", "yes", "on" and "false", "0", "no", "off" in any case.
func ParseBoolEnv(key string, defaultValue bool) bool {
	if v, ok := LookupBoolEnv(key); ok {
		return v
	}
	return defaultValue
}

// ParseDurationEnv parses an environment variable as a duration. Bare
// integers are seconds; anything else goes through time.ParseDuration.
func ParseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if v, ok := LookupDurationEnv(key); ok {
		return v
	}
	return defaultValue
}

// LookupIntEnv reports the integer value of key and whether it was set and valid.
func LookupIntEnv(key string) (int, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}

// LookupBoolEnv reports the boolean value of key and whether it was set and valid.
func LookupBoolEnv(key string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// LookupDurationEnv reports the duration value of key and whether it was set and valid.
func LookupDurationEnv(key string) (time.Duration, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false
	}
	return d, true
}
