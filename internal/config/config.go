package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileKey names the variable (after the prefix) that points at an optional
// TOML config file, e.g. MARKET_CONFIG=/etc/market.toml.
const FileKey = "CONFIG"

// Loader provides convenient helpers for reading configuration values
// scoped by a common environment variable prefix (e.g. MARKET_, AGENT_).
// Environment variables take precedence over the config file.
type Loader struct {
	Prefix string
	v      *viper.Viper
}

// NewLoader constructs a loader with the provided prefix. The prefix is
// automatically suffixed with an underscore when reading variables.
func NewLoader(prefix string) Loader {
	if prefix != "" && !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	v := viper.New()
	v.SetEnvPrefix(strings.TrimSuffix(prefix, "_"))
	v.AutomaticEnv()
	l := Loader{Prefix: prefix, v: v}
	if path := os.Getenv(prefix + FileKey); path != "" {
		// A missing or unreadable file leaves env and defaults in effect.
		_ = l.ReadFile(path)
	}
	return l
}

// ReadFile merges values from a TOML file. Keys match the variable names
// without the prefix, case-insensitively (http_addr, queue_size).
func (l Loader) ReadFile(path string) error {
	l.v.SetConfigFile(path)
	l.v.SetConfigType("toml")
	return l.v.ReadInConfig()
}

func (l Loader) raw(key string) string {
	return strings.TrimSpace(l.v.GetString(key))
}

// String returns the configured value or the provided default.
func (l Loader) String(key, def string) string {
	if val := l.raw(key); val != "" {
		return val
	}
	return def
}

// Int returns an integer value or the provided default.
func (l Loader) Int(key string, def int) int {
	if val := l.raw(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

// Duration returns a duration given in seconds ("2.5") or Go syntax ("5m").
func (l Loader) Duration(key string, def time.Duration) time.Duration {
	val := l.raw(key)
	if val == "" {
		return def
	}
	if parsed, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(parsed * float64(time.Second))
	}
	if parsed, err := time.ParseDuration(val); err == nil {
		return parsed
	}
	return def
}

// Bool returns a boolean value or the default.
func (l Loader) Bool(key string, def bool) bool {
	if val := l.raw(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

// Strings returns a comma separated list with blanks removed.
func (l Loader) Strings(key string, def []string) []string {
	val := l.raw(key)
	if val == "" {
		return def
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
