package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoaderReadsPrefixedEnv(t *testing.T) {
	t.Setenv("TESTMKT_HTTP_ADDR", ":9999")
	t.Setenv("TESTMKT_RECENT_WINDOW", "25")
	t.Setenv("TESTMKT_JOB_TTL", "1.5")
	t.Setenv("TESTMKT_REAP_INTERVAL", "2m")
	t.Setenv("TESTMKT_CORS", "false")
	t.Setenv("TESTMKT_SKILLS", "scrape, search,,")

	l := NewLoader("TESTMKT")
	require.Equal(t, "TESTMKT_", l.Prefix)
	require.Equal(t, ":9999", l.String("HTTP_ADDR", ":4000"))
	require.Equal(t, 25, l.Int("RECENT_WINDOW", 100))
	require.Equal(t, 1500*time.Millisecond, l.Duration("JOB_TTL", 0))
	require.Equal(t, 2*time.Minute, l.Duration("REAP_INTERVAL", 0))
	require.False(t, l.Bool("CORS", true))
	require.Equal(t, []string{"scrape", "search"}, l.Strings("SKILLS", nil))
}

func TestLoaderDefaults(t *testing.T) {
	t.Setenv("TESTDEF_RECENT_WINDOW", "many")

	l := NewLoader("TESTDEF_")
	require.Equal(t, ":4000", l.String("HTTP_ADDR", ":4000"))
	require.Equal(t, 100, l.Int("RECENT_WINDOW", 100))
	require.Equal(t, time.Second, l.Duration("JOB_TTL", time.Second))
	require.True(t, l.Bool("CORS", true))
	require.Equal(t, []string{"a"}, l.Strings("SKILLS", []string{"a"}))
}

func TestLoaderConfigFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market.toml")
	require.NoError(t, os.WriteFile(path, []byte("http_addr = \":5000\"\nrecent_window = 10\njob_ttl = \"90s\"\n"), 0o600))
	t.Setenv("TESTFILE_CONFIG", path)
	t.Setenv("TESTFILE_RECENT_WINDOW", "20")

	l := NewLoader("TESTFILE")
	require.Equal(t, ":5000", l.String("HTTP_ADDR", ":4000"))
	require.Equal(t, 20, l.Int("RECENT_WINDOW", 100))
	require.Equal(t, 90*time.Second, l.Duration("JOB_TTL", 0))
}
