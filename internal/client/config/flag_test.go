package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name:     "all flags",
			args:     []string{"authctl", "-a", "http://127.0.0.1:9090", "-f", "s.db", "-t", "30", "login", "alice@example.com"},
			expected: &Config{ServerURL: "http://127.0.0.1:9090", SessionDB: "s.db", RequestTimeout: 30 * time.Second},
		},
		{
			name:     "timeout untouched without flag",
			args:     []string{"authctl", "whoami"},
			expected: &Config{ServerURL: "http://x", SessionDB: "x.db", RequestTimeout: 1500 * time.Millisecond},
		},
		{name: "incorrect timeout", args: []string{"authctl", "-t", "abc"}, expectPanic: true},
	}

	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			cfg := &Config{ServerURL: "http://x", SessionDB: "x.db", RequestTimeout: 1500 * time.Millisecond}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(cfg) })
				return
			}
			require.NotPanics(t, func() { parseFlags(cfg) })
			assert.Empty(t, cmp.Diff(tt.expected, cfg))
		})
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		args []string
		want []string
	}{
		{args: []string{"login", "alice@example.com"}, want: []string{"login", "alice@example.com"}},
		{args: []string{"-a", "http://x", "-t", "5", "whoami"}, want: []string{"whoami"}},
		{args: []string{"-c=cfg.json", "register", "bob@example.com", "-f", "s.db"}, want: []string{"register", "bob@example.com"}},
		{args: []string{"-config", "cfg.json", "logout"}, want: []string{"logout"}},
		{args: nil, want: []string{}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Commands(tt.args), tt.args)
	}
}
