package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	defaults := func() *Config {
		c := &Config{}
		c.LoadDefaults()
		return c
	}

	tests := []struct {
		name    string
		args    []string
		want    func(c *Config)
		wantErr bool
	}{
		{
			name: "all flags",
			args: []string{"-a", "10.0.0.1:9090", "-d", "x.db", "-t", "5", "-s", "60", "-i", "10", "-l", "fs.log", "-v"},
			want: func(c *Config) {
				c.ServerEndpointAddr = "10.0.0.1:9090"
				c.DatabasePath = "x.db"
				c.SyncTimeout = 5 * time.Second
				c.AutoSyncInterval = time.Minute
				c.OnlineCheckInterval = 10 * time.Second
				c.LogFile = "fs.log"
				c.Debug = true
			},
		},
		{
			name: "auto sync off",
			args: []string{"-s", "0"},
			want: func(c *Config) { c.AutoSyncInterval = 0 },
		},
		{
			name: "unknown flags are ignored",
			args: []string{"-c", "cfg.json", "-x", "-a=host:1"},
			want: func(c *Config) { c.ServerEndpointAddr = "host:1" },
		},
		{
			name: "sub-second defaults survive",
			args: []string{"-a", "host:1"},
			want: func(c *Config) { c.ServerEndpointAddr = "host:1" },
		},
		{
			name:    "bad interval",
			args:    []string{"-i", "abc"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := defaults()
			err := parseFlags(got, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			want := defaults()
			tt.want(want)
			assert.Empty(t, cmp.Diff(want, got))
		})
	}
}
