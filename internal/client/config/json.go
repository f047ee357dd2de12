package config

import (
	"fmt"
	"os"

	"github.com/fieldkeeper/fieldsync/internal/flagx"
	"github.com/fieldkeeper/fieldsync/internal/timex"
	"github.com/goccy/go-json"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// use timex.Duration so the file can say "3s" or give nanoseconds. Absent
// or zero values leave the current setting alone.
type JsonConfig struct {
	ServerEndpointAddr  string          `json:"server_endpoint_addr"`
	DatabasePath        string          `json:"database_path"`
	SyncTimeout         timex.Duration  `json:"sync_timeout"`
	AutoSyncInterval    *timex.Duration `json:"auto_sync_interval"`
	OnlineCheckInterval timex.Duration  `json:"online_check_interval"`
	SearchDebounce      timex.Duration  `json:"search_debounce"`
	LogFile             string          `json:"log_file"`
	Debug               bool            `json:"debug"`
}

// parseJson overlays cfg with the JSON file given by -c or -config in args.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.LogFile, jc.LogFile)
	if jc.SyncTimeout.Duration > 0 {
		cfg.SyncTimeout = jc.SyncTimeout.Duration
	}
	// an explicit 0 turns background sync off
	if jc.AutoSyncInterval != nil {
		cfg.AutoSyncInterval = jc.AutoSyncInterval.Duration
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.SearchDebounce.Duration > 0 {
		cfg.SearchDebounce = jc.SearchDebounce.Duration
	}
	cfg.Debug = cfg.Debug || jc.Debug
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
