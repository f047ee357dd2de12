package config

import "time"

// Config holds runtime settings for the fieldsync CLI.
type Config struct {
	// ServerEndpointAddr is the host:port of the congregation gRPC service.
	ServerEndpointAddr  string
	// DatabasePath is the local SQLite file.
	DatabasePath        string
	// SyncTimeout bounds the snapshot fetch of one sync.
	SyncTimeout         time.Duration
	// AutoSyncInterval is the background sync period; 0 disables it.
	AutoSyncInterval    time.Duration
	OnlineCheckInterval time.Duration
	SearchDebounce      time.Duration
	// LogFile, when set, receives the log instead of stderr.
	LogFile             string
	Debug               bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DatabasePath = "fieldsync.db"
	c.SyncTimeout = 30 * time.Second
	c.AutoSyncInterval = 5 * time.Minute
	c.OnlineCheckInterval = 3 * time.Second
	c.SearchDebounce = 300 * time.Millisecond
}

// LoadConfig builds a Config from defaults, then the JSON file named by
// -c/-config (if any), then the flags in args. Later sources win.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
