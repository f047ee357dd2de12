package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/fieldkeeper/fieldsync/internal/flagx"
)

// parseFlags populates cfg from command-line flags:
//
//	-a string   address and port of the server
//	-d string   local database file
//	-t int      sync timeout (seconds)
//	-s int      auto-sync interval (seconds, 0 disables)
//	-i int      online check interval (seconds)
//	-l string   log file
//	-v          debug logging
//
// Other arguments, such as -c, are filtered out with flagx.FilterArgs
// before parsing.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-t", "-s", "-i", "-l", "-v"})

	fs := flag.NewFlagSet("fieldsync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database file")
	syncTimeout := fs.Int("t", int(cfg.SyncTimeout.Seconds()), "sync timeout (in seconds)")
	autoSync := fs.Int("s", int(cfg.AutoSyncInterval.Seconds()), "auto-sync interval (in seconds, 0 disables)")
	onlineCheck := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file")
	fs.BoolVar(&cfg.Debug, "v", cfg.Debug, "debug logging")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["t"] {
		cfg.SyncTimeout = time.Duration(*syncTimeout) * time.Second
	}
	if set["s"] {
		cfg.AutoSyncInterval = time.Duration(*autoSync) * time.Second
	}
	if set["i"] {
		cfg.OnlineCheckInterval = time.Duration(*onlineCheck) * time.Second
	}
	return nil
}
