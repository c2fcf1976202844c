package cli

import (
	"flag"
	"os"

	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/config"
)

// SyncFlags are the flags of the sync command
type SyncFlags struct {
	AccountID  int64
	ConfigPath string
	Verbose    bool
}

// ParseSyncFlags parses sync flags from the command line
func ParseSyncFlags() SyncFlags {
	flags, _ := parseSyncFlags(flag.CommandLine, os.Args[1:])
	return flags
}

func parseSyncFlags(fs *flag.FlagSet, args []string) (SyncFlags, error) {
	var flags SyncFlags
	fs.Int64Var(&flags.AccountID, "account", 0, "Sync a single account (0 = all connected accounts)")
	fs.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	err := fs.Parse(args)
	return flags, err
}

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	Port       int
	ConfigPath string
	Verbose    bool
}

// ParseServeFlags parses command line flags for the serve command.
func ParseServeFlags() *ServeFlags {
	flags, _ := parseServeFlags(flag.CommandLine, os.Args[1:])
	return flags
}

func parseServeFlags(fs *flag.FlagSet, args []string) (*ServeFlags, error) {
	flags := &ServeFlags{}
	fs.IntVar(&flags.Port, "port", 0, "Port to listen on (0 = from config)")
	fs.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	err := fs.Parse(args)
	return flags, err
}

// LoadConfig reads the config file, falling back to the environment when
// the file is missing or unreadable.
func LoadConfig(path string) *config.Config {
	return config.LoadOrEnv_WithPath(path)
}
