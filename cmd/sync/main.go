package main

import (
	"fmt"
	"os"

	"github.com/eshaffer321/ordersync-backend/internal/cli"
)

func main() {
	flags := cli.ParseSyncFlags()
	cfg := cli.LoadConfig(flags.ConfigPath)

	if err := cli.RunSync(cfg, flags, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
		os.Exit(1)
	}
}
