package main

import (
	"fmt"
	"os"

	"github.com/eshaffer321/ordersync-backend/internal/cli"
)

func main() {
	flags := cli.ParseServeFlags()
	cfg := cli.LoadConfig(flags.ConfigPath)

	if err := cli.RunServe(cfg, flags); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
