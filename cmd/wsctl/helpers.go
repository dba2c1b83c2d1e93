package main

import (
	"fmt"
	"os"

	"github.com/abelbrown/weaksignal/internal/config"
	"github.com/abelbrown/weaksignal/internal/logging"
	"github.com/abelbrown/weaksignal/internal/store"
)

// loadConfig reads the default config file and environment, or exits.
func loadConfig() *config.Config {
	cfg, err := config.Load(config.Path(config.DefaultDataDir()))
	if err != nil {
		fatalf("%v", err)
	}
	return cfg
}

// initLogging sends warnings to stderr so protocol problems are visible.
func initLogging(verbose bool) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	if err := logging.InitWriter(os.Stderr, level); err != nil {
		fatalf("%v", err)
	}
}

// openStore opens the local cache, or returns nil when it cannot.
func openStore(cfg *config.Config) *store.Store {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logging.Warn("no data directory", "err", err)
		return nil
	}
	st, err := store.Open(cfg.StorePath())
	if err != nil {
		logging.Warn("cache unavailable", "err", err)
		return nil
	}
	return st
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
