package main

import (
	"github.com/decred/dcrwsync/synchronizer"
	flags "github.com/jessevdk/go-flags"
)

// config holds every command-line-configurable knob for the demo binary,
// following the same long/description flags.Options convention the
// original daemon's config struct uses.
type config struct {
	Server  string `long:"server" description:"Indexing server websocket URL (wss://host:port)" default:"wss://127.0.0.1:50003"`
	Network string `long:"network" description:"Network to operate on {mainnet, testnet, simnet}" default:"testnet"`

	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems" default:"info"`
	LogDir     string `long:"logdir" description:"Directory to log output" default:"./logs"`

	synchronizer.Config `group:"Synchronizer" namespace:"sync"`
}

func defaultConfig() *config {
	return &config{
		Server:     "wss://127.0.0.1:50003",
		Network:    "testnet",
		DebugLevel: "info",
		LogDir:     "./logs",
		Config:     *synchronizer.DefaultConfig(),
	}
}

func loadConfig() (*config, error) {
	cfg := defaultConfig()
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}
	return cfg, nil
}
