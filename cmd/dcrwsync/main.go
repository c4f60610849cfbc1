// Command dcrwsync is a minimal demo wallet driving the synchronizer core
// against a single indexing server over serverrpc. It is wiring, not a
// wallet: addresses and assets to watch are supplied on the command line,
// and history/metadata land only in an in-memory AddressBook.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrwsync"
	"github.com/decred/dcrwsync/build"
	"github.com/decred/dcrwsync/serverrpc"
	"github.com/decred/dcrwsync/synchronizer"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "dcrwsync"
	app.Usage = "run the wallet synchronizer core against an indexing server"
	app.Commands = []cli.Command{runCommand}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "subscribe to the given addresses/assets and stay in sync",
	ArgsUsage: "[addr...]",
	Flags: []cli.Flag{
		cli.StringSliceFlag{Name: "asset", Usage: "asset name to subscribe to (repeatable)"},
	},
	Action: runAction,
}

func runAction(cliCtx *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	params, err := networkParams(cfg.Network)
	if err != nil {
		return err
	}

	logWriter := build.NewRotatingLogWriter()
	if err := logWriter.InitLogRotator(cfg.LogDir+"/dcrwsync.log", 10, 3); err != nil {
		return fmt.Errorf("initializing log rotator: %v", err)
	}
	dcrwsync.SetupLoggers(logWriter)
	dcrwsync.AddSubLogger(logWriter, "DEMO", useLogger)
	for _, subsystem := range []string{"DWSY", "SYNC", "SRPC", "DEMO"} {
		logWriter.SetLogLevel(subsystem, cfg.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		cancel()
	}()

	session, err := serverrpc.Dial(ctx, cfg.Server)
	if err != nil {
		return fmt.Errorf("dialing %s: %v", cfg.Server, err)
	}
	defer session.Close()

	adb := newMemAddressBook()
	for _, addr := range cliCtx.Args() {
		adb.addAddress(addr)
	}
	for _, asset := range cliCtx.StringSlice("asset") {
		adb.addAsset(asset)
	}

	metrics := synchronizer.NewMetrics("dcrwsync")

	syncCfg := cfg.Config
	sync := synchronizer.NewSynchronizer(
		&syncCfg,
		session,
		adb,
		params,
		synchronizer.DefaultAddressValidator(params),
		synchronizer.DefaultAssetNameValidator(64),
		metrics,
	)

	for addr := range adb.addrs {
		if err := sync.Add(addr); err != nil {
			return err
		}
	}
	for asset := range adb.assets {
		if err := sync.AddAsset(asset); err != nil {
			return err
		}
	}

	return sync.Run(ctx)
}

func networkParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return chaincfg.MainNetParams(), nil
	case "testnet":
		return chaincfg.TestNet3Params(), nil
	case "simnet":
		return chaincfg.SimNetParams(), nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}
