package main

import (
	"github.com/decred/dcrwsync/build"
	"github.com/decred/slog"
)

var log = build.NewSubLogger("DEMO", nil)

func useLogger(logger slog.Logger) {
	log = logger
}
