package main

import (
	"github.com/btcsuite/btclog"
	"github.com/kaleidoswap/desktop-app-sub002/asset"
	"github.com/kaleidoswap/desktop-app-sub002/build"
	"github.com/kaleidoswap/desktop-app-sub002/feequote"
	"github.com/kaleidoswap/desktop-app-sub002/lifecycle"
	"github.com/kaleidoswap/desktop-app-sub002/monitoring"
	"github.com/kaleidoswap/desktop-app-sub002/paycfg"
	"github.com/kaleidoswap/desktop-app-sub002/rln"
	"github.com/kaleidoswap/desktop-app-sub002/target"
)

// Subsystem is the logging code of the command itself.
const Subsystem = "PTOL"

// log is a logger that is initialized with no output filters. This means the
// package will not perform any logging by default until setupLoggers runs.
var log = build.NewSubLogger(Subsystem, nil)

// setupLoggers hands every package a logger of the manager's backend.
func setupLoggers(mgr *build.SubLoggerManager) {
	log = mgr.GenSubLogger(Subsystem)

	addSubLogger(mgr, asset.Subsystem, asset.UseLogger)
	addSubLogger(mgr, target.Subsystem, target.UseLogger)
	addSubLogger(mgr, feequote.Subsystem, feequote.UseLogger)
	addSubLogger(mgr, lifecycle.Subsystem, lifecycle.UseLogger)
	addSubLogger(mgr, rln.Subsystem, rln.UseLogger)
	addSubLogger(mgr, paycfg.Subsystem, paycfg.UseLogger)
	addSubLogger(mgr, monitoring.Subsystem, monitoring.UseLogger)
}

// addSubLogger creates the subsystem logger and passes it to useLogger.
func addSubLogger(mgr *build.SubLoggerManager, subsystem string,
	useLogger func(btclog.Logger)) {

	useLogger(build.NewSubLogger(subsystem, mgr.GenSubLogger))
}
