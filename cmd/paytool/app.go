package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/kaleidoswap/desktop-app-sub002/asset"
	"github.com/kaleidoswap/desktop-app-sub002/bounds"
	"github.com/kaleidoswap/desktop-app-sub002/build"
	"github.com/kaleidoswap/desktop-app-sub002/feequote"
	"github.com/kaleidoswap/desktop-app-sub002/lifecycle"
	"github.com/kaleidoswap/desktop-app-sub002/monitoring"
	"github.com/kaleidoswap/desktop-app-sub002/paycfg"
	"github.com/kaleidoswap/desktop-app-sub002/paymetrics"
	"github.com/kaleidoswap/desktop-app-sub002/rln"
	"github.com/kaleidoswap/desktop-app-sub002/target"
	"github.com/kaleidoswap/desktop-app-sub002/units"
	"github.com/lightningnetwork/lnd/clock"
)

// app holds everything a command needs once the configuration is loaded.
type app struct {
	cfg *paycfg.Config

	logRotator *build.RotatingLogWriter
	exporter   *monitoring.Exporter

	clock      clock.Clock
	node       *rln.Client
	classifier *target.Classifier
	assets     *asset.Cache
	quotes     *feequote.Aggregator
	limits     bounds.Limits
	metrics    paymetrics.Recorder

	ctx    context.Context
	cancel context.CancelFunc
}

// start sets up logging, the metrics exporter and the node client.
func (a *app) start(cfg *paycfg.Config) error {
	a.cfg = cfg

	a.logRotator = build.NewRotatingLogWriter()
	if !cfg.LogConfig.Disable {
		err := a.logRotator.InitLogRotator(cfg.LogConfig, cfg.LogFile())
		if err != nil {
			return fmt.Errorf("log rotation setup failed: %w", err)
		}
	}

	mgr := build.NewSubLoggerManager(&build.LogWriter{
		RotatorPipe: a.logRotator,
	})
	setupLoggers(mgr)

	if err := build.ParseAndSetDebugLevels(cfg.DebugLevel, mgr); err != nil {
		return err
	}

	log.Debugf("Loaded config: %v", build.SpewLogClosure(cfg))
	if path := a.logRotator.Path(); path != "" {
		log.Debugf("Writing log to %v", path)
	}

	a.metrics = paymetrics.NewNoop()
	if cfg.Prometheus.Enable {
		exporter, err := monitoring.NewExporter()
		if err != nil {
			return err
		}
		if err := exporter.Start(cfg.Prometheus.Listen); err != nil {
			return fmt.Errorf("unable to start metrics exporter: %w",
				err)
		}

		a.exporter = exporter
		a.metrics = exporter.Recorder
	}

	limits, err := cfg.BoundLimits()
	if err != nil {
		return err
	}

	a.clock = clock.NewDefaultClock()

	nodeCfg := cfg.NodeConfig()
	nodeCfg.Clock = a.clock
	a.node = rln.NewClient(nodeCfg)
	a.limits = limits
	a.assets = asset.NewCache(a.node)
	a.classifier = target.NewClassifier(target.Config{
		Decoder:     a.node,
		ChainParams: cfg.ChainParams(),
	})
	a.quotes = feequote.New(feequote.Config{
		Estimator:          a.node,
		Lightning:          cfg.LightningFeePolicy(),
		OnChainVBytes:      cfg.Fees.OnChainVBytes,
		AssetOnChainVBytes: cfg.Fees.AssetOnChainVBytes,
		AssetCarrierSats:   cfg.Fees.AssetCarrierSats,
		Metrics:            a.metrics,
		Clock:              a.clock,
	})

	a.ctx, a.cancel = signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)

	log.Infof("Using node %v on %v", nodeCfg.URL, cfg.Network)

	return nil
}

// stop releases what start acquired.
func (a *app) stop() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.exporter != nil {
		if err := a.exporter.Stop(); err != nil {
			log.Errorf("Unable to stop metrics exporter: %v", err)
		}
	}
	if a.logRotator != nil {
		if err := a.logRotator.Close(); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
	}
}

// unit returns the configured bitcoin display unit.
func (a *app) unit() units.BitcoinUnit {
	return a.cfg.BitcoinUnit()
}

// newController creates a started payment controller.
func (a *app) newController() (*lifecycle.Controller, error) {
	ctrl := lifecycle.New(lifecycle.Config{
		Node:         a.node,
		Classifier:   a.classifier,
		Assets:       a.assets,
		Quotes:       a.quotes,
		Limits:       a.limits,
		Unit:         a.unit(),
		PollInterval: a.cfg.Poll.Interval,
		PollTimeout:  a.cfg.Poll.Timeout,
		Clock:        a.clock,
		Metrics:      a.metrics,

		WitnessAmountSat: btcutil.Amount(a.cfg.Fees.WitnessSats),
	})
	if err := ctrl.Start(); err != nil {
		return nil, err
	}

	return ctrl, nil
}
