package cmd

import (
	"context"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/sirupsen/logrus"

	"usdc-bridge/config"
	"usdc-bridge/pkg/bridge"
	"usdc-bridge/pkg/chains"
	"usdc-bridge/pkg/client"
	"usdc-bridge/pkg/evm"
	"usdc-bridge/pkg/history"
	"usdc-bridge/pkg/telemetry"
)

const pushJobName = "usdc-bridge"

// app holds the per-invocation dependencies shared by all commands
type app struct {
	cfg      *config.Config
	registry *chains.Registry
	log      *logrus.Logger
	metrics  *telemetry.Metrics
	okx      *client.OKXClient

	shutdownTracer func()
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else if jsonOutput {
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}

// newApp loads configuration and wires the aggregator client, logging and telemetry
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	log := newLogger()

	shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.OtelEndpoint)
	if err != nil {
		log.WithError(err).Warn("Tracing disabled")
	}

	metrics := telemetry.NewMetrics()

	okx := client.NewOKXClient(client.Options{
		BaseURL: cfg.BaseURL,
		Credentials: client.Credentials{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.SecretKey,
			Passphrase: cfg.Passphrase,
		},
		Timeout:    cfg.API.Timeout,
		RateLimit:  cfg.API.RateLimit,
		MaxRetries: cfg.API.MaxRetries,
		Logger:     log,
		Metrics:    metrics,
	})

	return &app{
		cfg:            cfg,
		registry:       cfg.Registry(),
		log:            log,
		metrics:        metrics,
		okx:            okx,
		shutdownTracer: shutdown,
	}, nil
}

// service builds the bridge orchestrator
func (a *app) service(opts ...bridge.Option) *bridge.Service {
	base := []bridge.Option{
		bridge.WithLogger(a.log),
		bridge.WithMetrics(a.metrics),
	}
	return bridge.NewService(a.okx, a.registry, bridge.Config{
		WalletAddress: a.cfg.WalletAddress,
		FeePercent:    a.cfg.FeePercent,
		QuoteDelay:    a.cfg.Bridge.QuoteDelay,
		BuildRetries:  a.cfg.Bridge.BuildRetries,
		RetryCodes:    a.cfg.Bridge.RetryCodes,
	}, append(base, opts...)...)
}

// ledger opens the bridge history file
func (a *app) ledger() (*history.Storage, error) {
	return history.NewStorage(a.cfg.HistoryFile)
}

// wallet connects to the source chain with the configured key
func (a *app) wallet(ctx context.Context) (*evm.Wallet, error) {
	c, err := evm.Dial(ctx, a.registry.Source())
	if err != nil {
		return nil, err
	}
	w, err := evm.NewWallet(c, a.cfg.PrivateKey, a.cfg.WalletAddress)
	if err != nil {
		c.Close()
		return nil, err
	}
	return w, nil
}

// close pushes metrics and flushes traces
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.metrics.Push(ctx, a.cfg.Telemetry.PushgatewayURL, pushJobName); err != nil {
		a.log.WithError(err).Warn("Failed to push metrics")
	}
	if a.shutdownTracer != nil {
		a.shutdownTracer()
	}
}

// startSpinner shows a spinner on interactive, non-JSON, non-verbose runs. The returned func stops it.
func startSpinner(suffix string) func() {
	if jsonOutput || verbose {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + suffix
	s.Writer = os.Stderr
	s.Start()
	return s.Stop
}
