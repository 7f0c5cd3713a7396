// Command mixtcp-send connects to a set of mix node endpoints and sends
// payloads to them, reconnecting with exponential backoff when a peer
// drops.
//
// Usage:
//
//	mixtcp-send [flags]
//
// Flags:
//
//	-config string          YAML configuration file
//	-endpoints string       Comma-separated endpoints (overrides config)
//	-to string              Destination for -message (default: every endpoint)
//	-message string         Send one payload and exit
//	-interactive            Start the interactive shell (default when -message is empty)
//	-strict                 Fail if any endpoint is unreachable at startup
//	-discover               Add endpoints found with mDNS
//	-metrics string         Serve Prometheus metrics on this address
//	-protocol-log string    File path for protocol event logging (CBOR format)
//	-log-level string       Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# One-shot send to a single node
//	mixtcp-send -endpoints 10.0.0.1:1789 -message hello
//
//	# Shell over nodes from a config file, with metrics
//	mixtcp-send -config client.yaml -metrics :9100
//
//	# Nodes found on the local network
//	mixtcp-send -discover -protocol-log send.mtlog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gyrusdentatus/nym/cmd/mixtcp-send/interactive"
	"github.com/gyrusdentatus/nym/internal/cli"
	"github.com/gyrusdentatus/nym/pkg/config"
	"github.com/gyrusdentatus/nym/pkg/discovery"
	"github.com/gyrusdentatus/nym/pkg/transport"
)

var (
	configFile  = flag.String("config", "", "YAML configuration file")
	endpoints   = flag.String("endpoints", "", "Comma-separated endpoints (overrides config)")
	to          = flag.String("to", "", "Destination for -message (default: every endpoint)")
	message     = flag.String("message", "", "Send one payload and exit")
	interact    = flag.Bool("interactive", false, "Start the interactive shell")
	strict      = flag.Bool("strict", false, "Fail if any endpoint is unreachable at startup")
	discover    = flag.Bool("discover", false, "Add endpoints found with mDNS")
	metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address")
	protocolLog = flag.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	logger, err := cli.NewLogger(os.Stderr, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if err := run(logger); err != nil {
		logger.Error("mixtcp-send failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig merges the config file with flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if *endpoints != "" {
		cfg.Endpoints = splitList(*endpoints)
	}
	if *strict {
		cfg.StrictBootstrap = true
	}
	if *discover {
		cfg.Discovery.Enabled = true
	}
	if *metricsAddr != "" {
		cfg.MetricsAddress = *metricsAddr
	}
	if *protocolLog != "" {
		cfg.ProtocolLog = *protocolLog
	}
	return cfg, nil
}

func run(logger *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	clientCfg, err := cfg.ClientConfig()
	if err != nil {
		return err
	}

	if cfg.Discovery.Enabled {
		found, err := discoverEndpoints(ctx, cfg, logger)
		if err != nil && len(clientCfg.Endpoints) == 0 {
			return fmt.Errorf("discovery: %w", err)
		}
		clientCfg.Endpoints = append(clientCfg.Endpoints, found...)
	}

	protoLogger, closeLog, err := cli.ProtocolLogger(cfg.ProtocolLog, logger)
	if err != nil {
		return err
	}
	defer closeLog()
	clientCfg.Logger = protoLogger

	if cfg.MetricsAddress != "" {
		reg := cli.NewRegistry()
		clientCfg.Metrics = transport.NewMetrics(reg)

		ms := cli.NewMetricsServer(cfg.MetricsAddress, reg, logger)
		if err := ms.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			ms.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("connecting", "endpoints", len(clientCfg.Endpoints), "strict", clientCfg.StrictBootstrap)
	client, err := transport.NewClient(ctx, clientCfg)
	if err != nil {
		var be *transport.BootstrapError
		if errors.As(err, &be) {
			for _, ep := range be.Endpoints {
				logger.Error("endpoint unreachable", "endpoint", ep.String())
			}
		}
		return err
	}
	defer client.Close()

	if *message != "" && !*interact {
		return sendOnce(ctx, client, logger)
	}

	shell, err := interactive.New(client)
	if err != nil {
		return err
	}
	if *message != "" {
		if err := sendOnce(ctx, client, logger); err != nil {
			logger.Warn("initial send failed", "error", err)
		}
	}

	go shell.Run(ctx, cancel)
	<-ctx.Done()

	logger.Info("shutting down")
	return nil
}

// sendOnce sends -message to -to, or to every endpoint.
func sendOnce(ctx context.Context, client *transport.Client, logger *slog.Logger) error {
	targets := client.Endpoints()
	if *to != "" {
		ep, err := transport.ParseEndpoint(*to)
		if err != nil {
			return err
		}
		targets = []transport.Endpoint{ep}
	}
	if len(targets) == 0 {
		return errors.New("no endpoints to send to")
	}

	var failed int
	for _, ep := range targets {
		if err := client.Send(ctx, ep, []byte(*message)); err != nil {
			logger.Error("send failed", "endpoint", ep.String(), "error", err)
			failed++
			continue
		}
		logger.Info("sent", "endpoint", ep.String(), "bytes", len(*message))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sends failed", failed, len(targets))
	}
	return nil
}

func discoverEndpoints(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]transport.Endpoint, error) {
	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{Interface: cfg.Discovery.Interface})
	defer browser.Stop()

	logger.Info("browsing for mix nodes", "service", discovery.ServiceType, "timeout", cfg.Discovery.Timeout.Std())
	found, err := discovery.Collect(ctx, browser, cfg.Discovery.Timeout.Std())
	if err != nil {
		return nil, err
	}
	for _, ep := range found {
		logger.Info("discovered endpoint", "endpoint", ep.String())
	}
	return found, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
