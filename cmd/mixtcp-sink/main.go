// Command mixtcp-sink accepts transport connections and prints what
// peers send. It is the counterpart of mixtcp-send for local testing.
//
// Usage:
//
//	mixtcp-sink [flags]
//
// Flags:
//
//	-listen string          Listen address (default ":1789")
//	-allow string           Comma-separated IPs/CIDRs allowed to connect
//	-advertise string       Advertise via mDNS under this instance name
//	-interface string       Network interface for mDNS
//	-quiet                  Do not print payloads
//	-protocol-log string    File path for protocol event logging (CBOR format)
//	-log-level string       Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Loopback sink
//	mixtcp-sink -listen 127.0.0.1:1789
//
//	# LAN sink found by mixtcp-send -discover
//	mixtcp-sink -advertise mix-1 -allow 192.168.0.0/16
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gyrusdentatus/nym/internal/cli"
	"github.com/gyrusdentatus/nym/pkg/discovery"
	"github.com/gyrusdentatus/nym/pkg/transport"
)

var (
	listen      = flag.String("listen", ":"+strconv.Itoa(transport.DefaultPort), "Listen address")
	allow       = flag.String("allow", "", "Comma-separated IPs/CIDRs allowed to connect")
	advertise   = flag.String("advertise", "", "Advertise via mDNS under this instance name")
	iface       = flag.String("interface", "", "Network interface for mDNS")
	quiet       = flag.Bool("quiet", false, "Do not print payloads")
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
		logger.Error("mixtcp-sink failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	allowSet, err := cli.ParseAllowList(*allow)
	if err != nil {
		return err
	}

	protoLogger, closeLog, err := cli.ProtocolLogger(*protocolLog, logger)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := transport.NewServer(transport.ServerConfig{
		Address: *listen,
		Allow:   allowSet,
		Logger:  protoLogger,
		OnConnect: func(conn *transport.ServerConn) {
			logger.Info("peer connected", "remote", conn.RemoteAddr().String(), "conn_id", conn.ConnID())
		},
		OnDisconnect: func(conn *transport.ServerConn) {
			logger.Info("peer disconnected",
				"remote", conn.RemoteAddr().String(),
				"received", humanize.Bytes(conn.BytesReceived()))
		},
		OnData: func(conn *transport.ServerConn, data []byte) {
			if !*quiet {
				fmt.Printf("%s %s: %q\n", time.Now().Format(time.TimeOnly), conn.RemoteAddr(), data)
			}
		},
		OnError: func(conn *transport.ServerConn, err error) {
			logger.Warn("connection error", "error", err)
		},
	})

	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Stop()
	logger.Info("listening", "addr", srv.Addr().String())

	if *advertise != "" {
		adv := discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{Interface: *iface})
		info := &discovery.NodeInfo{
			InstanceName: *advertise,
			NodeID:       *advertise,
			Port:         srv.Endpoint().AddrPort().Port(),
		}
		if err := adv.Advertise(ctx, info); err != nil {
			return fmt.Errorf("advertise: %w", err)
		}
		defer adv.Stop()
		logger.Info("advertising", "service", discovery.ServiceType, "instance", info.InstanceName)
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down",
				"connections", srv.ConnectionCount(),
				"received", humanize.Bytes(srv.BytesReceived()))
			return nil
		case <-ticker.C:
			logger.Info("status",
				"connections", srv.ConnectionCount(),
				"received", humanize.Bytes(srv.BytesReceived()))
		}
	}
}
