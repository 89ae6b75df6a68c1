// Command coordinator runs the single, fixed-identity coordinator node
// (spec §6): one positional argument, the TCP port to listen on.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/coordinator"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/metrics"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/transport"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/wal"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: coordinator <port>")
		os.Exit(1)
	}
	port := os.Args[1]

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.With(zap.String("port", port))

	dataDir := filepath.Join("data", "coordinator")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatal("failed to create data directory", zap.Error(err))
	}

	w, err := wal.Open(filepath.Join(dataDir, "wal.log"))
	if err != nil {
		log.Fatal("failed to open WAL", zap.Error(err))
	}

	t, err := transport.NewTCP(":" + port)
	if err != nil {
		log.Fatal("failed to bind listener", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	c := coordinator.New(t.LocalID(), dataDir, w, t, metrics.NewCoordinator(reg), logger)

	if err := c.Recover(w.Path()); err != nil {
		log.Fatal("recovery failed", zap.Error(err))
	}

	log.Info("coordinator ready", zap.String("address", t.LocalID()))
	select {}
}
