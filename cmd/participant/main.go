// Command participant runs one participant node (spec §6): two
// positional arguments, the TCP port to listen on and this node's id.
//
// The coordinator's address is not part of the CLI shape the spec fixes
// (port, id only) but a recovering participant needs it to resend a
// reconstructed YES vote (spec §4.5) without waiting for a live
// VOTE_REQUEST to tell it who's asking. COORDINATOR_ADDR is read from the
// environment rather than added as a third positional argument or a flag,
// since neither is part of the specified CLI surface.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/metrics"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/participant"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/transport"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/wal"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const defaultCoordinatorAddr = "127.0.0.1:9000"

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: participant <port> <id>")
		os.Exit(1)
	}
	port := os.Args[1]
	id := os.Args[2]

	coordinatorAddr := os.Getenv("COORDINATOR_ADDR")
	if coordinatorAddr == "" {
		coordinatorAddr = defaultCoordinatorAddr
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.With(zap.String("port", port), zap.String("id", id))

	dataDir := filepath.Join("data", id)
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
	ask := participant.StdinPrompt(os.Stdout, os.Stdin)
	p := participant.New(id, coordinatorAddr, w, t, ask, metrics.NewParticipant(reg), logger)

	if err := p.Recover(w.Path()); err != nil {
		log.Fatal("recovery failed", zap.Error(err))
	}

	log.Info("participant ready", zap.String("address", t.LocalID()), zap.String("coordinator", coordinatorAddr))
	select {}
}
