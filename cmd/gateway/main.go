// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Command gateway runs the control-plane gateway: it accepts operator and
// node WebSocket connections, multiplexes request/response calls and
// server-initiated events, and enforces role/scope authorization.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	gw "github.com/moltis-run/moltisgw/pkg/gateway"
)

var (
	bind             = flag.String("bind", "0.0.0.0", "address to bind the HTTP/WebSocket listener to")
	port             = flag.Int("port", 8787, "port to bind the HTTP/WebSocket listener to")
	version          = flag.String("version", "0.1.0", "server version string advertised at handshake")
	outboxSize       = flag.Int("outbox-size", gw.DefaultOutboxSize, "per-peer outbound queue capacity")
	handshakeTimeout = flag.Duration("handshake-timeout", gw.HandshakeTimeoutMS*time.Millisecond, "time allowed to complete the connect handshake")
	tickInterval     = flag.Duration("tick-interval", gw.TickIntervalMS*time.Millisecond, "interval between broadcast tick events")
	shutdownDrain    = flag.Duration("shutdown-drain", 2*time.Second, "time allowed to drain outbound queues on graceful shutdown")
)

func main() {
	flag.Parse()

	state := gw.NewState(*version, *outboxSize)
	methods := gw.NewMethodRegistry()
	connCfg := gw.DefaultConnConfig()
	connCfg.HandshakeTimeout = *handshakeTimeout
	connCfg.OutboxSize = *outboxSize

	server := gw.NewServer(state, methods, connCfg)
	addr := fmt.Sprintf("%s:%d", *bind, *port)

	log.Info("┌─────────────────────────────────────────────┐")
	log.Info(fmt.Sprintf("│  moltisgw gateway v%s", state.Version))
	log.Info(fmt.Sprintf("│  protocol v%d, listening on %s", gw.ProtocolVersion, addr))
	log.Info(fmt.Sprintf("│  %d methods registered", len(methods.MethodNames())))
	log.Info("└─────────────────────────────────────────────┘")

	httpServer := &http.Server{Addr: addr, Handler: server.Handler()}
	ticker := gw.NewTicker(state, *tickInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return ticker.Run(egCtx)
	})
	eg.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		return gracefulShutdown(state, httpServer, *shutdownDrain)
	})

	if err := eg.Wait(); err != nil && err != context.Canceled {
		log.Warn("gateway exited with error", zap.Error(err))
	}
}

// gracefulShutdown broadcasts "shutdown" to every connected peer, gives
// them a bounded deadline to disconnect on their own, force-closes
// whatever is still connected past that deadline, and only then closes
// the HTTP listener. This is the deliberate decision for spec.md §9's
// open question: the source advertises a shutdown event but defines no
// broadcast path.
//
// The force-close step matters because http.Server.Shutdown only waits
// on connections it tracks as idle; a hijacked WebSocket connection is
// invisible to it, so without closing peer sockets here ClientCount
// never reaches zero and Shutdown always blocks for the full drain
// timeout before giving up.
func gracefulShutdown(state *gw.State, httpServer *http.Server, drain time.Duration) error {
	log.Info("gateway shutting down, broadcasting shutdown event")
	gw.Emit(state, "shutdown", map[string]interface{}{
		"reason": "server shutdown",
	})

	deadline := time.Now().Add(drain)
	for time.Now().Before(deadline) && state.ClientCount() > 0 {
		time.Sleep(50 * time.Millisecond)
	}

	if n := state.ClientCount(); n > 0 {
		log.Info("shutdown drain deadline reached, force-closing remaining peers", zap.Int("count", n))
		gw.CloseAllPeers(state)
		// Give the now-unblocked read loops a moment to run their
		// ordinary teardown before we pull the HTTP listener out from
		// under them.
		time.Sleep(100 * time.Millisecond)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
