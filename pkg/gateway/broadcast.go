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

package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/pingcap/failpoint"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// emitMu serializes Emit: seq assignment and fan-out happen as one step,
// so two concurrent emitters cannot enqueue their events out of seq order.
var emitMu sync.Mutex

// Emit is the general broadcast primitive (component G) used by the
// core and by external collaborators. It assigns a fresh seq, serializes
// the event exactly once, and fans the serialized string out to every
// registered peer's outbound queue. A peer whose queue is full is
// considered disconnected and scheduled for removal by the normal
// teardown path; the caller does not need to do anything further.
//
// Ordering guarantee: for any two events E1, E2 with seq(E1) < seq(E2),
// every peer that receives both receives E1 before E2. This follows from
// invariant 4 (each peer's outbound queue is FIFO) combined with
// single-producer fan-out: serialization happens before enqueue, and
// emitMu makes concurrent Emit calls take turns.
func Emit(state *State, name string, data interface{}) {
	emitMu.Lock()
	defer emitMu.Unlock()

	seq := state.NextSeq()
	frame := NewEventFrame(name, data, seq)
	raw, err := Encode(frame)
	if err != nil {
		log.Warn("failed to encode event frame", zap.String("name", name), zap.Error(err))
		return
	}

	for _, peer := range state.Registry.Snapshot() {
		if !peer.Send(raw) {
			log.Debug("peer outbound queue saturated, dropping peer",
				zap.String("conn_id", peer.ConnID), zap.String("event", name))
			peersDroppedTotal.WithLabelValues("queue_saturated").Inc()
			go dropPeer(state, peer.ConnID)
		}
	}
}

// dropPeer removes a peer whose outbound queue could not accept a frame
// and closes its transport. Run on its own goroutine so a slow
// broadcaster never blocks on the registry's write lock while holding
// anything else.
//
// It must not close peer.Outbox: that channel has a single owner,
// HandleConnection's teardown, which closes it only after the peer's
// own messageLoop has returned. Closing the transport here unblocks
// that blocking Read, which is what drives messageLoop to return and
// the ordinary teardown path to run. Closing Outbox from here instead
// would race HandleConnection's own close (double close panic) and
// would leave messageLoop's read loop — and the socket — running with
// no one left to hear about it.
func dropPeer(state *State, connID string) {
	peer := state.Registry.Remove(connID)
	if peer == nil {
		return
	}
	if peer.Conn != nil {
		_ = peer.Conn.Close()
	}
}

// CloseAllPeers forces every currently registered peer's transport
// closed. Used by graceful shutdown to drain connections: http.Server's
// own Shutdown does not know about hijacked WebSocket connections, so
// nothing else unblocks their read loops.
func CloseAllPeers(state *State) {
	for _, peer := range state.Registry.Snapshot() {
		if peer.Conn != nil {
			_ = peer.Conn.Close()
		}
	}
}

// Ticker periodically broadcasts a "tick" event carrying server time and
// the current connection count (component G). Run blocks until ctx is
// canceled, making it suitable for supervision under an errgroup
// alongside the HTTP server, matching pkg/p2p/server.go's MessageServer.Run
// pattern of running multiple supervised loops to completion together.
type Ticker struct {
	state    *State
	interval time.Duration
}

// NewTicker builds a Ticker that fires every interval.
func NewTicker(state *State, interval time.Duration) *Ticker {
	return &Ticker{state: state, interval: interval}
}

// Run drives the tick loop until ctx is canceled.
func (t *Ticker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			failpoint.Inject("GatewayTickDelay", func() {
				log.Info("tick delay injected by failpoint")
			})
			Emit(t.state, "tick", map[string]interface{}{
				"time":        now.UnixMilli(),
				"connections": t.state.ClientCount(),
			})
			ticksEmittedTotal.Inc()
			dedupeCacheSize.Set(float64(t.state.Dedupe.Size()))
		}
	}
}
