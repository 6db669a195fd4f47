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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	waitTimeout = 2 * time.Second
	waitTick    = 10 * time.Millisecond
)

func TestEmitSeqStrictlyIncreasing(t *testing.T) {
	state := NewState("test", DefaultOutboxSize)
	peer := newTestPeer("a")
	peer.Outbox = make(chan string, 16)
	state.Registry.Register(peer)

	for i := 0; i < 5; i++ {
		Emit(state, "tick", map[string]interface{}{"i": i})
	}

	var lastSeq uint64
	for i := 0; i < 5; i++ {
		raw := <-peer.Outbox
		frame, err := Decode(raw)
		require.NoError(t, err)
		require.NotNil(t, frame.Event)
		require.Greater(t, frame.Event.Seq, lastSeq)
		lastSeq = frame.Event.Seq
	}
}

func TestEmitDropsSaturatedPeer(t *testing.T) {
	state := NewState("test", DefaultOutboxSize)
	peer := newTestPeer("a")
	peer.Outbox = make(chan string, 1)
	state.Registry.Register(peer)

	// Fill the queue, then emit again so Send fails and the peer gets
	// dropped asynchronously.
	Emit(state, "tick", map[string]interface{}{})
	Emit(state, "tick", map[string]interface{}{})

	require.Eventually(t, func() bool {
		_, ok := state.Registry.Get("a")
		return !ok
	}, waitTimeout, waitTick, "saturated peer should be removed from the registry")
}

func TestEmitFanOutReachesAllPeers(t *testing.T) {
	state := NewState("test", DefaultOutboxSize)
	a := newTestPeer("a")
	a.Outbox = make(chan string, 4)
	b := newTestPeer("b")
	b.Outbox = make(chan string, 4)
	state.Registry.Register(a)
	state.Registry.Register(b)

	Emit(state, "tick", map[string]interface{}{"hello": "world"})

	require.Len(t, a.Outbox, 1)
	require.Len(t, b.Outbox, 1)
}
