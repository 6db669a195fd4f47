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

func newTestPeer(connID string) *Peer {
	return &Peer{
		ConnID:      connID,
		Role:        RoleOperator,
		Scopes:      []string{ScopeOperatorRead},
		ConnectedAt: time.Now(),
		Outbox:      make(chan string, 4),
	}
}

func TestRegistryRegisterAndCount(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, 0, r.Count())

	r.Register(newTestPeer("a"))
	r.Register(newTestPeer("b"))
	require.Equal(t, 2, r.Count())
}

func TestRegistryRemoveReturnsPeer(t *testing.T) {
	r := NewRegistry()
	p := newTestPeer("a")
	r.Register(p)

	removed := r.Remove("a")
	require.Same(t, p, removed)
	require.Equal(t, 0, r.Count())

	require.Nil(t, r.Remove("a"))
}

func TestRegistrySnapshotIsIterationSafe(t *testing.T) {
	r := NewRegistry()
	r.Register(newTestPeer("a"))
	r.Register(newTestPeer("b"))

	snap := r.Snapshot()
	require.Len(t, snap, 2)

	r.Register(newTestPeer("c"))
	require.Len(t, snap, 2, "snapshot must not observe later mutation")
}

func TestRegistryRegisterDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(newTestPeer("a"))
	require.Panics(t, func() {
		r.Register(newTestPeer("a"))
	})
}

func TestPeerHasScope(t *testing.T) {
	p := newTestPeer("a")
	p.Scopes = []string{ScopeOperatorRead}
	require.True(t, p.HasScope(ScopeOperatorRead))
	require.False(t, p.HasScope(ScopeOperatorWrite))

	p.Scopes = []string{ScopeAdmin}
	require.True(t, p.HasScope(ScopeOperatorWrite))
}

func TestPeerSendFailsWhenQueueFull(t *testing.T) {
	p := newTestPeer("a")
	p.Outbox = make(chan string, 1)
	require.True(t, p.Send("one"))
	require.False(t, p.Send("two"))
}
