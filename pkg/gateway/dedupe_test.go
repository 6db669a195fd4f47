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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDedupeCacheFirstThenDuplicate(t *testing.T) {
	c := NewDedupeCache(time.Hour, 10)
	require.False(t, c.CheckAndInsert("k"))
	require.True(t, c.CheckAndInsert("k"))
}

func TestDedupeCacheExpiresAfterTTL(t *testing.T) {
	c := NewDedupeCache(10*time.Millisecond, 10)
	require.False(t, c.CheckAndInsert("k"))
	time.Sleep(30 * time.Millisecond)
	require.False(t, c.CheckAndInsert("k"))
}

func TestDedupeCacheEvictsOldestOnOverflow(t *testing.T) {
	c := NewDedupeCache(time.Hour, 2)
	require.False(t, c.CheckAndInsert("a"))
	time.Sleep(2 * time.Millisecond)
	require.False(t, c.CheckAndInsert("b"))
	require.Equal(t, 2, c.Size())

	time.Sleep(2 * time.Millisecond)
	require.False(t, c.CheckAndInsert("c"))
	require.Equal(t, 2, c.Size())

	// "a" was the oldest and should have been evicted; re-inserting it
	// is treated as fresh, not a duplicate.
	require.False(t, c.CheckAndInsert("a"))
}

func TestDedupeCacheNeverExceedsMax(t *testing.T) {
	c := NewDedupeCache(time.Hour, 50)
	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.CheckAndInsert(fmt.Sprintf("key-%d", i))
		}(i)
	}
	wg.Wait()
	require.LessOrEqual(t, c.Size(), 50)
}
