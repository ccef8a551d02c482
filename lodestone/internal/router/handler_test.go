/*
 * Copyright (c) "Lodestone"
 * Lodestone Database Systems
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package router

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lodestone-db/lodestone-go-driver/lodestone/db"
	idb "github.com/lodestone-db/lodestone-go-driver/lodestone/internal/db"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/internal/testutil"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rediscoveryFake resolves with a fixed composition once released.
type rediscoveryFake struct {
	composition *db.ClusterComposition
	err         error
	calls       atomic.Int32
	block       chan struct{}
}

func (r *rediscoveryFake) LookupClusterComposition(
	context.Context, *RoutingTable, idb.ConnectionProvider) (*db.ClusterComposition, error) {
	r.calls.Add(1)
	if r.block != nil {
		<-r.block
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.composition, nil
}

type registryFake struct {
	purgeCalls  atomic.Int32
	removeCalls []string
	servers     []string
	mut         sync.Mutex
}

func (r *registryFake) PurgeAged() {
	r.purgeCalls.Add(1)
}

func (r *registryFake) AllServers() []string {
	return r.servers
}

func (r *registryFake) Remove(database string) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.removeCalls = append(r.removeCalls, database)
}

func composition() *db.ClusterComposition {
	return &db.ClusterComposition{
		Routers:    []string{"r1:7687"},
		Readers:    []string{"a:7687", "b:7687"},
		Writers:    []string{"a:7687"},
		TimeToLive: time.Minute,
	}
}

func newHandlerUnderTest(rediscovery Rediscovery, registry tableRegistry, provider idb.ConnectionProvider) *Handler {
	table := NewRoutingTable("orders", []string{"r1:7687"}, time.Now)
	return NewHandler(table, rediscovery, provider, registry, 30*time.Second, log.Void{})
}

func TestHandlerRefresh(outer *testing.T) {
	outer.Parallel()
	ctx := context.Background()

	outer.Run("stale table triggers rediscovery and updates", func(t *testing.T) {
		rediscovery := &rediscoveryFake{composition: composition()}
		registry := &registryFake{servers: []string{"a:7687", "b:7687", "r1:7687"}}
		provider := &testutil.ProviderFake{}
		handler := newHandlerUnderTest(rediscovery, registry, provider)

		table, err := handler.RefreshRoutingTable(ctx, db.ReadMode).Get()
		require.NoError(t, err)
		assert.Equal(t, []string{"a:7687", "b:7687"}, table.Readers())
		assert.Equal(t, int32(1), rediscovery.calls.Load())
		assert.Equal(t, int32(1), registry.purgeCalls.Load())
		require.Len(t, provider.RetainCalls, 1)
		retained := append([]string(nil), provider.RetainCalls[0]...)
		sort.Strings(retained)
		assert.Equal(t, []string{"a:7687", "b:7687", "r1:7687"}, retained)
	})

	outer.Run("fresh table resolves without rediscovery", func(t *testing.T) {
		rediscovery := &rediscoveryFake{composition: composition()}
		registry := &registryFake{}
		handler := newHandlerUnderTest(rediscovery, registry, &testutil.ProviderFake{})

		_, err := handler.RefreshRoutingTable(ctx, db.ReadMode).Get()
		require.NoError(t, err)
		_, err = handler.RefreshRoutingTable(ctx, db.ReadMode).Get()
		require.NoError(t, err)
		assert.Equal(t, int32(1), rediscovery.calls.Load())
	})

	outer.Run("concurrent refreshes coalesce into one rediscovery", func(t *testing.T) {
		rediscovery := &rediscoveryFake{composition: composition(), block: make(chan struct{})}
		registry := &registryFake{}
		handler := newHandlerUnderTest(rediscovery, registry, &testutil.ProviderFake{})

		first := handler.RefreshRoutingTable(ctx, db.ReadMode)
		second := handler.RefreshRoutingTable(ctx, db.WriteMode)
		close(rediscovery.block)

		table1, err1 := first.Get()
		table2, err2 := second.Get()
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Same(t, table1, table2)
		assert.Equal(t, int32(1), rediscovery.calls.Load())
	})

	outer.Run("lookup failure removes the handler and fails the caller", func(t *testing.T) {
		lookupErr := errors.New("all routers down")
		rediscovery := &rediscoveryFake{err: lookupErr}
		registry := &registryFake{}
		handler := newHandlerUnderTest(rediscovery, registry, &testutil.ProviderFake{})

		_, err := handler.RefreshRoutingTable(ctx, db.ReadMode).Get()
		assert.ErrorIs(t, err, lookupErr)
		assert.Equal(t, []string{"orders"}, registry.removeCalls)

		// The in-flight slot is clear, the next caller starts over.
		rediscovery.err = nil
		rediscovery.composition = composition()
		_, err = handler.RefreshRoutingTable(ctx, db.ReadMode).Get()
		assert.NoError(t, err)
	})

	outer.Run("connection failure forgets the address everywhere", func(t *testing.T) {
		rediscovery := &rediscoveryFake{composition: composition()}
		handler := newHandlerUnderTest(rediscovery, &registryFake{}, &testutil.ProviderFake{})
		_, err := handler.RefreshRoutingTable(ctx, db.ReadMode).Get()
		require.NoError(t, err)

		handler.OnConnectionFailure("a:7687")
		assert.NotContains(t, handler.RoutingTable().Readers(), "a:7687")
		assert.NotContains(t, handler.RoutingTable().Writers(), "a:7687")
	})

	outer.Run("write failure removes the writer only", func(t *testing.T) {
		rediscovery := &rediscoveryFake{composition: composition()}
		handler := newHandlerUnderTest(rediscovery, &registryFake{}, &testutil.ProviderFake{})
		_, err := handler.RefreshRoutingTable(ctx, db.ReadMode).Get()
		require.NoError(t, err)

		handler.OnWriteFailure("a:7687")
		assert.NotContains(t, handler.RoutingTable().Writers(), "a:7687")
		assert.Contains(t, handler.RoutingTable().Readers(), "a:7687")
	})

	outer.Run("staleness reported only without in-flight refresh", func(t *testing.T) {
		rediscovery := &rediscoveryFake{composition: composition(), block: make(chan struct{})}
		handler := newHandlerUnderTest(rediscovery, &registryFake{}, &testutil.ProviderFake{})

		// Table is brand new and never refreshed: stale.
		assert.True(t, handler.IsRoutingTableStale())

		pending := handler.RefreshRoutingTable(ctx, db.ReadMode)
		assert.False(t, handler.IsRoutingTableStale())
		close(rediscovery.block)
		_, err := pending.Get()
		require.NoError(t, err)
		assert.False(t, handler.IsRoutingTableStale())
	})
}
