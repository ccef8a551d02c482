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
	"sync"
	"sync/atomic"
	"time"

	"github.com/jizhuozhi/go-future"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/db"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/internal/async"
	idb "github.com/lodestone-db/lodestone-go-driver/lodestone/internal/db"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/log"
)

// How long a routing table may stay in the registry after going stale
// before it is trimmed.
const DefaultStalePurgeTimeout = 30 * time.Second

// tableRegistry is the handler's view of the registry it lives in.
type tableRegistry interface {
	PurgeAged()
	AllServers() []string
	Remove(database string)
}

// Handler coordinates refreshes of one database's routing table. At most
// one rediscovery is in flight per handler; concurrent callers share the
// same future.
type Handler struct {
	table        *RoutingTable
	registry     tableRegistry
	rediscovery  Rediscovery
	provider     idb.ConnectionProvider
	purgeTimeout time.Duration
	logger       log.Logger
	logId        string

	mut sync.Mutex
	// In-flight refresh slot: published under the monitor, read without
	// locking so registry purging can probe handlers re-entrantly.
	refresh atomic.Pointer[future.Future[*RoutingTable]]
}

func NewHandler(
	table *RoutingTable,
	rediscovery Rediscovery,
	provider idb.ConnectionProvider,
	registry tableRegistry,
	purgeTimeout time.Duration,
	logger log.Logger,
) *Handler {
	if purgeTimeout <= 0 {
		purgeTimeout = DefaultStalePurgeTimeout
	}
	return &Handler{
		table:        table,
		registry:     registry,
		rediscovery:  rediscovery,
		provider:     provider,
		purgeTimeout: purgeTimeout,
		logger:       logger,
		logId:        log.NewId(),
	}
}

// RefreshRoutingTable returns a future resolving to a table fresh enough
// for the given mode. A refresh already in flight is joined, a fresh table
// resolves immediately, a stale one starts rediscovery.
func (h *Handler) RefreshRoutingTable(ctx context.Context, mode db.AccessMode) *future.Future[*RoutingTable] {
	h.mut.Lock()
	defer h.mut.Unlock()

	if inFlight := h.refresh.Load(); inFlight != nil {
		return inFlight
	}
	if !h.table.IsStaleFor(mode) {
		return async.Completed(h.table)
	}

	h.logger.Infof(log.Router, h.logId, "Routing table for database '%s' is stale. %s", h.table.Database(), h.table)
	promise := future.NewPromise[*RoutingTable]()
	refresh := promise.Future()
	h.refresh.Store(refresh)

	go func() {
		composition, err := h.rediscovery.LookupClusterComposition(ctx, h.table, h.provider)
		if err != nil {
			h.lookupFailed(ctx, promise, err)
			return
		}
		h.freshCompositionFetched(ctx, promise, composition)
	}()

	return refresh
}

func (h *Handler) freshCompositionFetched(ctx context.Context, promise *future.Promise[*RoutingTable], composition *db.ClusterComposition) {
	h.mut.Lock()
	defer h.mut.Unlock()

	h.table.Update(composition)
	h.registry.PurgeAged()
	if err := h.provider.RetainAll(ctx, h.registry.AllServers()); err != nil {
		h.logger.Warnf(log.Router, h.logId, "Failed to prune connection pool: %s", err)
	}

	h.logger.Infof(log.Router, h.logId, "Updated routing table for database '%s'. %s", h.table.Database(), h.table)
	h.refresh.Store(nil)
	promise.Set(h.table, nil)
}

func (h *Handler) lookupFailed(_ context.Context, promise *future.Promise[*RoutingTable], err error) {
	h.mut.Lock()
	defer h.mut.Unlock()

	h.logger.Errorf(log.Router, h.logId, "Failed to update routing table for database '%s': %s", h.table.Database(), err)
	h.registry.Remove(h.table.Database())
	h.refresh.Store(nil)
	promise.Set(nil, err)
}

// OnConnectionFailure forgets the address from readers, writers and
// routers so no concurrent caller connects to it again.
func (h *Handler) OnConnectionFailure(address string) {
	h.table.Forget(address)
}

// OnWriteFailure removes the address from writers only.
func (h *Handler) OnWriteFailure(address string) {
	h.table.RemoveWriter(address)
}

// Servers is a lock-free snapshot of every address the table knows.
func (h *Handler) Servers() []string {
	return h.table.Servers()
}

// IsRoutingTableStale reports whether the table has outlived the purge
// timeout with no refresh in flight, which makes the handler eligible for
// removal from the registry.
func (h *Handler) IsRoutingTableStale() bool {
	return h.refresh.Load() == nil && h.table.IsStale(h.purgeTimeout)
}

// RoutingTable exposes the handler's table for tests.
func (h *Handler) RoutingTable() *RoutingTable {
	return h.table
}
