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
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	idb "github.com/lodestone-db/lodestone-go-driver/lodestone/internal/db"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/internal/collection"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/log"
)

// Registry indexes routing table handlers by database name. Reads are
// lock-free snapshots, per-handler mutations are serialised by each
// handler's own monitor.
type Registry struct {
	handlers     *xsync.MapOf[string, *Handler]
	rediscovery  Rediscovery
	provider     idb.ConnectionProvider
	initialRouters []string
	purgeTimeout time.Duration
	now          func() time.Time
	logger       log.Logger
	logId        string
}

func NewRegistry(
	rediscovery Rediscovery,
	provider idb.ConnectionProvider,
	initialRouters []string,
	purgeTimeout time.Duration,
	now func() time.Time,
	logger log.Logger,
) *Registry {
	return &Registry{
		handlers:       xsync.NewMapOf[string, *Handler](),
		rediscovery:    rediscovery,
		provider:       provider,
		initialRouters: initialRouters,
		purgeTimeout:   purgeTimeout,
		now:            now,
		logger:         logger,
		logId:          log.NewId(),
	}
}

// EnsureHandler returns the handler of the named database, creating it
// with a fresh empty table on first use.
func (r *Registry) EnsureHandler(database string) *Handler {
	handler, _ := r.handlers.LoadOrCompute(database, func() *Handler {
		r.logger.Debugf(log.Registry, r.logId, "Creating routing table handler for database '%s'", database)
		table := NewRoutingTable(database, r.initialRouters, r.now)
		return NewHandler(table, r.rediscovery, r.provider, r, r.purgeTimeout, r.logger)
	})
	return handler
}

// AllServers returns the union of every address known to every handler.
// Best-effort snapshot, concurrent mutations may or may not be observed.
func (r *Registry) AllServers() []string {
	all := collection.NewSet([]string{})
	r.handlers.Range(func(_ string, handler *Handler) bool {
		all.AddAll(handler.Servers())
		return true
	})
	return all.Values()
}

// Remove drops the handler of the named database, the next caller will
// recreate it.
func (r *Registry) Remove(database string) {
	r.handlers.Delete(database)
	r.logger.Debugf(log.Registry, r.logId, "Removed routing table handler for database '%s'", database)
}

// PurgeAged removes every handler whose table has been stale for at least
// the purge timeout.
func (r *Registry) PurgeAged() {
	r.handlers.Range(func(database string, handler *Handler) bool {
		if handler.IsRoutingTableStale() {
			r.logger.Infof(log.Registry, r.logId,
				"Purging routing table of database '%s' because it has not been used for a long time", database)
			r.handlers.Delete(database)
		}
		return true
	})
}
