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

// Package router keeps per-database routing tables fresh: it coalesces
// concurrent refreshes, drives rediscovery and prunes connections to
// servers that left the cluster.
package router

import (
	"fmt"
	"sync"
	"time"

	"github.com/lodestone-db/lodestone-go-driver/lodestone/db"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/internal/collection"
)

// RoutingTable is the address directory of one database: router, reader
// and writer sets plus freshness metadata. Reads and mutations are guarded
// by the table's own lock; reads return copies.
type RoutingTable struct {
	database    string
	mut         sync.RWMutex
	routers     []string
	readers     []string
	writers     []string
	timeToLive  time.Duration
	refreshedAt time.Time
	now         func() time.Time
}

func NewRoutingTable(database string, initialRouters []string, now func() time.Time) *RoutingTable {
	return &RoutingTable{
		database: database,
		routers:  append([]string(nil), initialRouters...),
		now:      now,
	}
}

func (t *RoutingTable) Database() string {
	return t.database
}

// Update replaces the table content with a fresh cluster composition and
// resets the freshness timestamp.
func (t *RoutingTable) Update(composition *db.ClusterComposition) {
	t.mut.Lock()
	defer t.mut.Unlock()
	t.routers = append([]string(nil), composition.Routers...)
	t.readers = append([]string(nil), composition.Readers...)
	t.writers = append([]string(nil), composition.Writers...)
	t.timeToLive = composition.TimeToLive
	t.refreshedAt = t.now()
}

// Forget removes the address everywhere, preventing further connection
// attempts to it until the next refresh brings it back.
func (t *RoutingTable) Forget(address string) {
	t.mut.Lock()
	defer t.mut.Unlock()
	t.routers = remove(t.routers, address)
	t.readers = remove(t.readers, address)
	t.writers = remove(t.writers, address)
}

// RemoveWriter removes the address from the writer set only.
func (t *RoutingTable) RemoveWriter(address string) {
	t.mut.Lock()
	defer t.mut.Unlock()
	t.writers = remove(t.writers, address)
}

func (t *RoutingTable) Routers() []string {
	t.mut.RLock()
	defer t.mut.RUnlock()
	return append([]string(nil), t.routers...)
}

func (t *RoutingTable) Readers() []string {
	t.mut.RLock()
	defer t.mut.RUnlock()
	return append([]string(nil), t.readers...)
}

func (t *RoutingTable) Writers() []string {
	t.mut.RLock()
	defer t.mut.RUnlock()
	return append([]string(nil), t.writers...)
}

// IsStaleFor reports whether the table can serve the given mode: stale
// when the mode's server set is empty, when there are no routers left or
// when the time to live has passed.
func (t *RoutingTable) IsStaleFor(mode db.AccessMode) bool {
	t.mut.RLock()
	defer t.mut.RUnlock()
	servers := t.writers
	if mode == db.ReadMode {
		servers = t.readers
	}
	return len(servers) == 0 || len(t.routers) == 0 || t.expired()
}

// IsStale reports whether the table has been unrefreshed for at least the
// given timeout beyond its time to live.
func (t *RoutingTable) IsStale(timeout time.Duration) bool {
	t.mut.RLock()
	defer t.mut.RUnlock()
	if t.refreshedAt.IsZero() {
		return true
	}
	return t.now().Sub(t.refreshedAt) > t.timeToLive+timeout
}

func (t *RoutingTable) expired() bool {
	if t.refreshedAt.IsZero() {
		return true
	}
	return t.now().Sub(t.refreshedAt) > t.timeToLive
}

// Servers returns the union of routers, readers and writers.
func (t *RoutingTable) Servers() []string {
	t.mut.RLock()
	defer t.mut.RUnlock()
	all := collection.NewSet(t.routers)
	all.AddAll(t.readers)
	all.AddAll(t.writers)
	return all.Values()
}

func (t *RoutingTable) String() string {
	t.mut.RLock()
	defer t.mut.RUnlock()
	return fmt.Sprintf("RoutingTable{database=%s, routers=%v, readers=%v, writers=%v, ttl=%s}",
		t.database, t.routers, t.readers, t.writers, t.timeToLive)
}

func remove(addresses []string, address string) []string {
	result := addresses[:0]
	for _, a := range addresses {
		if a != address {
			result = append(result, a)
		}
	}
	return result
}
