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
	"sync/atomic"

	"github.com/lodestone-db/lodestone-go-driver/lodestone/db"
	idb "github.com/lodestone-db/lodestone-go-driver/lodestone/internal/db"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/log"
)

// Provider is the routing-aware connection provider handed to sessions of
// a cluster driver. It keeps the database's routing table fresh through
// the registry and picks servers round-robin from the fresh table,
// delegating the physical acquire to the underlying pool.
type Provider struct {
	pool     idb.ConnectionProvider
	registry *Registry
	database string
	offset   uint32
	logger   log.Logger
	logId    string
}

func NewProvider(pool idb.ConnectionProvider, registry *Registry, database string, logger log.Logger) *Provider {
	return &Provider{
		pool:     pool,
		registry: registry,
		database: database,
		logger:   logger,
		logId:    log.NewId(),
	}
}

func (p *Provider) Acquire(ctx context.Context, mode db.AccessMode) (idb.Connection, error) {
	handler := p.registry.EnsureHandler(p.database)
	table, err := handler.RefreshRoutingTable(ctx, mode).Get()
	if err != nil {
		return nil, err
	}

	servers := table.Writers()
	if mode == db.ReadMode {
		servers = table.Readers()
	}
	if len(servers) == 0 {
		return nil, &db.SessionExpiredError{Message: "No servers available for the requested access mode"}
	}

	// Round-robin over the fresh server set, forgetting the ones that
	// cannot be reached.
	start := int(atomic.AddUint32(&p.offset, 1))
	var lastErr error
	for i := 0; i < len(servers); i++ {
		address := servers[(start+i)%len(servers)]
		conn, err := p.pool.AcquireAddress(ctx, address)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			p.logger.Debugf(log.Router, p.logId, "Failed to connect to %s: %s", address, err)
			handler.OnConnectionFailure(address)
			lastErr = err
			continue
		}
		return conn, nil
	}
	return nil, &db.ServiceUnavailableError{Inner: lastErr}
}

func (p *Provider) AcquireAddress(ctx context.Context, address string) (idb.Connection, error) {
	return p.pool.AcquireAddress(ctx, address)
}

func (p *Provider) RetainAll(ctx context.Context, addresses []string) error {
	return p.pool.RetainAll(ctx, addresses)
}

func (p *Provider) Close(ctx context.Context) error {
	return p.pool.Close(ctx)
}

// OnWriteFailure routes a write failure on the address to the database's
// handler.
func (p *Provider) OnWriteFailure(address string) {
	p.registry.EnsureHandler(p.database).OnWriteFailure(address)
}
