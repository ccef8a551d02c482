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

	"github.com/lodestone-db/lodestone-go-driver/lodestone/db"
	idb "github.com/lodestone-db/lodestone-go-driver/lodestone/internal/db"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/log"
)

// Rediscovery produces a fresh cluster composition for a routing table.
type Rediscovery interface {
	LookupClusterComposition(ctx context.Context, table *RoutingTable, provider idb.ConnectionProvider) (*db.ClusterComposition, error)
}

type rediscovery struct {
	rootRouter string
	logger     log.Logger
	logId      string
}

func NewRediscovery(rootRouter string, logger log.Logger, logId string) Rediscovery {
	return &rediscovery{rootRouter: rootRouter, logger: logger, logId: logId}
}

// LookupClusterComposition tries the table's routers one at a time, falling
// back to the initial router when the table has none left. Per-router
// failures are internal, only total failure surfaces.
func (r *rediscovery) LookupClusterComposition(
	ctx context.Context, table *RoutingTable, provider idb.ConnectionProvider) (*db.ClusterComposition, error) {

	routers := table.Routers()
	if len(routers) == 0 {
		routers = []string{r.rootRouter}
	}
	r.logger.Infof(log.Router, r.logId, "Reading routing table for '%s' from any of %v", table.Database(), routers)

	var err error = &db.ReadRoutingTableError{}
	for _, router := range routers {
		var conn idb.Connection
		if conn, err = provider.AcquireAddress(ctx, router); err != nil {
			if ctx.Err() != nil {
				return nil, &db.ReadRoutingTableError{Server: router, Err: ctx.Err()}
			}
			err = &db.ReadRoutingTableError{Server: router, Err: err}
			continue
		}

		var composition *db.ClusterComposition
		composition, err = conn.GetRoutingTable(ctx, table.Database())
		releaseErr := conn.Release(ctx)
		if err == nil {
			if releaseErr != nil {
				r.logger.Warnf(log.Router, r.logId, "Failed to release router connection: %s", releaseErr)
			}
			return composition, nil
		}
		err = &db.ReadRoutingTableError{Server: router, Err: err}
	}
	return nil, err
}
