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

// Package db defines the capabilities the coordination core consumes:
// abstract server connections, the wire protocol and the connection pool.
// Concrete implementations live outside the core.
package db

import (
	"context"
	"time"

	"github.com/lodestone-db/lodestone-go-driver/lodestone/db"
)

// TxHandle is an opaque handle to a server-side transaction, valid for one
// connection.
type TxHandle uint64

// StreamHandle is an opaque handle to a running result stream, valid for
// one connection.
type StreamHandle any

// Command is a statement ready for dispatch.
type Command struct {
	Cypher string
	Params map[string]any
}

// TxConfig carries everything a transaction begin needs on the wire.
// Timeout is forwarded as milliseconds, Meta verbatim.
type TxConfig struct {
	Mode      db.AccessMode
	Bookmarks []string
	Timeout   time.Duration
	Meta      map[string]any
}

// Connection is an abstract database server connection.
type Connection interface {
	// Protocol returns the negotiated wire protocol capability for this
	// connection.
	Protocol() Protocol
	// IsOpen reports whether the connection is fully functional.
	// Implementations should be passive, no pinging.
	IsOpen() bool
	// Reset returns the connection to the same state as directly after
	// connect, aborting any server-side work in flight.
	Reset(ctx context.Context) error
	// Release hands the connection back to its pool.
	Release(ctx context.Context) error
	// TerminateAndRelease kills the underlying transport and hands the
	// carcass back to the pool. Best effort, never fails.
	TerminateAndRelease(reason string)
	// ServerAddress returns the host:port of the remote server.
	ServerAddress() string
	// GetRoutingTable asks the server for the cluster composition of the
	// named database. Fails on servers that are not routers.
	GetRoutingTable(ctx context.Context, database string) (*db.ClusterComposition, error)
}

// Protocol is the wire protocol capability: how statements, transaction
// control and record pulling are framed on a connection. Versions are a
// concern of the implementation, not of the core.
type Protocol interface {
	BeginTransaction(ctx context.Context, conn Connection, bookmarks []string, config TxConfig) (TxHandle, error)
	RunInAutoCommitTransaction(ctx context.Context, conn Connection, cmd Command, bookmarks []string, config TxConfig, waitForRunResponse bool) (StreamHandle, error)
	RunInExplicitTransaction(ctx context.Context, conn Connection, cmd Command, tx TxHandle, waitForRunResponse bool) (StreamHandle, error)
	// Keys returns the column names of the stream, known as soon as the
	// run response has been received.
	Keys(conn Connection, stream StreamHandle) ([]string, error)
	// PullNext moves to the next item in the stream. If error is nil,
	// either Record or Summary has a value; if Record is nil the stream is
	// exhausted and Summary holds the terminal summary.
	PullNext(ctx context.Context, conn Connection, stream StreamHandle) (*db.Record, *db.Summary, error)
	// CommitTransaction returns the bookmark of the committed transaction,
	// empty when the server issued none.
	CommitTransaction(ctx context.Context, conn Connection, tx TxHandle) (string, error)
	RollbackTransaction(ctx context.Context, conn Connection, tx TxHandle) error
}

// ConnectionProvider hides pool construction and transport plumbing from
// the core.
type ConnectionProvider interface {
	// Acquire returns a connection to a server suitable for the given
	// access mode.
	Acquire(ctx context.Context, mode db.AccessMode) (Connection, error)
	// AcquireAddress returns a connection to the given server, used by
	// rediscovery to consult a specific router.
	AcquireAddress(ctx context.Context, address string) (Connection, error)
	// RetainAll prunes pooled connections to servers outside the given
	// address set.
	RetainAll(ctx context.Context, addresses []string) error
	Close(ctx context.Context) error
}
