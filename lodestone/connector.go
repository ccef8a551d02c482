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

package lodestone

import (
	idb "github.com/lodestone-db/lodestone-go-driver/lodestone/internal/db"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/log"
)

// The capability types the core consumes, re-exported so that the wire
// transport package can implement them without reaching into internals.

type Connection = idb.Connection
type ConnectionProvider = idb.ConnectionProvider
type Protocol = idb.Protocol
type TxHandle = idb.TxHandle
type StreamHandle = idb.StreamHandle
type Command = idb.Command
type TxConfig = idb.TxConfig

// ConnectorFactory produces the connection pool towards one target
// address. The pool owns TCP/TLS plumbing and connection lifetimes; the
// core only acquires, releases and retains.
type ConnectorFactory func(target Address, auth AuthToken, encrypted bool, logger log.Logger) (ConnectionProvider, error)
