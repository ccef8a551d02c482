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

// Package lodestone is the session and transaction coordination core of
// the Lodestone graph database driver.
package lodestone

import "github.com/lodestone-db/lodestone-go-driver/lodestone/db"

// Aliases to the types shared with the capability layer, so that driver
// users need a single import.

type Record = db.Record
type Duration = db.Duration
type Point2D = db.Point2D
type Point3D = db.Point3D
type InputPosition = db.InputPosition

type UsageError = db.UsageError
type DatabaseError = db.DatabaseError
type SessionExpiredError = db.SessionExpiredError
type ServiceUnavailableError = db.ServiceUnavailableError
type ProtocolError = db.ProtocolError
type ConnectivityError = db.ConnectivityError
type NoSuchRecordError = db.NoSuchRecordError
type UnsupportedOperationError = db.UnsupportedOperationError

// IsRetryable reports whether the error would be retried by the driver's
// retry controller.
func IsRetryable(err error) bool {
	return db.IsRetryable(err)
}

// AccessMode is used by sessions and transaction functions to route
// statements to an appropriate server.
type AccessMode int

const (
	// AccessModeWrite makes the driver return a session towards a writer.
	AccessModeWrite AccessMode = 0
	// AccessModeRead makes the driver return a session towards a follower
	// or a read replica.
	AccessModeRead AccessMode = 1
)
