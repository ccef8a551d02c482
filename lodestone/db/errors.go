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

package db

import (
	"fmt"
	"strings"
)

type dbErrCls int

const (
	dbErrClsSentinel dbErrCls = iota
	dbErrClsClient
	dbErrClsTransient
	dbErrClsUnknown
)

// DatabaseError means that the server failed to fulfil a request.
// Codes are on the format Lode.{classification}.X.Y, for example
// Lode.ClientError.General.ForbiddenOnReadOnlyDatabase.
type DatabaseError struct {
	Code string
	Msg  string
	cls  dbErrCls
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("Server error: [%s] %s", e.Code, e.Msg)
}

func (e *DatabaseError) getCls() dbErrCls {
	if e.cls == dbErrClsSentinel {
		parts := strings.Split(e.Code, ".")
		if len(parts) < 2 || parts[0] != "Lode" {
			e.cls = dbErrClsUnknown
			return e.cls
		}
		switch parts[1] {
		case "TransientError":
			e.cls = dbErrClsTransient
		case "ClientError":
			e.cls = dbErrClsClient
		default:
			e.cls = dbErrClsUnknown
		}
	}
	return e.cls
}

func (e *DatabaseError) IsClient() bool {
	return e.getCls() == dbErrClsClient
}

func (e *DatabaseError) IsTransient() bool {
	return e.getCls() == dbErrClsTransient
}

func (e *DatabaseError) IsRetriableTransient() bool {
	if e.getCls() != dbErrClsTransient {
		return false
	}
	switch e.Code {
	// Happens when the client aborts the transaction, should not retry
	case "Lode.TransientError.Transaction.Terminated",
		"Lode.TransientError.Transaction.LockClientStopped":
		return false
	}
	return true
}

func (e *DatabaseError) IsRetriableCluster() bool {
	switch e.Code {
	case "Lode.ClientError.Cluster.NotALeader",
		"Lode.ClientError.General.ForbiddenOnReadOnlyDatabase":
		return true
	}
	return false
}

// UsageError represents errors caused by incorrect usage of the driver API.
// This does not include statement syntax errors (those are DatabaseError).
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// ServiceUnavailableError means that no server could be reached to serve
// the request. Retryable by default.
type ServiceUnavailableError struct {
	Inner error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("ServiceUnavailable: %s", e.Inner.Error())
}

func (e *ServiceUnavailableError) Unwrap() error {
	return e.Inner
}

// SessionExpiredError means that a session can no longer satisfy the
// criteria under which it was acquired, for example a server no longer
// accepting writes. Retryable by default.
type SessionExpiredError struct {
	Message string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("SessionExpired: %s", e.Message)
}

// ProtocolError means that the connection and the server no longer agree on
// the state of the conversation. Not retryable.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ProtocolError: %s", e.Message)
}

// ConnectivityError represents a lost or broken connection.
type ConnectivityError struct {
	Inner error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("ConnectivityError: %s", e.Inner.Error())
}

func (e *ConnectivityError) Unwrap() error {
	return e.Inner
}

// NoSuchRecordError is returned by cursor navigation that expected a record
// which wasn't there.
type NoSuchRecordError struct {
	Message string
}

func (e *NoSuchRecordError) Error() string {
	return e.Message
}

func NewNoSuchRecordEmpty() *NoSuchRecordError {
	return &NoSuchRecordError{Message: "Result contains no records"}
}

func NewNoSuchRecordMoreThanOne() *NoSuchRecordError {
	return &NoSuchRecordError{Message: "Result contains more than one record"}
}

// UnsupportedOperationError is returned by operations that a driver variant
// does not implement, like asynchronous statements on the embedded engine.
type UnsupportedOperationError struct {
	Message string
}

func (e *UnsupportedOperationError) Error() string {
	return e.Message
}

// IsRetryable reports whether the retry controller should consider the
// error safe to retry: transient server failures, expired sessions and
// unreachable services are, caller misuse and plain database failures are
// not.
func IsRetryable(err error) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *ServiceUnavailableError, *SessionExpiredError, *ConnectivityError:
		return true
	case *DatabaseError:
		return e.IsRetriableTransient() || e.IsRetriableCluster()
	}
	return false
}

// ReadRoutingTableError is the total rediscovery failure, raised after
// every known router has been tried, or as soon as the context is done.
type ReadRoutingTableError struct {
	Err    error
	Server string
}

func (e *ReadRoutingTableError) Error() string {
	if e.Err != nil || len(e.Server) > 0 {
		return fmt.Sprintf("Unable to retrieve routing table from %s: %s", e.Server, e.Err)
	}
	return "Unable to retrieve routing table, no router provided"
}

// CombineErrors keeps the primary error and records the secondary one in
// its message chain, cursor failure first, commit or rollback failure
// suppressed.
func CombineErrors(primary, suppressed error) error {
	if suppressed == nil {
		return primary
	}
	if primary == nil {
		return suppressed
	}
	return fmt.Errorf("error %v occurred after previous error %w", suppressed, primary)
}

// CombineAllErrors folds CombineErrors over the given errors.
func CombineAllErrors(errs ...error) error {
	var result error
	for _, err := range errs {
		result = CombineErrors(result, err)
	}
	return result
}
