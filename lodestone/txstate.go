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

import "sync/atomic"

// TransactionState is the lifecycle of a transaction. Committed and
// RolledBack are terminal; Terminated can only be left through rollback.
type TransactionState int32

const (
	// Active: running with no explicit success or failure marked.
	Active TransactionState = iota
	// MarkedSuccess: running, user marked for success, will be committed
	// on close.
	MarkedSuccess
	// MarkedFailure: user marked as failed, will be rolled back on close.
	MarkedFailure
	// Terminated: terminated either because of an explicit session reset
	// or because of a fatal connection error.
	Terminated
	// Committed: successfully committed.
	Committed
	// RolledBack: rolled back.
	RolledBack
)

func (s TransactionState) String() string {
	switch s {
	case Active:
		return "Active"
	case MarkedSuccess:
		return "MarkedSuccess"
	case MarkedFailure:
		return "MarkedFailure"
	case Terminated:
		return "Terminated"
	case Committed:
		return "Committed"
	case RolledBack:
		return "RolledBack"
	}
	return "Unknown"
}

func (s TransactionState) terminal() bool {
	return s == Committed || s == RolledBack
}

// txState is the atomic state machine embedded in both transaction
// variants.
type txState struct {
	state atomic.Int32
}

func (s *txState) current() TransactionState {
	return TransactionState(s.state.Load())
}

func (s *txState) set(state TransactionState) {
	s.state.Store(int32(state))
}

// success marks Active for commit-on-close, no-op otherwise.
func (s *txState) success() {
	s.state.CompareAndSwap(int32(Active), int32(MarkedSuccess))
}

// failure marks Active or MarkedSuccess for rollback-on-close, overriding
// any success mark. No-op otherwise.
func (s *txState) failure() {
	if !s.state.CompareAndSwap(int32(Active), int32(MarkedFailure)) {
		s.state.CompareAndSwap(int32(MarkedSuccess), int32(MarkedFailure))
	}
}

// markTerminated moves any non-terminal state to Terminated.
func (s *txState) markTerminated() {
	for {
		current := s.state.Load()
		if TransactionState(current).terminal() {
			return
		}
		if s.state.CompareAndSwap(current, int32(Terminated)) {
			return
		}
	}
}

// isOpen reports whether the transaction has not reached a terminal state.
func (s *txState) isOpen() bool {
	return !s.current().terminal()
}

// ensureCanRunQueries guards statement dispatch inside the transaction.
func (s *txState) ensureCanRunQueries() error {
	switch s.current() {
	case Committed:
		return &UsageError{Message: "Cannot run more statements in this transaction, it has been committed"}
	case RolledBack:
		return &UsageError{Message: "Cannot run more statements in this transaction, it has been rolled back"}
	case MarkedFailure:
		return &UsageError{Message: "Cannot run more statements in this transaction, it has been marked for failure. " +
			"Please either rollback or close this transaction"}
	case Terminated:
		return &UsageError{Message: "Cannot run more statements in this transaction, " +
			"it has either experienced a fatal error or was explicitly terminated"}
	}
	return nil
}
