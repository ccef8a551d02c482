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
	"context"
	"sync"

	"github.com/jizhuozhi/go-future"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/db"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/internal/async"
	idb "github.com/lodestone-db/lodestone-go-driver/lodestone/internal/db"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/log"
)

// Transaction is a transactional scope statements run in. Both the
// network-backed explicit transaction and the embedded engine transaction
// implement it over the same state machine.
type Transaction interface {
	// Run executes a statement in this transaction and returns its cursor.
	Run(ctx context.Context, cypher string, params map[string]any) (*ResultCursor, error)
	// RunAsync is the non-blocking variant of Run.
	RunAsync(ctx context.Context, cypher string, params map[string]any) *future.Future[*ResultCursor]
	// Success marks the transaction to be committed on Close.
	Success()
	// Failure marks the transaction to be rolled back on Close, overriding
	// any earlier success mark.
	Failure()
	// Commit commits the transaction. Fails when it has been rolled back
	// or terminated, no-op when already committed.
	Commit(ctx context.Context) error
	CommitAsync(ctx context.Context) *future.Future[struct{}]
	// Rollback rolls the transaction back. Fails when it has been
	// committed, no-op when already rolled back. A terminated transaction
	// is closed as rolled back; the network variant sends no rollback
	// message for it.
	Rollback(ctx context.Context) error
	RollbackAsync(ctx context.Context) *future.Future[struct{}]
	// Close commits when marked for success and rolls back otherwise.
	// No-op on an already committed or rolled back transaction.
	Close(ctx context.Context) error
	// IsOpen reports whether the transaction has not reached a terminal
	// state yet.
	IsOpen() bool
	// State returns the current lifecycle state.
	State() TransactionState
}

// TransactionWork is a unit of work executed inside a retryable
// transaction.
type TransactionWork func(tx Transaction) (any, error)

// resultCursorsHolder tracks the cursors a transaction handed out, in
// dispatch order, so that their unconsumed failures can be surfaced before
// commit and rollback.
type resultCursorsHolder struct {
	mut     sync.Mutex
	cursors []*future.Future[*ResultCursor]
}

func (h *resultCursorsHolder) add(cursor *future.Future[*ResultCursor]) {
	h.mut.Lock()
	defer h.mut.Unlock()
	h.cursors = append(h.cursors, cursor)
}

// retrieveNotConsumedError awaits every held cursor in order and returns
// the first failure found. Cursors whose dispatch already failed carry no
// additional error.
func (h *resultCursorsHolder) retrieveNotConsumedError(ctx context.Context) error {
	h.mut.Lock()
	cursors := append([]*future.Future[*ResultCursor](nil), h.cursors...)
	h.mut.Unlock()

	var first error
	for _, stage := range cursors {
		cursor, err := stage.Get()
		if err != nil || cursor == nil {
			continue
		}
		if err := cursor.drainFailure(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// explicitTransaction is the network-backed transaction variant: begin,
// commit and rollback are protocol messages dispatched over the owned
// connection.
type explicitTransaction struct {
	conn      idb.Connection
	txHandle  idb.TxHandle
	state     txState
	cursors   resultCursorsHolder
	bookmarks *bookmarksHolder
	onClosed  func()
	logger    log.Logger
	logId     string
}

func (tx *explicitTransaction) Run(ctx context.Context, cypher string, params map[string]any) (*ResultCursor, error) {
	cursor, err := tx.run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	tx.cursors.add(async.Completed(cursor))
	return cursor, nil
}

func (tx *explicitTransaction) RunAsync(ctx context.Context, cypher string, params map[string]any) *future.Future[*ResultCursor] {
	stage := async.Run(func() (*ResultCursor, error) {
		return tx.run(ctx, cypher, params)
	})
	tx.cursors.add(stage)
	return stage
}

func (tx *explicitTransaction) run(ctx context.Context, cypher string, params map[string]any) (*ResultCursor, error) {
	statement := NewStatement(cypher, params)
	if err := statement.validate(); err != nil {
		return nil, err
	}
	if err := tx.state.ensureCanRunQueries(); err != nil {
		return nil, err
	}
	stream, err := tx.conn.Protocol().RunInExplicitTransaction(
		ctx, tx.conn, idb.Command{Cypher: cypher, Params: params}, tx.txHandle, true)
	if err != nil {
		// The connection state is unknown after a failed dispatch, the
		// transaction cannot be committed anymore.
		tx.state.markTerminated()
		return nil, err
	}
	cursor := newResultCursor(&networkSource{conn: tx.conn, stream: stream}, statement, nil)
	return cursor, nil
}

func (tx *explicitTransaction) Success() {
	tx.state.success()
}

func (tx *explicitTransaction) Failure() {
	tx.state.failure()
}

func (tx *explicitTransaction) markTerminated() {
	tx.state.markTerminated()
}

func (tx *explicitTransaction) IsOpen() bool {
	return tx.state.isOpen()
}

func (tx *explicitTransaction) State() TransactionState {
	return tx.state.current()
}

func (tx *explicitTransaction) Commit(ctx context.Context) error {
	switch tx.state.current() {
	case Committed:
		return nil
	case RolledBack:
		return &UsageError{Message: "Can't commit, transaction has been rolled back"}
	case Terminated:
		// Only rollback leads out of Terminated.
		return errCommitTerminated()
	}
	cursorErr := tx.cursors.retrieveNotConsumedError(ctx)
	commitErr := tx.doCommit(ctx)
	tx.transactionClosed(ctx, Committed)
	return db.CombineErrors(cursorErr, commitErr)
}

func (tx *explicitTransaction) CommitAsync(ctx context.Context) *future.Future[struct{}] {
	return async.Run(func() (struct{}, error) {
		return struct{}{}, tx.Commit(ctx)
	})
}

func (tx *explicitTransaction) doCommit(ctx context.Context) error {
	bookmark, err := tx.conn.Protocol().CommitTransaction(ctx, tx.conn, tx.txHandle)
	if err != nil {
		return err
	}
	tx.bookmarks.replace(bookmark)
	return nil
}

func (tx *explicitTransaction) Rollback(ctx context.Context) error {
	switch tx.state.current() {
	case Committed:
		return &UsageError{Message: "Can't rollback, transaction has been committed"}
	case RolledBack:
		return nil
	}
	cursorErr := tx.cursors.retrieveNotConsumedError(ctx)
	rollbackErr := tx.doRollback(ctx)
	tx.transactionClosed(ctx, RolledBack)
	return db.CombineErrors(cursorErr, rollbackErr)
}

func (tx *explicitTransaction) RollbackAsync(ctx context.Context) *future.Future[struct{}] {
	return async.Run(func() (struct{}, error) {
		return struct{}{}, tx.Rollback(ctx)
	})
}

func (tx *explicitTransaction) doRollback(ctx context.Context) error {
	if tx.state.current() == Terminated {
		// The server already rolled the transaction back when it was
		// terminated, nothing to send.
		return nil
	}
	return tx.conn.Protocol().RollbackTransaction(ctx, tx.conn, tx.txHandle)
}

func (tx *explicitTransaction) Close(ctx context.Context) error {
	switch tx.state.current() {
	case MarkedSuccess:
		return tx.Commit(ctx)
	case Committed, RolledBack:
		return nil
	}
	return tx.Rollback(ctx)
}

func (tx *explicitTransaction) transactionClosed(ctx context.Context, newState TransactionState) {
	tx.state.set(newState)
	if tx.conn != nil {
		if err := tx.conn.Release(ctx); err != nil {
			tx.logger.Warnf(log.Tx, tx.logId, "Failed to release connection: %s", err)
		}
		tx.conn = nil
	}
	if tx.onClosed != nil {
		tx.onClosed()
	}
}

// executeWork runs the unit of work in the given transaction: success is
// marked when the work returns cleanly, failure when it errors, and the
// transaction is closed exactly once either way.
func executeWork(ctx context.Context, tx Transaction, work TransactionWork) (any, error) {
	result, workErr := runWork(tx, work)
	if workErr != nil {
		tx.Failure()
		if closeErr := tx.Close(ctx); closeErr != nil {
			workErr = db.CombineErrors(workErr, closeErr)
		}
		return nil, workErr
	}
	tx.Success()
	if closeErr := tx.Close(ctx); closeErr != nil {
		return nil, closeErr
	}
	return result, nil
}

// runWork guards against panicking work functions so that the transaction
// is still rolled back and the panic observed by the caller.
func runWork(tx Transaction, work TransactionWork) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			tx.Failure()
			tx.Close(context.Background())
			panic(r)
		}
	}()
	return work(tx)
}

func errCommitTerminated() error {
	return &UsageError{Message: "Transaction can't be committed. " +
		"It has been rolled back either because of an error or explicit termination"}
}
