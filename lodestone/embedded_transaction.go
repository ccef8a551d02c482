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

	"github.com/jizhuozhi/go-future"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/db"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/internal/async"
)

// embeddedTransaction is the engine-backed transaction variant: begin,
// commit and rollback delegate to an in-process engine transaction handle.
type embeddedTransaction struct {
	runner   CypherRunner
	engineTx EngineTx
	state    txState
	cursors  resultCursorsHolder
	// autoCommit transactions close themselves once their single result
	// stream has been consumed.
	autoCommit bool
	onClosed   func()
}

func (tx *embeddedTransaction) Run(ctx context.Context, cypher string, params map[string]any) (*ResultCursor, error) {
	statement := NewStatement(cypher, params)
	if err := statement.validate(); err != nil {
		return nil, err
	}
	if err := tx.state.ensureCanRunQueries(); err != nil {
		return nil, err
	}
	result, err := tx.runner.Execute(cypher, params)
	if err != nil {
		tx.Failure()
		if tx.autoCommit {
			_ = tx.Close(ctx)
		}
		return nil, err
	}

	var onDone func(*db.Summary)
	if tx.autoCommit {
		tx.Success()
		onDone = func(summary *db.Summary) {
			if summary == nil {
				tx.Failure()
			}
			_ = tx.Close(ctx)
		}
	}
	cursor := newResultCursor(&embeddedSource{result: result}, statement, onDone)
	tx.cursors.add(async.Completed(cursor))
	return cursor, nil
}

// RunAsync is not supported until the engine exposes an asynchronous
// cursor.
func (tx *embeddedTransaction) RunAsync(context.Context, string, map[string]any) *future.Future[*ResultCursor] {
	return async.Failed[*ResultCursor](errEmbeddedAsyncUnsupported())
}

func (tx *embeddedTransaction) Success() {
	tx.state.success()
}

func (tx *embeddedTransaction) Failure() {
	tx.state.failure()
}

func (tx *embeddedTransaction) markTerminated() {
	tx.state.markTerminated()
}

func (tx *embeddedTransaction) IsOpen() bool {
	return tx.state.isOpen()
}

func (tx *embeddedTransaction) State() TransactionState {
	return tx.state.current()
}

func (tx *embeddedTransaction) Commit(ctx context.Context) error {
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
	commitErr := tx.engineTx.Commit()
	tx.transactionClosed(Committed)
	return db.CombineErrors(cursorErr, commitErr)
}

func (tx *embeddedTransaction) CommitAsync(context.Context) *future.Future[struct{}] {
	return async.Failed[struct{}](errEmbeddedAsyncUnsupported())
}

func (tx *embeddedTransaction) Rollback(ctx context.Context) error {
	switch tx.state.current() {
	case Committed:
		return &UsageError{Message: "Can't rollback, transaction has been committed"}
	case RolledBack:
		return nil
	}
	cursorErr := tx.cursors.retrieveNotConsumedError(ctx)
	rollbackErr := tx.engineTx.Rollback()
	tx.transactionClosed(RolledBack)
	return db.CombineErrors(cursorErr, rollbackErr)
}

func (tx *embeddedTransaction) RollbackAsync(context.Context) *future.Future[struct{}] {
	return async.Failed[struct{}](errEmbeddedAsyncUnsupported())
}

func (tx *embeddedTransaction) Close(ctx context.Context) error {
	switch tx.state.current() {
	case MarkedSuccess:
		return tx.Commit(ctx)
	case Committed, RolledBack:
		return nil
	}
	return tx.Rollback(ctx)
}

func (tx *embeddedTransaction) transactionClosed(newState TransactionState) {
	tx.state.set(newState)
	if tx.onClosed != nil {
		tx.onClosed()
	}
}

func errEmbeddedAsyncUnsupported() error {
	return &UnsupportedOperationError{Message: "Embedded sessions do not support asynchronous statements yet"}
}
