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
	"errors"
	"testing"

	"github.com/lodestone-db/lodestone-go-driver/lodestone/db"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/internal/testutil"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeExplicitTx(conn *testutil.ConnFake) (*explicitTransaction, *bookmarksHolder) {
	bookmarks := newBookmarksHolder(EmptyBookmarks())
	tx := &explicitTransaction{
		conn:      conn,
		txHandle:  1,
		bookmarks: bookmarks,
		logger:    log.Void{},
		logId:     "1",
	}
	return tx, bookmarks
}

func TestExplicitTransaction(outer *testing.T) {
	outer.Parallel()
	ctx := context.Background()

	outer.Run("commit transitions to Committed and releases", func(t *testing.T) {
		conn := testutil.NewConnFake()
		conn.CommitBookmark = "bm:1"
		tx, bookmarks := makeExplicitTx(conn)

		require.NoError(t, tx.Commit(ctx))
		assert.Equal(t, Committed, tx.State())
		assert.Equal(t, 1, conn.CommitCalls)
		assert.Equal(t, 1, conn.ReleaseCalls)
		assert.Equal(t, "bm:1", bookmarks.lastBookmark())
	})

	outer.Run("commit is a no-op when already committed", func(t *testing.T) {
		conn := testutil.NewConnFake()
		tx, _ := makeExplicitTx(conn)
		require.NoError(t, tx.Commit(ctx))
		require.NoError(t, tx.Commit(ctx))
		assert.Equal(t, 1, conn.CommitCalls)
	})

	outer.Run("commit after rollback fails", func(t *testing.T) {
		conn := testutil.NewConnFake()
		tx, _ := makeExplicitTx(conn)
		require.NoError(t, tx.Rollback(ctx))
		err := tx.Commit(ctx)
		assert.IsType(t, &UsageError{}, err)
		assert.Equal(t, 0, conn.CommitCalls)
	})

	outer.Run("commit when terminated fails and leaves rollback possible", func(t *testing.T) {
		conn := testutil.NewConnFake()
		tx, _ := makeExplicitTx(conn)
		tx.markTerminated()
		err := tx.Commit(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "can't be committed")
		assert.Equal(t, 0, conn.CommitCalls)
		assert.Equal(t, Terminated, tx.State())

		require.NoError(t, tx.Rollback(ctx))
		assert.Equal(t, RolledBack, tx.State())
		assert.Equal(t, 0, conn.RollbackCalls)
		assert.Equal(t, 1, conn.ReleaseCalls)
	})

	outer.Run("rollback when terminated sends nothing", func(t *testing.T) {
		conn := testutil.NewConnFake()
		tx, _ := makeExplicitTx(conn)
		tx.markTerminated()
		require.NoError(t, tx.Rollback(ctx))
		assert.Equal(t, 0, conn.RollbackCalls)
		assert.Equal(t, RolledBack, tx.State())
	})

	outer.Run("rollback after commit fails", func(t *testing.T) {
		conn := testutil.NewConnFake()
		tx, _ := makeExplicitTx(conn)
		require.NoError(t, tx.Commit(ctx))
		err := tx.Rollback(ctx)
		assert.IsType(t, &UsageError{}, err)
	})

	outer.Run("rollback is a no-op when already rolled back", func(t *testing.T) {
		conn := testutil.NewConnFake()
		tx, _ := makeExplicitTx(conn)
		require.NoError(t, tx.Rollback(ctx))
		require.NoError(t, tx.Rollback(ctx))
		assert.Equal(t, 1, conn.RollbackCalls)
	})

	outer.Run("close commits iff marked success", func(t *testing.T) {
		conn := testutil.NewConnFake()
		tx, _ := makeExplicitTx(conn)
		tx.Success()
		require.NoError(t, tx.Close(ctx))
		assert.Equal(t, 1, conn.CommitCalls)
		assert.Equal(t, 0, conn.RollbackCalls)
	})

	outer.Run("close rolls back active and marked-failure transactions", func(t *testing.T) {
		for _, mark := range []func(tx *explicitTransaction){func(*explicitTransaction) {}, func(tx *explicitTransaction) { tx.Failure() }} {
			conn := testutil.NewConnFake()
			tx, _ := makeExplicitTx(conn)
			mark(tx)
			require.NoError(t, tx.Close(ctx))
			assert.Equal(t, 0, conn.CommitCalls)
			assert.Equal(t, 1, conn.RollbackCalls)
		}
	})

	outer.Run("success then failure rolls back on close", func(t *testing.T) {
		conn := testutil.NewConnFake()
		tx, _ := makeExplicitTx(conn)
		tx.Success()
		tx.Failure()
		require.NoError(t, tx.Close(ctx))
		assert.Equal(t, 0, conn.CommitCalls)
		assert.Equal(t, 1, conn.RollbackCalls)
	})

	outer.Run("close is a no-op on a closed transaction", func(t *testing.T) {
		conn := testutil.NewConnFake()
		tx, _ := makeExplicitTx(conn)
		require.NoError(t, tx.Commit(ctx))
		require.NoError(t, tx.Close(ctx))
		assert.Equal(t, 1, conn.CommitCalls)
	})

	outer.Run("run guards after commit", func(t *testing.T) {
		conn := testutil.NewConnFake()
		tx, _ := makeExplicitTx(conn)
		require.NoError(t, tx.Commit(ctx))
		_, err := tx.Run(ctx, "RETURN 1", nil)
		assert.IsType(t, &UsageError{}, err)
	})

	outer.Run("run dispatch failure terminates the transaction", func(t *testing.T) {
		conn := testutil.NewConnFake()
		conn.RunTxErr = errors.New("dispatch failed")
		tx, _ := makeExplicitTx(conn)
		_, err := tx.Run(ctx, "RETURN 1", nil)
		require.Error(t, err)
		assert.Equal(t, Terminated, tx.State())
	})

	outer.Run("commit surfaces unconsumed cursor error first", func(t *testing.T) {
		streamErr := errors.New("stream blew up")
		conn := testutil.NewConnFake()
		conn.RunTxStream = &testutil.StreamFake{Keys: []string{"n"}, Err: streamErr}
		conn.CommitErr = errors.New("commit failed too")
		tx, _ := makeExplicitTx(conn)

		_, err := tx.Run(ctx, "CREATE (n)", nil)
		require.NoError(t, err)

		err = tx.Commit(ctx)
		require.Error(t, err)
		// Cursor failure is the primary error, the commit failure rides
		// along.
		assert.ErrorIs(t, err, streamErr)
		assert.Contains(t, err.Error(), "commit failed too")
		assert.Equal(t, Committed, tx.State())
	})

	outer.Run("run yields a working cursor", func(t *testing.T) {
		conn := testutil.NewConnFake()
		conn.RunTxStream = &testutil.StreamFake{
			Keys:    []string{"n"},
			Records: []*db.Record{{Keys: []string{"n"}, Values: []any{int64(1)}}},
		}
		tx, _ := makeExplicitTx(conn)
		cursor, err := tx.Run(ctx, "RETURN 1 AS n", nil)
		require.NoError(t, err)
		record, err := cursor.Single(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), record.Values[0])
		require.NoError(t, tx.Commit(ctx))
	})
}

// recordingTx observes the lifecycle calls the retryable work wrapper
// makes.
type recordingTx struct {
	explicitTransaction
	successes int
	failures  int
	closes    int
	conn      *testutil.ConnFake
}

func newRecordingTx() *recordingTx {
	conn := testutil.NewConnFake()
	tx := &recordingTx{conn: conn}
	tx.explicitTransaction = explicitTransaction{
		conn:      conn,
		txHandle:  1,
		bookmarks: newBookmarksHolder(EmptyBookmarks()),
		logger:    log.Void{},
		logId:     "1",
	}
	return tx
}

func (tx *recordingTx) Success() {
	tx.successes++
	tx.explicitTransaction.Success()
}

func (tx *recordingTx) Failure() {
	tx.failures++
	tx.explicitTransaction.Failure()
}

func (tx *recordingTx) Close(ctx context.Context) error {
	tx.closes++
	return tx.explicitTransaction.Close(ctx)
}

func TestExecuteWork(outer *testing.T) {
	outer.Parallel()
	ctx := context.Background()

	outer.Run("marks success and closes once on clean work", func(t *testing.T) {
		tx := newRecordingTx()
		result, err := executeWork(ctx, tx, func(Transaction) (any, error) {
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, result)
		assert.Equal(t, 1, tx.successes)
		assert.Equal(t, 0, tx.failures)
		assert.Equal(t, 1, tx.closes)
		assert.Equal(t, 1, tx.conn.CommitCalls)
	})

	outer.Run("marks failure and closes once on erroring work", func(t *testing.T) {
		tx := newRecordingTx()
		workErr := errors.New("x")
		_, err := executeWork(ctx, tx, func(Transaction) (any, error) {
			return nil, workErr
		})
		assert.ErrorIs(t, err, workErr)
		assert.Equal(t, 0, tx.successes)
		assert.Equal(t, 1, tx.failures)
		assert.Equal(t, 1, tx.closes)
		assert.Equal(t, 0, tx.conn.CommitCalls)
		assert.Equal(t, 1, tx.conn.RollbackCalls)
	})

	outer.Run("rolls back and re-panics on panicking work", func(t *testing.T) {
		tx := newRecordingTx()
		assert.Panics(t, func() {
			_, _ = executeWork(ctx, tx, func(Transaction) (any, error) {
				panic("boom")
			})
		})
		assert.Equal(t, 1, tx.failures)
		assert.Equal(t, 1, tx.closes)
		assert.Equal(t, 1, tx.conn.RollbackCalls)
	})
}
