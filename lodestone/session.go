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
	"sync"
	"sync/atomic"
	"time"

	"github.com/jizhuozhi/go-future"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/db"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/internal/async"
	idb "github.com/lodestone-db/lodestone-go-driver/lodestone/internal/db"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/internal/retry"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/log"
)

// Session represents a serial scope towards the database: at most one
// transaction and at most one result cursor are outstanding at any time.
// A session is not safe for concurrent use.
type Session interface {
	// Run executes an auto-commit statement and returns its cursor. Fails
	// when an explicit transaction is open on this session.
	Run(ctx context.Context, cypher string, params map[string]any, configurers ...func(*TransactionConfig)) (*ResultCursor, error)
	// RunAsync is the non-blocking variant of Run; the caller is
	// responsible for consuming the cursor.
	RunAsync(ctx context.Context, cypher string, params map[string]any, configurers ...func(*TransactionConfig)) *future.Future[*ResultCursor]
	// BeginTransaction starts an explicit transaction on this session.
	BeginTransaction(ctx context.Context, configurers ...func(*TransactionConfig)) (Transaction, error)
	BeginTransactionAsync(ctx context.Context, configurers ...func(*TransactionConfig)) *future.Future[Transaction]
	// ReadTransaction executes the unit of work in a read transaction with
	// retry logic in place.
	ReadTransaction(ctx context.Context, work TransactionWork, configurers ...func(*TransactionConfig)) (any, error)
	// WriteTransaction executes the unit of work in a write transaction
	// with retry logic in place.
	WriteTransaction(ctx context.Context, work TransactionWork, configurers ...func(*TransactionConfig)) (any, error)
	ReadTransactionAsync(ctx context.Context, work TransactionWork, configurers ...func(*TransactionConfig)) *future.Future[any]
	WriteTransactionAsync(ctx context.Context, work TransactionWork, configurers ...func(*TransactionConfig)) *future.Future[any]
	// Reset cancels in-flight work best effort: the current transaction is
	// marked terminated and the connection is asked to send a protocol
	// reset.
	Reset(ctx context.Context) error
	// LastBookmark returns the last bookmark received following the last
	// successfully committed transaction, empty when there is none.
	LastBookmark() string
	// Bookmarks returns the session's current bookmark set.
	Bookmarks() Bookmarks
	IsOpen() bool
	// Close drains pending work, closes any open transaction, releases the
	// connection and marks the session unusable. Idempotent.
	Close(ctx context.Context) error
	CloseAsync(ctx context.Context) *future.Future[struct{}]
}

// SessionConfig is the configuration a session is created with.
type SessionConfig struct {
	// AccessMode routes statements run outside explicit read/write
	// transaction functions.
	AccessMode AccessMode
	// Bookmarks the session starts from, for causal chaining with other
	// sessions.
	Bookmarks Bookmarks
	// DatabaseName selects the database of a multi-database server, the
	// default database when empty.
	DatabaseName string
}

type retrySettings struct {
	maxTime      time.Duration
	initialDelay time.Duration
	multiplier   float64
	jitter       float64
}

// networkSession hides the chain of acquisition, drainage and release that
// precedes every statement. The three stage references serialise its
// operations: every new operation chains onto the previous stages, and the
// stored references are normalised so a failed predecessor never poisons
// the next operation.
type networkSession struct {
	provider  idb.ConnectionProvider
	mode      db.AccessMode
	bookmarks *bookmarksHolder
	retry     retrySettings
	logger    log.Logger
	logId     string
	sleep     func(time.Duration)
	now       func() time.Time

	open     atomic.Bool
	stageMut sync.Mutex

	txStage     *future.Future[*explicitTransaction]
	connStage   *future.Future[idb.Connection]
	cursorStage *future.Future[*ResultCursor]

	lastConn atomic.Pointer[connBox]
}

// connBox wraps the connection for the atomic last-connection slot used by
// best-effort termination on interrupted waits.
type connBox struct {
	conn idb.Connection
}

func newNetworkSession(provider idb.ConnectionProvider, config SessionConfig, retry retrySettings, logger log.Logger) *networkSession {
	s := &networkSession{
		provider:    provider,
		mode:        db.AccessMode(config.AccessMode),
		bookmarks:   newBookmarksHolder(config.Bookmarks),
		retry:       retry,
		logger:      logger,
		logId:       log.NewId(),
		sleep:       time.Sleep,
		now:         time.Now,
		txStage:     async.Completed[*explicitTransaction](nil),
		connStage:   async.Completed[idb.Connection](nil),
		cursorStage: async.Completed[*ResultCursor](nil),
	}
	s.open.Store(true)
	s.logger.Debugf(log.Session, s.logId, "Created")
	return s
}

func (s *networkSession) IsOpen() bool {
	return s.open.Load()
}

func (s *networkSession) LastBookmark() string {
	return s.bookmarks.lastBookmark()
}

func (s *networkSession) Bookmarks() Bookmarks {
	return s.bookmarks.current()
}

func (s *networkSession) Run(ctx context.Context, cypher string, params map[string]any,
	configurers ...func(*TransactionConfig)) (*ResultCursor, error) {

	return async.BlockingGet(ctx, s.RunAsync(ctx, cypher, params, configurers...),
		s.terminateConnectionOnInterrupt("Context done while running statement in session"))
}

func (s *networkSession) RunAsync(ctx context.Context, cypher string, params map[string]any,
	configurers ...func(*TransactionConfig)) *future.Future[*ResultCursor] {

	statement := NewStatement(cypher, params)
	if err := statement.validate(); err != nil {
		return async.Failed[*ResultCursor](err)
	}
	config, err := buildTransactionConfig(configurers)
	if err != nil {
		return async.Failed[*ResultCursor](err)
	}

	s.stageMut.Lock()
	defer s.stageMut.Unlock()
	if !s.open.Load() {
		return async.Failed[*ResultCursor](errSessionClosed())
	}

	prevTx, prevCursor, prevConn := s.txStage, s.cursorStage, s.connStage
	connPromise := future.NewPromise[idb.Connection]()

	newCursorStage := async.Run(func() (*ResultCursor, error) {
		conn, err := s.acquireConnection(ctx, s.mode, prevTx, prevCursor, prevConn, connPromise, errOpenTxBeforeRun())
		if err != nil {
			return nil, err
		}
		runBookmarks := s.bookmarks.currentRaw()
		stream, err := conn.Protocol().RunInAutoCommitTransaction(
			ctx, conn,
			idb.Command{Cypher: statement.Text(), Params: statement.Params()},
			runBookmarks,
			idb.TxConfig{Mode: s.mode, Bookmarks: runBookmarks, Timeout: config.Timeout, Meta: config.Metadata},
			true)
		if err != nil {
			s.releaseQuietly(ctx, conn)
			return nil, err
		}
		cursor := newResultCursor(&networkSource{conn: conn, stream: stream}, statement, func(summary *db.Summary) {
			// Stream terminated: pick up the bookmark on success and give
			// the connection back to the pool either way.
			if summary != nil {
				s.bookmarks.replace(summary.Bookmark)
			}
			s.releaseQuietly(ctx, conn)
		})
		return cursor, nil
	})

	s.cursorStage = async.Normalized(newCursorStage)
	s.connStage = connPromise.Future()
	return newCursorStage
}

func (s *networkSession) BeginTransaction(ctx context.Context, configurers ...func(*TransactionConfig)) (Transaction, error) {
	tx, err := async.BlockingGet(ctx, s.beginTransactionAsync(ctx, s.mode, configurers),
		s.terminateConnectionOnInterrupt("Context done while starting transaction"))
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *networkSession) BeginTransactionAsync(ctx context.Context, configurers ...func(*TransactionConfig)) *future.Future[Transaction] {
	stage := s.beginTransactionAsync(ctx, s.mode, configurers)
	return async.Run(func() (Transaction, error) {
		tx, err := stage.Get()
		if err != nil {
			return nil, err
		}
		return tx, nil
	})
}

func (s *networkSession) beginTransactionAsync(ctx context.Context, mode db.AccessMode,
	configurers []func(*TransactionConfig)) *future.Future[*explicitTransaction] {

	config, err := buildTransactionConfig(configurers)
	if err != nil {
		return async.Failed[*explicitTransaction](err)
	}

	s.stageMut.Lock()
	defer s.stageMut.Unlock()
	if !s.open.Load() {
		return async.Failed[*explicitTransaction](errSessionClosed())
	}

	prevTx, prevCursor, prevConn := s.txStage, s.cursorStage, s.connStage
	connPromise := future.NewPromise[idb.Connection]()

	newTxStage := async.Run(func() (*explicitTransaction, error) {
		conn, err := s.acquireConnection(ctx, mode, prevTx, prevCursor, prevConn, connPromise, errOpenTxBeforeBegin())
		if err != nil {
			return nil, err
		}
		beginBookmarks := s.bookmarks.currentRaw()
		handle, err := conn.Protocol().BeginTransaction(ctx, conn, beginBookmarks,
			idb.TxConfig{Mode: mode, Bookmarks: beginBookmarks, Timeout: config.Timeout, Meta: config.Metadata})
		if err != nil {
			// Transaction could not be started, connection goes back to
			// the pool right away.
			s.releaseQuietly(ctx, conn)
			return nil, err
		}
		tx := &explicitTransaction{
			conn:      conn,
			txHandle:  handle,
			bookmarks: s.bookmarks,
			logger:    s.logger,
			logId:     s.logId,
		}
		return tx, nil
	})

	// The stored stage resolves to the new transaction, or falls back to
	// the previous one when the begin failed, so the session still tracks
	// the only known transaction.
	s.txStage = async.Run(func() (*explicitTransaction, error) {
		tx, err := newTxStage.Get()
		if err != nil || tx == nil {
			prev, _ := prevTx.Get()
			return prev, nil
		}
		return tx, nil
	})
	s.connStage = connPromise.Future()
	return newTxStage
}

// acquireConnection is the serialised chain in front of every statement
// and explicit begin: reject overlap with an open transaction, drain the
// previous cursor re-throwing its failure, assert the previous connection
// has been returned, then acquire a fresh one.
func (s *networkSession) acquireConnection(
	ctx context.Context,
	mode db.AccessMode,
	prevTx *future.Future[*explicitTransaction],
	prevCursor *future.Future[*ResultCursor],
	prevConn *future.Future[idb.Connection],
	connPromise *future.Promise[idb.Connection],
	overlapErr error,
) (idb.Connection, error) {
	fail := func(err error) (idb.Connection, error) {
		connPromise.Set(nil, nil)
		return nil, err
	}

	tx, _ := prevTx.Get()
	if tx != nil && tx.IsOpen() {
		return fail(overlapErr)
	}

	cursor, _ := prevCursor.Get()
	if cursor != nil {
		// Make sure the previous result is fully consumed and its
		// connection released; an unconsumed failure is re-thrown so the
		// new operation fails fast instead of inheriting a poisoned
		// connection.
		if err := cursor.drainFailure(ctx); err != nil {
			return fail(err)
		}
	}

	existing, _ := prevConn.Get()
	if existing != nil && existing.IsOpen() {
		// The previous connection should have been released by now, this
		// is a precondition.
		return fail(&ProtocolError{Message: "Existing open connection detected"})
	}

	conn, err := s.provider.Acquire(ctx, mode)
	if err != nil {
		return fail(err)
	}
	s.lastConn.Store(&connBox{conn: conn})
	connPromise.Set(conn, nil)
	return conn, nil
}

func (s *networkSession) ReadTransaction(ctx context.Context, work TransactionWork,
	configurers ...func(*TransactionConfig)) (any, error) {
	return s.runTransaction(ctx, db.ReadMode, work, configurers)
}

func (s *networkSession) WriteTransaction(ctx context.Context, work TransactionWork,
	configurers ...func(*TransactionConfig)) (any, error) {
	return s.runTransaction(ctx, db.WriteMode, work, configurers)
}

func (s *networkSession) ReadTransactionAsync(ctx context.Context, work TransactionWork,
	configurers ...func(*TransactionConfig)) *future.Future[any] {
	return async.Run(func() (any, error) {
		return s.runTransaction(ctx, db.ReadMode, work, configurers)
	})
}

func (s *networkSession) WriteTransactionAsync(ctx context.Context, work TransactionWork,
	configurers ...func(*TransactionConfig)) *future.Future[any] {
	return async.Run(func() (any, error) {
		return s.runTransaction(ctx, db.WriteMode, work, configurers)
	})
}

// runTransaction drives the retry controller on the caller goroutine, the
// sleeps between attempts must never run on a goroutine that progresses
// connection I/O.
func (s *networkSession) runTransaction(ctx context.Context, mode db.AccessMode,
	work TransactionWork, configurers []func(*TransactionConfig)) (any, error) {

	state := retry.State{
		MaxRetryTime: s.retry.maxTime,
		Log:          s.logger,
		LogName:      log.Session,
		LogId:        s.logId,
		Now:          s.now,
		Sleep:        s.sleep,
		Throttle:     retry.NewThrottler(s.retry.initialDelay, s.retry.maxTime, s.retry.multiplier, s.retry.jitter),
	}
	for state.Continue() {
		result, err, committing := s.executeTransactionWork(ctx, mode, work, configurers)
		if err == nil {
			return result, nil
		}
		var connErr *ConnectivityError
		connAlive := !errors.As(err, &connErr)
		state.OnFailure(err, connAlive, committing)
	}
	err := state.ProduceError()
	s.logger.Error(log.Session, s.logId, err)
	return nil, err
}

func (s *networkSession) executeTransactionWork(ctx context.Context, mode db.AccessMode,
	work TransactionWork, configurers []func(*TransactionConfig)) (any, error, bool) {

	tx, err := async.BlockingGet(ctx, s.beginTransactionAsync(ctx, mode, configurers),
		s.terminateConnectionOnInterrupt("Context done while starting retryable transaction"))
	if err != nil {
		return nil, err, false
	}
	result, err := executeWork(ctx, tx, work)
	if err != nil {
		// The commit inside close is the only place a failure leaves the
		// transaction outcome unknown.
		return nil, err, tx.State() == Committed || tx.State() == MarkedSuccess
	}
	return result, nil, false
}

func (s *networkSession) Reset(ctx context.Context) error {
	tx, _ := s.currentStages().tx.Get()
	if tx != nil && tx.IsOpen() {
		tx.markTerminated()
	}
	conn, _ := s.currentStages().conn.Get()
	if conn != nil && conn.IsOpen() {
		return conn.Reset(ctx)
	}
	return nil
}

func (s *networkSession) Close(ctx context.Context) error {
	_, err := async.BlockingGet(ctx, s.CloseAsync(ctx),
		s.terminateConnectionOnInterrupt("Context done while closing session"))
	return err
}

func (s *networkSession) CloseAsync(ctx context.Context) *future.Future[struct{}] {
	if !s.open.CompareAndSwap(true, false) {
		return async.Completed(struct{}{})
	}
	stages := s.currentStages()
	return async.Run(func() (struct{}, error) {
		var cursorErr error
		if cursor, _ := stages.cursor.Get(); cursor != nil {
			// There may be an unconsumed error on the pending cursor, it
			// belongs to the caller of Close.
			cursorErr = cursor.drainFailure(ctx)
		}
		var txErr error
		if tx, _ := stages.tx.Get(); tx != nil && tx.IsOpen() {
			txErr = tx.Close(ctx)
		}
		if conn, _ := stages.conn.Get(); conn != nil && conn.IsOpen() {
			s.releaseQuietly(ctx, conn)
		}
		s.logger.Debugf(log.Session, s.logId, "Closed")
		return struct{}{}, db.CombineErrors(cursorErr, txErr)
	})
}

type sessionStages struct {
	tx     *future.Future[*explicitTransaction]
	conn   *future.Future[idb.Connection]
	cursor *future.Future[*ResultCursor]
}

func (s *networkSession) currentStages() sessionStages {
	s.stageMut.Lock()
	defer s.stageMut.Unlock()
	return sessionStages{tx: s.txStage, conn: s.connStage, cursor: s.cursorStage}
}

func (s *networkSession) releaseQuietly(ctx context.Context, conn idb.Connection) {
	if err := conn.Release(ctx); err != nil {
		s.logger.Warnf(log.Session, s.logId, "Failed to release connection: %s", err)
	}
}

// terminateConnectionOnInterrupt terminates the most recently acquired
// connection, best effort, when a blocking wait is interrupted by context
// cancellation.
func (s *networkSession) terminateConnectionOnInterrupt(reason string) func() {
	return func() {
		box := s.lastConn.Load()
		if box == nil || box.conn == nil {
			return
		}
		box.conn.TerminateAndRelease(reason)
	}
}

func errSessionClosed() error {
	return &UsageError{Message: "No more interaction with this session is allowed as the session is already closed"}
}

func errOpenTxBeforeRun() error {
	return &UsageError{Message: "Statements cannot be run directly on a session with an open transaction; " +
		"either run from within the transaction or use a different session"}
}

func errOpenTxBeforeBegin() error {
	return &UsageError{Message: "You cannot begin a transaction on a session with an open transaction; " +
		"either run from within the transaction or use a different session"}
}
