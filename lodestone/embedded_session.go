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
	"sync/atomic"
	"time"

	"github.com/jizhuozhi/go-future"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/db"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/internal/async"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/internal/retry"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/log"
)

// embeddedSession is a session towards the in-process engine. There is no
// connection chain: the guards reduce to the open flag, the single
// transaction slot and the single pending cursor.
type embeddedSession struct {
	runner CypherRunner
	retry  retrySettings
	logger log.Logger
	logId  string
	sleep  func(time.Duration)
	now    func() time.Time

	open atomic.Bool
	mut  sync.Mutex

	tx     *embeddedTransaction
	cursor *ResultCursor
}

func newEmbeddedSession(runner CypherRunner, retry retrySettings, logger log.Logger) *embeddedSession {
	s := &embeddedSession{
		runner: runner,
		retry:  retry,
		logger: logger,
		logId:  log.NewId(),
		sleep:  time.Sleep,
		now:    time.Now,
	}
	s.open.Store(true)
	s.logger.Debugf(log.Session, s.logId, "Created embedded")
	return s
}

func (s *embeddedSession) IsOpen() bool {
	return s.open.Load()
}

// LastBookmark always returns empty, the embedded engine does not support
// bookmarks.
func (s *embeddedSession) LastBookmark() string {
	return ""
}

func (s *embeddedSession) Bookmarks() Bookmarks {
	return EmptyBookmarks()
}

func (s *embeddedSession) Run(ctx context.Context, cypher string, params map[string]any,
	configurers ...func(*TransactionConfig)) (*ResultCursor, error) {

	config, err := buildTransactionConfig(configurers)
	if err != nil {
		return nil, err
	}

	s.mut.Lock()
	defer s.mut.Unlock()
	if err := s.ensureReady(ctx, errOpenTxBeforeRun()); err != nil {
		return nil, err
	}

	engineTx, err := s.runner.BeginTx(config.Timeout)
	if err != nil {
		return nil, err
	}
	tx := &embeddedTransaction{runner: s.runner, engineTx: engineTx, autoCommit: true}
	cursor, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	s.cursor = cursor
	return cursor, nil
}

func (s *embeddedSession) RunAsync(context.Context, string, map[string]any,
	...func(*TransactionConfig)) *future.Future[*ResultCursor] {
	return async.Failed[*ResultCursor](errEmbeddedAsyncUnsupported())
}

func (s *embeddedSession) BeginTransaction(ctx context.Context, configurers ...func(*TransactionConfig)) (Transaction, error) {
	config, err := buildTransactionConfig(configurers)
	if err != nil {
		return nil, err
	}

	s.mut.Lock()
	defer s.mut.Unlock()
	if err := s.ensureReady(ctx, errOpenTxBeforeBegin()); err != nil {
		return nil, err
	}

	engineTx, err := s.runner.BeginTx(config.Timeout)
	if err != nil {
		return nil, err
	}
	tx := &embeddedTransaction{runner: s.runner, engineTx: engineTx}
	tx.onClosed = func() {
		s.mut.Lock()
		if s.tx == tx {
			s.tx = nil
		}
		s.mut.Unlock()
	}
	s.tx = tx
	return tx, nil
}

func (s *embeddedSession) BeginTransactionAsync(context.Context, ...func(*TransactionConfig)) *future.Future[Transaction] {
	return async.Failed[Transaction](errEmbeddedAsyncUnsupported())
}

func (s *embeddedSession) ReadTransaction(ctx context.Context, work TransactionWork,
	configurers ...func(*TransactionConfig)) (any, error) {
	return s.runTransaction(ctx, work, configurers)
}

func (s *embeddedSession) WriteTransaction(ctx context.Context, work TransactionWork,
	configurers ...func(*TransactionConfig)) (any, error) {
	return s.runTransaction(ctx, work, configurers)
}

func (s *embeddedSession) ReadTransactionAsync(context.Context, TransactionWork,
	...func(*TransactionConfig)) *future.Future[any] {
	return async.Failed[any](errEmbeddedAsyncUnsupported())
}

func (s *embeddedSession) WriteTransactionAsync(context.Context, TransactionWork,
	...func(*TransactionConfig)) *future.Future[any] {
	return async.Failed[any](errEmbeddedAsyncUnsupported())
}

func (s *embeddedSession) runTransaction(ctx context.Context, work TransactionWork,
	configurers []func(*TransactionConfig)) (any, error) {

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
		tx, err := s.BeginTransaction(ctx, configurers...)
		if err != nil {
			state.OnFailure(err, true, false)
			continue
		}
		result, err := executeWork(ctx, tx, work)
		if err != nil {
			state.OnFailure(err, true, tx.State() == Committed || tx.State() == MarkedSuccess)
			continue
		}
		return result, nil
	}
	err := state.ProduceError()
	s.logger.Error(log.Session, s.logId, err)
	return nil, err
}

func (s *embeddedSession) Reset(context.Context) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.tx != nil && s.tx.IsOpen() {
		s.tx.markTerminated()
	}
	return nil
}

func (s *embeddedSession) Close(ctx context.Context) error {
	if !s.open.CompareAndSwap(true, false) {
		return nil
	}
	s.mut.Lock()
	cursor, tx := s.cursor, s.tx
	s.cursor, s.tx = nil, nil
	s.mut.Unlock()

	var cursorErr error
	if cursor != nil {
		cursorErr = cursor.drainFailure(ctx)
	}
	var txErr error
	if tx != nil && tx.IsOpen() {
		txErr = tx.Close(ctx)
	}
	s.logger.Debugf(log.Session, s.logId, "Closed")
	return db.CombineErrors(cursorErr, txErr)
}

func (s *embeddedSession) CloseAsync(ctx context.Context) *future.Future[struct{}] {
	return async.Run(func() (struct{}, error) {
		return struct{}{}, s.Close(ctx)
	})
}

// ensureReady guards statement dispatch: the session must be open, there
// must be no open transaction and the previous cursor's failure must be
// surfaced before new work starts.
func (s *embeddedSession) ensureReady(ctx context.Context, overlapErr error) error {
	if !s.open.Load() {
		return errSessionClosed()
	}
	if s.tx != nil && s.tx.IsOpen() {
		return overlapErr
	}
	if s.cursor != nil {
		if err := s.cursor.drainFailure(ctx); err != nil {
			s.cursor = nil
			return err
		}
		s.cursor = nil
	}
	return nil
}

// Guards against interface drift between the two session variants.
var _ Session = (*embeddedSession)(nil)
var _ Session = (*networkSession)(nil)
