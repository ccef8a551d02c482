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
	"sync/atomic"

	"github.com/lodestone-db/lodestone-go-driver/lodestone/db"
	idb "github.com/lodestone-db/lodestone-go-driver/lodestone/internal/db"
)

// recordSource is where a cursor pulls its records from: a running network
// stream or an iterator of the embedded engine.
type recordSource interface {
	Keys() ([]string, error)
	// Next moves to the next item. If error is nil, either record or
	// summary has a value; a nil record means the stream is exhausted and
	// summary is terminal.
	Next(ctx context.Context) (*db.Record, *db.Summary, error)
}

// networkSource adapts a protocol stream handle to recordSource.
type networkSource struct {
	conn   idb.Connection
	stream idb.StreamHandle
}

func (s *networkSource) Keys() ([]string, error) {
	return s.conn.Protocol().Keys(s.conn, s.stream)
}

func (s *networkSource) Next(ctx context.Context) (*db.Record, *db.Summary, error) {
	return s.conn.Protocol().PullNext(ctx, s.conn, s.stream)
}

// ResultCursor is a lazy, single-consumer stream of result records with a
// single-record peek buffer and a terminal summary that is materialised at
// most once. Concurrent use by multiple consumers is undefined, but peek
// and next stay atomic with respect to each other.
type ResultCursor struct {
	statement Statement
	source    recordSource

	record        *db.Record
	streamSummary *db.Summary
	err           error

	peeked        atomic.Bool
	peekedRecord  *db.Record
	peekedSummary *db.Summary

	summary ResultSummary

	// Invoked once when the stream terminates, with the summary on
	// success and nil on failure. Auto-commit transactions use it to pick
	// up the bookmark and release the connection.
	onStreamDone func(*db.Summary)
	doneCalled   bool
}

func newResultCursor(source recordSource, statement Statement, onStreamDone func(*db.Summary)) *ResultCursor {
	return &ResultCursor{
		statement:    statement,
		source:       source,
		onStreamDone: onStreamDone,
	}
}

// Keys returns the ordered column names of the result.
func (r *ResultCursor) Keys() ([]string, error) {
	return r.source.Keys()
}

// Next advances to the next record, returning false when the stream is
// exhausted or failed. Each record is returned at most once, in source
// order.
func (r *ResultCursor) Next(ctx context.Context) bool {
	if r.finished() && !r.peeked.Load() {
		r.record = nil
		return false
	}
	r.advance(ctx)
	return r.record != nil
}

// Record returns the current record, nil before the first Next and after
// exhaustion.
func (r *ResultCursor) Record() *db.Record {
	return r.record
}

// Err returns the error that caused Next to return false, nil on normal
// exhaustion.
func (r *ResultCursor) Err() error {
	return r.err
}

// HasNext reports whether another record can be obtained, peeking ahead
// when needed.
func (r *ResultCursor) HasNext(ctx context.Context) bool {
	if r.peeked.Load() {
		return r.peekedRecord != nil
	}
	if r.finished() {
		return false
	}
	r.fillPeek(ctx)
	return r.peekedRecord != nil
}

// Peek returns the next record without consuming it. The following Next
// returns the same record. Fails with NoSuchRecordError on an exhausted
// cursor.
func (r *ResultCursor) Peek(ctx context.Context) (*db.Record, error) {
	if !r.peeked.Load() {
		if r.finished() {
			return nil, db.NewNoSuchRecordEmpty()
		}
		r.fillPeek(ctx)
	}
	if r.peekedRecord == nil {
		if r.err != nil {
			return nil, r.err
		}
		return nil, db.NewNoSuchRecordEmpty()
	}
	return r.peekedRecord, nil
}

// Single returns the one and only record of the stream. Fails with
// NoSuchRecordError when the stream holds zero or more than one record; in
// the overflow case the remaining stream is drained.
func (r *ResultCursor) Single(ctx context.Context) (*db.Record, error) {
	r.advance(ctx)
	if r.err != nil {
		return nil, r.err
	}
	if r.record == nil {
		return nil, db.NewNoSuchRecordEmpty()
	}
	single := r.record

	r.advance(ctx)
	if r.record != nil {
		// More records than the caller expected, drain them so that the
		// connection is usable afterwards.
		for r.streamSummary == nil && r.err == nil {
			r.advance(ctx)
		}
		r.record = nil
		return nil, db.NewNoSuchRecordMoreThanOne()
	}
	if r.err != nil {
		return nil, r.err
	}
	r.record = single
	return single, nil
}

// Collect fetches and returns all remaining records.
func (r *ResultCursor) Collect(ctx context.Context) ([]*db.Record, error) {
	var records []*db.Record
	for r.streamSummary == nil && r.err == nil {
		r.advance(ctx)
		if r.record != nil {
			records = append(records, r.record)
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return records, nil
}

// Consume discards all remaining records and returns the summary of the
// statement execution. Idempotent, repeated calls return the identical
// summary.
func (r *ResultCursor) Consume(ctx context.Context) (ResultSummary, error) {
	if r.summary != nil {
		return r.summary, nil
	}
	for r.streamSummary == nil && r.err == nil {
		r.advance(ctx)
	}
	r.record = nil
	if r.err != nil {
		return nil, r.err
	}
	r.summary = &resultSummary{sum: r.streamSummary, statement: r.statement}
	return r.summary, nil
}

// Summary is an alias for Consume.
func (r *ResultCursor) Summary(ctx context.Context) (ResultSummary, error) {
	return r.Consume(ctx)
}

// drainFailure consumes the rest of the stream discarding records and
// returns its failure, if any. Used by the session chain and by
// commit/rollback to surface errors of not fully consumed cursors.
func (r *ResultCursor) drainFailure(ctx context.Context) error {
	for r.streamSummary == nil && r.err == nil {
		r.advance(ctx)
	}
	r.record = nil
	return r.err
}

func (r *ResultCursor) finished() bool {
	return r.streamSummary != nil || r.err != nil
}

// advance moves to the next item, serving the peek buffer first. The
// compare-and-set on the peek flag keeps a peek/next race from consuming a
// record twice.
func (r *ResultCursor) advance(ctx context.Context) {
	if r.peeked.CompareAndSwap(true, false) {
		r.record, r.peekedRecord = r.peekedRecord, nil
		if r.peekedSummary != nil {
			r.setStreamSummary(r.peekedSummary)
			r.peekedSummary = nil
		}
		return
	}
	var summary *db.Summary
	r.record, summary, r.err = r.source.Next(ctx)
	if summary != nil {
		r.setStreamSummary(summary)
	} else if r.err != nil {
		r.fireStreamDone(nil)
	}
}

func (r *ResultCursor) fillPeek(ctx context.Context) {
	if r.peeked.CompareAndSwap(false, true) {
		r.peekedRecord, r.peekedSummary, r.err = r.source.Next(ctx)
		if r.err != nil {
			r.fireStreamDone(nil)
		}
	}
}

func (r *ResultCursor) setStreamSummary(summary *db.Summary) {
	r.streamSummary = summary
	r.fireStreamDone(summary)
}

func (r *ResultCursor) fireStreamDone(summary *db.Summary) {
	if r.onStreamDone != nil && !r.doneCalled {
		r.doneCalled = true
		r.onStreamDone(summary)
	}
}
