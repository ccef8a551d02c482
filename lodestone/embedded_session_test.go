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
	"time"

	"github.com/lodestone-db/lodestone-go-driver/lodestone/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// engineFake is an in-memory CypherRunner with scripted results.
type engineFake struct {
	keys       []string
	rows       [][]any
	executeErr error
	beginErr   error

	executions []string
	txs        []*engineTxFake
	closed     bool
}

type engineTxFake struct {
	commits   int
	rollbacks int
}

func (tx *engineTxFake) Commit() error   { tx.commits++; return nil }
func (tx *engineTxFake) Rollback() error { tx.rollbacks++; return nil }

type engineResultFake struct {
	keys []string
	rows [][]any
	pos  int
}

func (r *engineResultFake) Keys() []string { return r.keys }

func (r *engineResultFake) Next() ([]any, bool) {
	if r.pos >= len(r.rows) {
		return nil, false
	}
	row := r.rows[r.pos]
	r.pos++
	return row, true
}

func (r *engineResultFake) Err() error   { return nil }
func (r *engineResultFake) Close() error { return nil }

func (e *engineFake) Execute(query string, _ map[string]any) (EngineResult, error) {
	e.executions = append(e.executions, query)
	if e.executeErr != nil {
		return nil, e.executeErr
	}
	return &engineResultFake{keys: e.keys, rows: e.rows}, nil
}

func (e *engineFake) BeginTx(time.Duration) (EngineTx, error) {
	if e.beginErr != nil {
		return nil, e.beginErr
	}
	tx := &engineTxFake{}
	e.txs = append(e.txs, tx)
	return tx, nil
}

func (e *engineFake) Close() error {
	e.closed = true
	return nil
}

func newEngineSession(engine *engineFake) *embeddedSession {
	return newEmbeddedSession(engine, testRetry, log.Void{})
}

func TestEmbeddedSession(outer *testing.T) {
	outer.Parallel()
	ctx := context.Background()

	outer.Run("auto-commit run commits once consumed", func(t *testing.T) {
		engine := &engineFake{keys: []string{"n"}, rows: [][]any{{int64(1)}}}
		session := newEngineSession(engine)

		cursor, err := session.Run(ctx, "RETURN 1 AS n", nil)
		require.NoError(t, err)
		record, err := cursor.Single(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), record.Values[0])

		require.Len(t, engine.txs, 1)
		assert.Equal(t, 1, engine.txs[0].commits)
		assert.Equal(t, 0, engine.txs[0].rollbacks)
	})

	outer.Run("failed execute rolls the auto-commit transaction back", func(t *testing.T) {
		engine := &engineFake{executeErr: errors.New("syntax error")}
		session := newEngineSession(engine)

		_, err := session.Run(ctx, "RETRUN 1", nil)
		require.Error(t, err)
		require.Len(t, engine.txs, 1)
		assert.Equal(t, 0, engine.txs[0].commits)
		assert.Equal(t, 1, engine.txs[0].rollbacks)
	})

	outer.Run("explicit transaction commits and clears the slot", func(t *testing.T) {
		engine := &engineFake{keys: []string{"n"}, rows: [][]any{{int64(1)}}}
		session := newEngineSession(engine)

		tx, err := session.BeginTransaction(ctx)
		require.NoError(t, err)
		cursor, err := tx.Run(ctx, "RETURN 1 AS n", nil)
		require.NoError(t, err)
		_, err = cursor.Collect(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))

		assert.Equal(t, 1, engine.txs[0].commits)
		// The slot is free again.
		_, err = session.Run(ctx, "RETURN 1", nil)
		assert.NoError(t, err)
	})

	outer.Run("second transaction while one is open is rejected", func(t *testing.T) {
		engine := &engineFake{}
		session := newEngineSession(engine)
		_, err := session.BeginTransaction(ctx)
		require.NoError(t, err)
		_, err = session.BeginTransaction(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open transaction")
		_, err = session.Run(ctx, "RETURN 1", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open transaction")
	})

	outer.Run("reset terminates the open transaction", func(t *testing.T) {
		engine := &engineFake{}
		session := newEngineSession(engine)
		tx, err := session.BeginTransaction(ctx)
		require.NoError(t, err)
		require.NoError(t, session.Reset(ctx))
		err = tx.Commit(ctx)
		require.Error(t, err)
		assert.IsType(t, &UsageError{}, err)
		// A terminated transaction can still be rolled back.
		require.NoError(t, tx.Rollback(ctx))
	})

	outer.Run("transaction functions run under retry", func(t *testing.T) {
		engine := &engineFake{keys: []string{"n"}, rows: [][]any{{int64(7)}}}
		session := newEngineSession(engine)
		attempts := 0
		result, err := session.WriteTransaction(ctx, func(tx Transaction) (any, error) {
			attempts++
			if attempts == 1 {
				return nil, &SessionExpiredError{Message: "engine busy"}
			}
			cursor, err := tx.Run(ctx, "RETURN 7 AS n", nil)
			if err != nil {
				return nil, err
			}
			record, err := cursor.Single(ctx)
			if err != nil {
				return nil, err
			}
			return record.Values[0], nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(7), result)
		assert.Equal(t, 2, attempts)
	})

	outer.Run("async variants are unsupported", func(t *testing.T) {
		engine := &engineFake{}
		session := newEngineSession(engine)

		_, err := session.RunAsync(ctx, "RETURN 1", nil).Get()
		assert.IsType(t, &UnsupportedOperationError{}, err)
		_, err = session.BeginTransactionAsync(ctx).Get()
		assert.IsType(t, &UnsupportedOperationError{}, err)
		_, err = session.ReadTransactionAsync(ctx, func(Transaction) (any, error) { return nil, nil }).Get()
		assert.IsType(t, &UnsupportedOperationError{}, err)
	})

	outer.Run("no bookmark support", func(t *testing.T) {
		engine := &engineFake{}
		session := newEngineSession(engine)
		assert.Equal(t, "", session.LastBookmark())
		assert.True(t, session.Bookmarks().IsEmpty())
	})

	outer.Run("close rolls back the open transaction", func(t *testing.T) {
		engine := &engineFake{}
		session := newEngineSession(engine)
		_, err := session.BeginTransaction(ctx)
		require.NoError(t, err)
		require.NoError(t, session.Close(ctx))
		assert.Equal(t, 1, engine.txs[0].rollbacks)
		assert.False(t, session.IsOpen())
		require.NoError(t, session.Close(ctx))
	})
}

func TestEmbeddedDriver(outer *testing.T) {
	outer.Parallel()

	opener := func(engine *engineFake) func(string, map[string]string) (CypherRunner, error) {
		return func(storeDir string, settings map[string]string) (CypherRunner, error) {
			return engine, nil
		}
	}

	outer.Run("file scheme creates an embedded driver", func(t *testing.T) {
		engine := &engineFake{}
		driver, err := NewDriver("file:///data/graph.db", NoAuth(), func(c *Config) {
			c.EngineOpener = opener(engine)
		})
		require.NoError(t, err)
		assert.IsType(t, &embeddedDriver{}, driver)
		require.NoError(t, driver.Close(context.Background()))
		assert.True(t, engine.closed)
	})

	outer.Run("query parameters become engine settings", func(t *testing.T) {
		var captured map[string]string
		_, err := NewDriver("file:///data/graph.db?pagecache=1G&malformed&other=x", NoAuth(), func(c *Config) {
			c.EngineOpener = func(storeDir string, settings map[string]string) (CypherRunner, error) {
				captured = settings
				return &engineFake{}, nil
			}
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"pagecache": "1G", "other": "x"}, captured)
	})

	outer.Run("relative or unnormalised paths are rejected", func(t *testing.T) {
		for _, target := range []string{"file:///data/../graph.db", "file:///data/graph.db/"} {
			_, err := NewDriver(target, NoAuth(), func(c *Config) {
				c.EngineOpener = opener(&engineFake{})
			})
			require.Error(t, err, target)
			assert.IsType(t, &UsageError{}, err)
		}
	})

	outer.Run("authentication is rejected", func(t *testing.T) {
		_, err := NewDriver("file:///data/graph.db", BasicAuth("user", "secret", ""), func(c *Config) {
			c.EngineOpener = opener(&engineFake{})
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "authentication")
	})

	outer.Run("encryption is rejected", func(t *testing.T) {
		_, err := NewDriver("file:///data/graph.db", NoAuth(), func(c *Config) {
			c.EngineOpener = opener(&engineFake{})
			c.Encrypted = true
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "encrypt")
	})

	outer.Run("bookmarks on embedded sessions are rejected", func(t *testing.T) {
		driver, err := NewDriver("file:///data/graph.db", NoAuth(), func(c *Config) {
			c.EngineOpener = opener(&engineFake{})
		})
		require.NoError(t, err)
		_, err = driver.Session(AccessModeWrite, "bm:1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bookmarks")
	})
}
