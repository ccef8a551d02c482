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
	"time"

	"github.com/lodestone-db/lodestone-go-driver/lodestone/db"
)

// CypherRunner is the facade of the embedded in-process engine. It keeps
// the engine API from leaking all over the embedded session and
// transaction types.
type CypherRunner interface {
	// Execute runs the query inside the engine's current transaction
	// scope and returns an iterator over its records.
	Execute(query string, params map[string]any) (EngineResult, error)
	// BeginTx opens an engine transaction. A zero timeout means the
	// engine's default.
	BeginTx(timeout time.Duration) (EngineTx, error)
	// Close shuts the engine down.
	Close() error
}

// EngineTx is an in-process engine transaction handle.
type EngineTx interface {
	Commit() error
	Rollback() error
}

// EngineResult is the record iterator an engine execution returns.
type EngineResult interface {
	Keys() []string
	// Next returns the next row and whether one was produced.
	Next() ([]any, bool)
	// Err returns the failure that stopped iteration, if any.
	Err() error
	Close() error
}

// embeddedSource adapts an EngineResult to the cursor's record source.
// The engine reports no execution statistics, the terminal summary is
// empty.
type embeddedSource struct {
	result EngineResult
}

func (s *embeddedSource) Keys() ([]string, error) {
	return s.result.Keys(), nil
}

func (s *embeddedSource) Next(_ context.Context) (*db.Record, *db.Summary, error) {
	values, ok := s.result.Next()
	if ok {
		return &db.Record{Keys: s.result.Keys(), Values: values}, nil, nil
	}
	if err := s.result.Err(); err != nil {
		return nil, nil, err
	}
	if err := s.result.Close(); err != nil {
		return nil, nil, err
	}
	return nil, &db.Summary{StmntType: db.StatementTypeUnknown}, nil
}
