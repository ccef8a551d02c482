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

// Package testutil contains fakes of the capabilities the core consumes.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/lodestone-db/lodestone-go-driver/lodestone/db"
	idb "github.com/lodestone-db/lodestone-go-driver/lodestone/internal/db"
)

// StreamFake replays a fixed set of records followed by a summary or an
// error. The fake itself is used as the opaque stream handle.
type StreamFake struct {
	Keys    []string
	Records []*db.Record
	Sum     *db.Summary
	Err     error
	pos     int
}

func (s *StreamFake) next() (*db.Record, *db.Summary, error) {
	if s.pos < len(s.Records) {
		record := s.Records[s.pos]
		s.pos++
		return record, nil, nil
	}
	if s.Err != nil {
		return nil, nil, s.Err
	}
	if s.Sum == nil {
		s.Sum = &db.Summary{}
	}
	return nil, s.Sum, nil
}

// ConnFake implements both the connection and its protocol capability.
type ConnFake struct {
	Name  string
	Alive bool

	TxBeginHandle idb.TxHandle
	TxBeginErr    error
	TxBeginCalls  []idb.TxConfig

	RunStream *StreamFake
	RunErr    error
	RunCalls  []idb.Command

	RunTxStream *StreamFake
	RunTxErr    error
	RunTxCalls  []idb.Command

	CommitBookmark string
	CommitErr      error
	CommitCalls    int

	RollbackErr   error
	RollbackCalls int

	ResetCalls   int
	ReleaseCalls int

	TerminateReasons []string

	Table    *db.ClusterComposition
	TableErr error

	mut sync.Mutex
}

func NewConnFake() *ConnFake {
	return &ConnFake{Name: "server:7687", Alive: true, TxBeginHandle: 1}
}

func (c *ConnFake) Protocol() idb.Protocol { return c }

func (c *ConnFake) IsOpen() bool { return c.Alive }

func (c *ConnFake) Reset(context.Context) error {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.ResetCalls++
	return nil
}

func (c *ConnFake) Release(context.Context) error {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.ReleaseCalls++
	c.Alive = false
	return nil
}

func (c *ConnFake) TerminateAndRelease(reason string) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.TerminateReasons = append(c.TerminateReasons, reason)
	c.Alive = false
}

func (c *ConnFake) ServerAddress() string { return c.Name }

func (c *ConnFake) GetRoutingTable(context.Context, string) (*db.ClusterComposition, error) {
	if c.TableErr != nil {
		return nil, c.TableErr
	}
	return c.Table, nil
}

func (c *ConnFake) BeginTransaction(_ context.Context, _ idb.Connection, _ []string, config idb.TxConfig) (idb.TxHandle, error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.TxBeginCalls = append(c.TxBeginCalls, config)
	if c.TxBeginErr != nil {
		return 0, c.TxBeginErr
	}
	return c.TxBeginHandle, nil
}

func (c *ConnFake) RunInAutoCommitTransaction(_ context.Context, _ idb.Connection, cmd idb.Command, _ []string, _ idb.TxConfig, _ bool) (idb.StreamHandle, error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.RunCalls = append(c.RunCalls, cmd)
	if c.RunErr != nil {
		return nil, c.RunErr
	}
	return c.RunStream, nil
}

func (c *ConnFake) RunInExplicitTransaction(_ context.Context, _ idb.Connection, cmd idb.Command, _ idb.TxHandle, _ bool) (idb.StreamHandle, error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.RunTxCalls = append(c.RunTxCalls, cmd)
	if c.RunTxErr != nil {
		return nil, c.RunTxErr
	}
	return c.RunTxStream, nil
}

func (c *ConnFake) Keys(_ idb.Connection, stream idb.StreamHandle) ([]string, error) {
	return stream.(*StreamFake).Keys, nil
}

func (c *ConnFake) PullNext(_ context.Context, _ idb.Connection, stream idb.StreamHandle) (*db.Record, *db.Summary, error) {
	return stream.(*StreamFake).next()
}

func (c *ConnFake) CommitTransaction(context.Context, idb.Connection, idb.TxHandle) (string, error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.CommitCalls++
	if c.CommitErr != nil {
		return "", c.CommitErr
	}
	return c.CommitBookmark, nil
}

func (c *ConnFake) RollbackTransaction(context.Context, idb.Connection, idb.TxHandle) error {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.RollbackCalls++
	return c.RollbackErr
}

// ProviderFake hands out connections from hooks and records pruning.
type ProviderFake struct {
	AcquireFn        func(mode db.AccessMode) (idb.Connection, error)
	AcquireAddressFn func(address string) (idb.Connection, error)

	AcquireCalls atomic.Int32
	RetainCalls  [][]string
	CloseCalls   int
	mut          sync.Mutex
}

func (p *ProviderFake) Acquire(_ context.Context, mode db.AccessMode) (idb.Connection, error) {
	p.AcquireCalls.Add(1)
	return p.AcquireFn(mode)
}

func (p *ProviderFake) AcquireAddress(_ context.Context, address string) (idb.Connection, error) {
	if p.AcquireAddressFn == nil {
		return p.AcquireFn(db.WriteMode)
	}
	return p.AcquireAddressFn(address)
}

func (p *ProviderFake) RetainAll(_ context.Context, addresses []string) error {
	p.mut.Lock()
	defer p.mut.Unlock()
	p.RetainCalls = append(p.RetainCalls, addresses)
	return nil
}

func (p *ProviderFake) Close(context.Context) error {
	p.mut.Lock()
	defer p.mut.Unlock()
	p.CloseCalls++
	return nil
}

// SingleConnProvider always hands out the same connection.
func SingleConnProvider(conn *ConnFake) *ProviderFake {
	return &ProviderFake{AcquireFn: func(db.AccessMode) (idb.Connection, error) {
		return conn, nil
	}}
}
