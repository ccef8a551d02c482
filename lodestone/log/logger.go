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

package log

import (
	"fmt"
	"sync/atomic"
)

// Logger is used throughout the driver for logging purposes.
// Driver clients can implement this interface and provide an implementation
// upon driver creation.
//
// All logging functions take a name and an id that correspond to the name of
// the logging component and its identity, for example "session" and "7" to
// indicate who is logging and what instance.
type Logger interface {
	Error(name string, id string, err error)
	Errorf(name string, id string, msg string, args ...any)
	Warnf(name string, id string, msg string, args ...any)
	Infof(name string, id string, msg string, args ...any)
	Debugf(name string, id string, msg string, args ...any)
}

// Names of the driver components that log.
const (
	Driver   = "driver"
	Session  = "session"
	Tx       = "transaction"
	Router   = "router"
	Registry = "registry"
)

var id uint32

// NewId returns a process-unique identity for a logging component instance.
func NewId() string {
	return fmt.Sprintf("%d", atomic.AddUint32(&id, 1))
}

// Void is a logger that discards everything.
type Void struct{}

func (v Void) Error(string, string, error)         {}
func (v Void) Errorf(string, string, string, ...any) {}
func (v Void) Warnf(string, string, string, ...any)  {}
func (v Void) Infof(string, string, string, ...any)  {}
func (v Void) Debugf(string, string, string, ...any) {}
