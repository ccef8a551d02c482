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
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	idb "github.com/lodestone-db/lodestone-go-driver/lodestone/internal/db"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/internal/router"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/log"
)

// Supported URI schemes, matched lowercase.
const (
	directScheme   = "bolt"
	routingScheme  = "bolt+routing"
	embeddedScheme = "file"
)

// Driver is the entry point to a Lodestone database, a factory of
// sessions. Safe for concurrent use.
type Driver interface {
	// Target returns the URI this driver was created for.
	Target() url.URL
	// Session creates a session with the given access mode, continuing
	// from the given bookmarks.
	Session(mode AccessMode, bookmarks ...string) (Session, error)
	// NewSession creates a session from a full session config.
	NewSession(config SessionConfig) (Session, error)
	// Close shuts the driver and its connection pool down. Idempotent.
	Close(ctx context.Context) error
}

// NewDriver dispatches on the target's URI scheme to a direct, routing or
// embedded driver variant.
func NewDriver(target string, auth AuthToken, configurers ...func(*Config)) (Driver, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, &UsageError{Message: fmt.Sprintf("Invalid target URI %q: %s", target, err)}
	}

	config := defaultConfig()
	for _, configurer := range configurers {
		configurer(config)
	}
	if config.Log == nil {
		config.Log = log.Void{}
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	switch strings.ToLower(parsed.Scheme) {
	case directScheme:
		return newDirectDriver(parsed, auth, config)
	case routingScheme:
		return newRoutingDriver(parsed, auth, config)
	case embeddedScheme:
		return newEmbeddedDriver(parsed, auth, config)
	}
	return nil, &UsageError{Message: fmt.Sprintf("URI scheme %q is not supported", parsed.Scheme)}
}

func connectorFor(parsed *url.URL, auth AuthToken, config *Config) (Address, idb.ConnectionProvider, error) {
	address, err := ParseAddress(parsed.Host)
	if err != nil {
		return Address{}, nil, err
	}
	if config.Connector == nil {
		return Address{}, nil, &UsageError{Message: "No connector configured for network targets"}
	}
	provider, err := config.Connector(address, auth, config.Encrypted, config.Log)
	if err != nil {
		return Address{}, nil, err
	}
	return address, provider, nil
}

// directDriver runs all sessions against the single configured server.
type directDriver struct {
	target   url.URL
	provider idb.ConnectionProvider
	config   *Config
	logId    string
	closed   atomic.Bool
}

func newDirectDriver(parsed *url.URL, auth AuthToken, config *Config) (Driver, error) {
	if parsed.RawQuery != "" {
		return nil, &UsageError{Message: "Routing context is not supported for direct connections"}
	}
	_, provider, err := connectorFor(parsed, auth, config)
	if err != nil {
		return nil, err
	}
	d := &directDriver{target: *parsed, provider: provider, config: config, logId: log.NewId()}
	config.Log.Infof(log.Driver, d.logId, "Created direct driver for %s", parsed.Host)
	return d, nil
}

func (d *directDriver) Target() url.URL {
	return d.target
}

func (d *directDriver) Session(mode AccessMode, bookmarks ...string) (Session, error) {
	return d.NewSession(SessionConfig{AccessMode: mode, Bookmarks: BookmarksFrom(bookmarks...)})
}

func (d *directDriver) NewSession(config SessionConfig) (Session, error) {
	if d.closed.Load() {
		return nil, errDriverClosed()
	}
	return newNetworkSession(d.provider, config, d.config.retrySettings(), d.config.Log), nil
}

func (d *directDriver) Close(ctx context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.config.Log.Infof(log.Driver, d.logId, "Closing direct driver")
	return d.provider.Close(ctx)
}

// routingDriver keeps a routing table registry shared by all its sessions
// and hands every session a routing-aware connection provider.
type routingDriver struct {
	target   url.URL
	pool     idb.ConnectionProvider
	registry *router.Registry
	config   *Config
	logId    string
	closed   atomic.Bool
}

func newRoutingDriver(parsed *url.URL, auth AuthToken, config *Config) (Driver, error) {
	address, pool, err := connectorFor(parsed, auth, config)
	if err != nil {
		return nil, err
	}
	logId := log.NewId()
	rediscovery := router.NewRediscovery(address.String(), config.Log, logId)
	registry := router.NewRegistry(
		rediscovery, pool, []string{address.String()}, config.RoutingTablePurgeTimeout, time.Now, config.Log)
	d := &routingDriver{
		target:   *parsed,
		pool:     pool,
		registry: registry,
		config:   config,
		logId:    logId,
	}
	config.Log.Infof(log.Driver, d.logId, "Created routing driver for %s", parsed.Host)
	return d, nil
}

func (d *routingDriver) Target() url.URL {
	return d.target
}

func (d *routingDriver) Session(mode AccessMode, bookmarks ...string) (Session, error) {
	return d.NewSession(SessionConfig{AccessMode: mode, Bookmarks: BookmarksFrom(bookmarks...)})
}

func (d *routingDriver) NewSession(config SessionConfig) (Session, error) {
	if d.closed.Load() {
		return nil, errDriverClosed()
	}
	provider := router.NewProvider(d.pool, d.registry, config.DatabaseName, d.config.Log)
	return newNetworkSession(provider, config, d.config.retrySettings(), d.config.Log), nil
}

func (d *routingDriver) Close(ctx context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.config.Log.Infof(log.Driver, d.logId, "Closing routing driver")
	return d.pool.Close(ctx)
}

func errDriverClosed() error {
	return &UsageError{Message: "Driver is already closed"}
}
