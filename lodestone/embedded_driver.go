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
	"path"
	"strings"
	"sync/atomic"

	"github.com/lodestone-db/lodestone-go-driver/lodestone/log"
)

// embeddedDriver serves sessions backed by the in-process engine opened
// from a file:// target.
type embeddedDriver struct {
	target url.URL
	runner CypherRunner
	config *Config
	logId  string
	closed atomic.Bool
}

func newEmbeddedDriver(parsed *url.URL, auth AuthToken, config *Config) (Driver, error) {
	if !auth.isNone() {
		return nil, &UsageError{Message: "Embedded connector doesn't support authentication"}
	}
	if config.Encrypted {
		return nil, &UsageError{Message: "Embedded driver starts an embedded database and cannot encrypt in-memory structures"}
	}
	storeDir, err := extractStoreDir(parsed)
	if err != nil {
		return nil, err
	}
	if config.EngineOpener == nil {
		return nil, &UsageError{Message: "No engine opener configured for embedded targets"}
	}
	runner, err := config.EngineOpener(storeDir, extractQueryParameters(parsed))
	if err != nil {
		return nil, err
	}
	d := &embeddedDriver{target: *parsed, runner: runner, config: config, logId: log.NewId()}
	config.Log.Infof(log.Driver, d.logId, "Created embedded driver for %s", storeDir)
	return d, nil
}

// extractStoreDir validates that the target path is absolute and already
// normalised and returns it.
func extractStoreDir(parsed *url.URL) (string, error) {
	if parsed.Host != "" {
		return "", &UsageError{Message: fmt.Sprintf("Embedded target must not have a host, got %q", parsed.Host)}
	}
	p := parsed.Path
	if !strings.HasPrefix(p, "/") || path.Clean(p) != p {
		return "", &UsageError{Message: "URI must be absolute"}
	}
	return p, nil
}

// extractQueryParameters parses the query string as engine settings,
// pairs without exactly one '=' are dropped.
func extractQueryParameters(parsed *url.URL) map[string]string {
	raw := strings.TrimSpace(parsed.RawQuery)
	if raw == "" {
		return map[string]string{}
	}
	parameters := make(map[string]string)
	for _, pair := range strings.Split(raw, "&") {
		parts := strings.Split(pair, "=")
		if len(parts) != 2 {
			continue
		}
		parameters[parts[0]] = parts[1]
	}
	return parameters
}

func (d *embeddedDriver) Target() url.URL {
	return d.target
}

func (d *embeddedDriver) Session(mode AccessMode, bookmarks ...string) (Session, error) {
	return d.NewSession(SessionConfig{AccessMode: mode, Bookmarks: BookmarksFrom(bookmarks...)})
}

func (d *embeddedDriver) NewSession(config SessionConfig) (Session, error) {
	if d.closed.Load() {
		return nil, errDriverClosed()
	}
	if !config.Bookmarks.IsEmpty() {
		return nil, &UsageError{Message: "Embedded sessions do not support bookmarks"}
	}
	return newEmbeddedSession(d.runner, d.config.retrySettings(), d.config.Log), nil
}

func (d *embeddedDriver) Close(context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.config.Log.Infof(log.Driver, d.logId, "Closing embedded driver")
	return d.runner.Close()
}
