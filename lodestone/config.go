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
	"fmt"
	"time"

	"github.com/lodestone-db/lodestone-go-driver/lodestone/log"
)

// Config holds the settings of a driver instance.
type Config struct {
	// Log receives the driver's logging, discarded when nil.
	Log log.Logger
	// Encrypted turns transport encryption on. Must stay off for the
	// embedded driver.
	Encrypted bool
	// MaxTransactionRetryTime is the wall-clock budget the retry
	// controller may spend on a retryable unit of work.
	MaxTransactionRetryTime time.Duration
	// InitialRetryDelay is the first backoff delay.
	InitialRetryDelay time.Duration
	// RetryDelayMultiplier grows the delay between attempts.
	RetryDelayMultiplier float64
	// RetryDelayJitter spreads each delay by +/- this factor.
	RetryDelayJitter float64
	// RoutingTablePurgeTimeout is how long a stale routing table stays in
	// the registry before being trimmed.
	RoutingTablePurgeTimeout time.Duration
	// Connector builds the connection pool for network schemes. The wire
	// transport supplies this; tests inject fakes.
	Connector ConnectorFactory
	// EngineOpener opens the in-process engine for file targets, with the
	// settings parsed from the URI query string.
	EngineOpener func(storeDir string, settings map[string]string) (CypherRunner, error)
}

func defaultConfig() *Config {
	return &Config{
		Log:                      log.Void{},
		MaxTransactionRetryTime:  30 * time.Second,
		InitialRetryDelay:        1 * time.Second,
		RetryDelayMultiplier:     2.0,
		RetryDelayJitter:         0.2,
		RoutingTablePurgeTimeout: 30 * time.Second,
	}
}

func validateConfig(config *Config) error {
	if config.MaxTransactionRetryTime < 0 {
		return &UsageError{Message: fmt.Sprintf("Maximum transaction retry time cannot be negative. Given: %s", config.MaxTransactionRetryTime)}
	}
	if config.RetryDelayMultiplier < 1.0 {
		return &UsageError{Message: fmt.Sprintf("Retry delay multiplier cannot be smaller than 1.0. Given: %g", config.RetryDelayMultiplier)}
	}
	if config.RetryDelayJitter < 0 || config.RetryDelayJitter >= 1 {
		return &UsageError{Message: fmt.Sprintf("Retry delay jitter must be in [0, 1). Given: %g", config.RetryDelayJitter)}
	}
	return nil
}

func (c *Config) retrySettings() retrySettings {
	return retrySettings{
		maxTime:      c.MaxTransactionRetryTime,
		initialDelay: c.InitialRetryDelay,
		multiplier:   c.RetryDelayMultiplier,
		jitter:       c.RetryDelayJitter,
	}
}
