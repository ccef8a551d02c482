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
)

// TransactionConfig holds the settings for explicit and auto-commit
// transactions.
type TransactionConfig struct {
	// Timeout is forwarded to the server as milliseconds. Zero means the
	// server's default.
	Timeout time.Duration
	// Metadata is forwarded to the server verbatim and becomes visible in
	// its transaction listings.
	Metadata map[string]any
}

// WithTxTimeout returns a transaction configurer that applies a timeout.
func WithTxTimeout(timeout time.Duration) func(*TransactionConfig) {
	return func(config *TransactionConfig) {
		config.Timeout = timeout
	}
}

// WithTxMetadata returns a transaction configurer that attaches metadata.
func WithTxMetadata(metadata map[string]any) func(*TransactionConfig) {
	return func(config *TransactionConfig) {
		config.Metadata = metadata
	}
}

func buildTransactionConfig(configurers []func(*TransactionConfig)) (TransactionConfig, error) {
	config := TransactionConfig{}
	for _, configurer := range configurers {
		configurer(&config)
	}
	if config.Timeout < 0 {
		return config, &UsageError{
			Message: fmt.Sprintf("Negative transaction timeouts are not allowed. Given: %s", config.Timeout),
		}
	}
	return config, nil
}
