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

// Package retry drives a unit of work until it succeeds or the wall-clock
// retry budget runs out. Only failures the classifier accepts are retried;
// everything else surfaces immediately.
package retry

import (
	"time"

	"github.com/lodestone-db/lodestone-go-driver/lodestone/db"
	"github.com/lodestone-db/lodestone-go-driver/lodestone/log"
)

// State keeps track of retries for a unit of work. Zero values of Err and
// IsRetryable mean the last attempt succeeded.
//
// The blocking Continue loop must run on a caller goroutine, never on one
// that progresses connection I/O: the sleep would stall the very reads the
// next attempt waits for.
type State struct {
	Err          error
	IsRetryable  bool
	MaxRetryTime time.Duration
	Log          log.Logger
	LogName      string
	LogId        string
	Now          func() time.Time
	Sleep        func(time.Duration)
	Throttle     Throttler
	// Classifier for retryable failures, db.IsRetryable unless overridden.
	Classify func(error) bool

	start     time.Time
	cause     string
	skipSleep bool
	errs      []error
}

func (s *State) classify(err error) bool {
	if s.Classify != nil {
		return s.Classify(err)
	}
	return db.IsRetryable(err)
}

// OnFailure records the outcome of a failed attempt. Failures during
// commit are never retried on a dead connection, the transaction outcome
// is unknown.
func (s *State) OnFailure(err error, connIsAlive bool, isCommitting bool) {
	s.Err = err
	s.IsRetryable = false
	s.cause = ""
	s.skipSleep = false
	s.errs = append(s.errs, err)

	if s.start.IsZero() {
		s.start = s.Now()
	}
	if s.Now().Sub(s.start) > s.MaxRetryTime {
		s.cause = "Timeout"
		return
	}

	if !connIsAlive {
		if isCommitting {
			s.cause = "Connection lost during commit"
			return
		}
		s.IsRetryable = true
		s.cause = "Connection lost"
		s.skipSleep = true
		return
	}

	if s.classify(err) {
		s.IsRetryable = true
		s.cause = "Retryable error"
	}
}

// Continue reports whether another attempt should be made, sleeping
// through the backoff delay first when the previous failure calls for it.
func (s *State) Continue() bool {
	if s.Err == nil {
		return true
	}

	if !s.IsRetryable {
		if s.cause != "" {
			s.Log.Errorf(s.LogName, s.LogId, "Transaction failed (%s): %s", s.cause, s.Err)
		}
		return false
	}

	if s.skipSleep {
		s.Log.Debugf(s.LogName, s.LogId, "Retrying transaction (%s): %s", s.cause, s.Err)
	} else {
		// Sleep on the current delay, grow it for the next round.
		sleepTime := s.Throttle.sleepTime()
		s.Log.Debugf(s.LogName, s.LogId, "Retrying transaction (%s): %s [after %s]", s.cause, s.Err, sleepTime)
		s.Sleep(sleepTime)
		s.Throttle = s.Throttle.next()
	}

	s.Err = nil
	s.IsRetryable = false
	return true
}

// ProduceError returns the last failure with all preceding retried
// failures recorded in its chain.
func (s *State) ProduceError() error {
	if len(s.errs) == 0 {
		return s.Err
	}
	// Last error is primary, earlier retried failures are suppressed.
	result := s.errs[len(s.errs)-1]
	for i := len(s.errs) - 2; i >= 0; i-- {
		result = db.CombineErrors(result, s.errs[i])
	}
	return result
}
