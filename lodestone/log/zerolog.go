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
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Level of logging on the default logger.
type Level int

const (
	ERROR   Level = 0
	WARNING Level = 1
	INFO    Level = 2
	DEBUG   Level = 3
)

// ZeroLogger routes driver logging onto a zerolog logger, tagging every
// event with the originating component name and instance id.
type ZeroLogger struct {
	log zerolog.Logger
}

// New returns the default logger, writing human-readable output to stderr
// at the given level.
func New(level Level) *ZeroLogger {
	return NewWithOut(level, zerolog.ConsoleWriter{Out: os.Stderr})
}

// NewWithOut returns a logger at the given level writing to out.
func NewWithOut(level Level, out io.Writer) *ZeroLogger {
	zl := zerolog.New(out).With().Timestamp().Logger()
	switch level {
	case ERROR:
		zl = zl.Level(zerolog.ErrorLevel)
	case WARNING:
		zl = zl.Level(zerolog.WarnLevel)
	case INFO:
		zl = zl.Level(zerolog.InfoLevel)
	case DEBUG:
		zl = zl.Level(zerolog.DebugLevel)
	}
	return &ZeroLogger{log: zl}
}

func (l *ZeroLogger) Error(name, id string, err error) {
	l.log.Error().Str("name", name).Str("id", id).Err(err).Msg("")
}

func (l *ZeroLogger) Errorf(name, id string, msg string, args ...any) {
	l.log.Error().Str("name", name).Str("id", id).Msg(fmt.Sprintf(msg, args...))
}

func (l *ZeroLogger) Warnf(name, id string, msg string, args ...any) {
	l.log.Warn().Str("name", name).Str("id", id).Msg(fmt.Sprintf(msg, args...))
}

func (l *ZeroLogger) Infof(name, id string, msg string, args ...any) {
	l.log.Info().Str("name", name).Str("id", id).Msg(fmt.Sprintf(msg, args...))
}

func (l *ZeroLogger) Debugf(name, id string, msg string, args ...any) {
	l.log.Debug().Str("name", name).Str("id", id).Msg(fmt.Sprintf(msg, args...))
}
