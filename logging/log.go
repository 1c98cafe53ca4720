// Copyright 2015 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Changes from original
// - No more use of kingpin
// - No more Error Log writer
// - Extracted output setting from NewLogger
// - Added support for function name as an addition
// - Added support for WithFields
// - General refactoring
// - Added Testing
// - No general log which is not created by NewLogger
// - Added some base
// - Level parsing for the node configuration

// Package logging is the node's structured logger. Loggers carry fields
// (root, account, hash) and stamp each entry with its call site.
package logging

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level refers to the log logging level
type Level uint32

const (
	// Panic logs and then panics
	Panic Level = iota
	// Fatal logs and then exits
	Fatal
	// Error is for failures that need an operator
	Error
	// Warn is for dropped or rejected input
	Warn
	// Info is for election and node lifecycle
	Info
	// Debug traces every vote and block
	Debug
)

const stackPrefix = "[Stack]"

var (
	baseLogger Logger
	once       sync.Once
)

// Init needs to be called to ensure our logging has been initialized
func Init() {
	once.Do(func() {
		// stderr, warnings and above, until the daemon reads its config
		baseLogger = NewLogger()
		baseLogger.SetLevel(Warn)
	})
}

func init() {
	Init()
}

// Fields maps logrus fields
type Fields = logrus.Fields

// Logger is the interface for loggers.
type Logger interface {
	Info(...interface{})
	Warn(...interface{})

	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	// Errorf also logs the current stack
	Errorf(string, ...interface{})
	Panicf(string, ...interface{})

	// With adds one key-value to every entry
	With(key string, value interface{}) Logger
	WithFields(Fields) Logger

	SetLevel(Level)
	GetLevel() Level
	IsLevelEnabled(level Level) bool

	SetOutput(io.Writer)
	SetJSONFormatter()
	AddHook(hook logrus.Hook)
}

type logger struct {
	entry *logrus.Entry
}

func (l logger) With(key string, value interface{}) Logger {
	return logger{l.entry.WithField(key, value)}
}

func (l logger) WithFields(fields Fields) Logger {
	return logger{l.entry.WithFields(fields)}
}

func (l logger) Info(args ...interface{}) {
	l.source().Info(args...)
}

func (l logger) Warn(args ...interface{}) {
	l.source().Warn(args...)
}

func (l logger) Debugf(format string, args ...interface{}) {
	if !l.IsLevelEnabled(Debug) {
		return
	}
	l.source().Debugf(format, args...)
}

func (l logger) Infof(format string, args ...interface{}) {
	l.source().Infof(format, args...)
}

func (l logger) Warnf(format string, args ...interface{}) {
	l.source().Warnf(format, args...)
}

func (l logger) Errorf(format string, args ...interface{}) {
	e := l.source()
	e.Errorln(stackPrefix, string(debug.Stack()))
	e.Errorf(format, args...)
}

func (l logger) Panicf(format string, args ...interface{}) {
	e := l.source()
	e.Errorln(stackPrefix, string(debug.Stack()))
	e.Panicf(format, args...)
}

func (l logger) SetLevel(lvl Level) {
	l.entry.Logger.SetLevel(logrus.Level(lvl))
}

func (l logger) GetLevel() Level {
	return Level(l.entry.Logger.GetLevel())
}

func (l logger) IsLevelEnabled(level Level) bool {
	return l.entry.Logger.IsLevelEnabled(logrus.Level(level))
}

func (l logger) SetOutput(w io.Writer) {
	l.entry.Logger.SetOutput(w)
}

func (l logger) SetJSONFormatter() {
	l.entry.Logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000000Z07:00"})
}

func (l logger) AddHook(hook logrus.Hook) {
	l.entry.Logger.AddHook(hook)
}

// source adds the caller's file, line and function. It must be called
// directly from a logger method.
func (l logger) source() *logrus.Entry {
	pc, file, line, ok := runtime.Caller(2)
	if !ok {
		return l.entry
	}
	fields := logrus.Fields{
		"file": file[strings.LastIndex(file, "/")+1:],
		"line": line,
	}
	if function := runtime.FuncForPC(pc); function != nil {
		fields["function"] = function.Name()
	}
	return l.entry.WithFields(fields)
}

// Base returns the process-wide logger
func Base() Logger {
	return baseLogger
}

// NewLogger returns a new Logger writing to stderr at Info.
func NewLogger() Logger {
	l := logrus.New()
	if tf, ok := l.Formatter.(*logrus.TextFormatter); ok {
		tf.TimestampFormat = "2006-01-02T15:04:05.000000 -0700"
	}
	return logger{logrus.NewEntry(l)}
}

// ParseLevel maps a level name ("debug", "info", ...) or its numeric form
// onto a Level.
func ParseLevel(s string) (Level, error) {
	lvl, err := logrus.ParseLevel(s)
	if err == nil {
		return Level(lvl), nil
	}
	var n uint32
	if _, scanErr := fmt.Sscanf(s, "%d", &n); scanErr == nil && n <= uint32(Debug) {
		return Level(n), nil
	}
	return Warn, fmt.Errorf("unknown log level %q", s)
}
