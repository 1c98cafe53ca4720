// Copyright (C) 2019-2025 Algorand, Inc.
// This file is part of go-blocklattice
//
// go-blocklattice is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-blocklattice is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-blocklattice.  If not, see <https://www.gnu.org/licenses/>.

package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// TestLogWriter forwards log output to a testing.TB
type TestLogWriter struct {
	testing.TB
}

// Write is part of io.Writer
func (tb TestLogWriter) Write(p []byte) (n int, err error) {
	tb.Helper()
	tb.Log(string(p))
	return len(p), nil
}

// TestingLog is a test-only convenience function to configure logging for testing
func TestingLog(tb testing.TB) Logger {
	l := NewLogger()
	l.SetLevel(Debug)
	l.SetOutput(TestLogWriter{tb})
	return l
}

// CaptureHook records every entry logged through the logger it is added to.
type CaptureHook struct {
	Entries []*logrus.Entry
}

// Levels is part of logrus.Hook
func (h *CaptureHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire is part of logrus.Hook
func (h *CaptureHook) Fire(e *logrus.Entry) error {
	h.Entries = append(h.Entries, e)
	return nil
}
