// MIT License
//
// Copyright (c) 2023 TTBT Enterprises LLC
// Copyright (c) 2023 Robin Thellend <rthellend@rthellend.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package logging wires log.level/log.facility/log.stdio/log.syslog to
// Go's standard logger, the same level-prefixed log.Printf convention
// the rest of this module uses (INF/WRN/ERR/DBG), with an optional
// syslog destination. No third-party logging library in the retrieval
// pack addresses syslog facilities, so this one corner stays on
// log/syslog; see DESIGN.md.
package logging

import (
	"io"
	"log"
	"log/syslog"
	"os"

	"github.com/budtls/bud/ctm"
)

// Level is the minimum severity that will be printed, ordered least to
// most severe so Level >= configured threshold means "print it".
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func parseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is the leveled logger main.go logs through. The ctm package
// logs with the stdlib log package directly (ctm/ocsp.go); New sets that
// package's output, so log.stdio/log.syslog apply to those lines too,
// but log.level does not filter them.
type Logger struct {
	threshold Level
}

// New configures the process-wide stdlib logger per cfg.Log and returns
// a Logger bound to the configured threshold. It matches
// bud_config_log_open: stdio and syslog are independent sinks and either,
// both, or neither may be active.
func New(cfg ctm.LogConfig) (*Logger, error) {
	var writers []io.Writer
	if cfg.Stdio {
		writers = append(writers, os.Stderr)
	}
	if cfg.Syslog {
		w, err := syslog.New(facilityPriority(cfg.Facility), "bud")
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	switch len(writers) {
	case 0:
		log.SetOutput(io.Discard)
	case 1:
		log.SetOutput(writers[0])
	default:
		log.SetOutput(io.MultiWriter(writers...))
	}
	log.SetFlags(log.Ldate | log.Ltime)
	return &Logger{threshold: parseLevel(cfg.Level)}, nil
}

func facilityPriority(facility string) syslog.Priority {
	switch facility {
	case "daemon":
		return syslog.LOG_DAEMON
	case "local0":
		return syslog.LOG_LOCAL0
	case "local1":
		return syslog.LOG_LOCAL1
	default:
		return syslog.LOG_USER
	}
}

func (l *Logger) Debugf(format string, args ...any) {
	if l.threshold <= LevelDebug {
		log.Printf("DBG  "+format, args...)
	}
}

func (l *Logger) Infof(format string, args ...any) {
	if l.threshold <= LevelInfo {
		log.Printf("INF  "+format, args...)
	}
}

func (l *Logger) Warnf(format string, args ...any) {
	if l.threshold <= LevelWarn {
		log.Printf("WRN  "+format, args...)
	}
}

func (l *Logger) Errorf(format string, args ...any) {
	log.Printf("ERR  "+format, args...)
}

func (l *Logger) Fatalf(format string, args ...any) {
	log.Fatalf("ERR  "+format, args...)
}
