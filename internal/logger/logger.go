// Copyright 2023 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger wraps log/slog with the five severities spec.md's ambient
// stack expects (TRACE, DEBUG, INFO, WARNING, ERROR) and, when given a
// file path, rotates through gopkg.in/natefinch/lumberjack.v2 the way the
// teacher's own internal/logger does.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/northernlights/weenix-go/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Custom slog levels, one notch apart from the stdlib's four so TRACE can
// sit below DEBUG and OFF above ERROR.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

var levelNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

type loggerFactory struct {
	file            *os.File
	sysWriter       io.Writer
	format          string
	level           string
	logRotateConfig cfg.LogRotateConfig
}

var (
	defaultLoggerFactory = &loggerFactory{
		sysWriter: os.Stderr,
		format:    "text",
		level:     string(cfg.InfoLogSeverity),
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, programLevel(cfg.InfoLogSeverity), ""))
)

func programLevel(level cfg.LogSeverity) *slog.LevelVar {
	v := new(slog.LevelVar)
	setLoggingLevel(string(level), v)
	return v
}

func setLoggingLevel(level string, v *slog.LevelVar) {
	switch level {
	case string(cfg.TraceLogSeverity):
		v.Set(LevelTrace)
	case string(cfg.DebugLogSeverity):
		v.Set(LevelDebug)
	case string(cfg.WarningLogSeverity):
		v.Set(LevelWarn)
	case string(cfg.ErrorLogSeverity):
		v.Set(LevelError)
	case string(cfg.OffLogSeverity):
		v.Set(LevelOff)
	default:
		v.Set(LevelInfo)
	}
}

// createJsonOrTextHandler returns a slog.Handler for f's configured
// format, prefixing every message with prefix (used by tests to tag
// output so assertions don't collide across suites).
func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				lvl := a.Value.Any().(slog.Level)
				name, ok := levelNames[lvl]
				if !ok {
					name = lvl.String()
				}
				return slog.String("severity", name)
			case slog.MessageKey:
				return slog.String("message", prefix+a.Value.String())
			case slog.TimeKey:
				return a
			}
			return a
		},
	}
	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return textHandler{w: w, opts: opts}
}

// textHandler renders `time="..." severity=X message="..."` lines,
// matching the teacher's own text log format rather than slog's default
// key=value ordering (time first and quoted, then severity unquoted, then
// message last and quoted).
type textHandler struct {
	w    io.Writer
	opts *slog.HandlerOptions
}

func (h textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.(*slog.LevelVar).Level()
}

func (h textHandler) Handle(ctx context.Context, r slog.Record) error {
	sevAttr := slog.Any(slog.LevelKey, r.Level)
	if h.opts.ReplaceAttr != nil {
		sevAttr = h.opts.ReplaceAttr(nil, sevAttr)
	}
	msgAttr := slog.String(slog.MessageKey, r.Message)
	if h.opts.ReplaceAttr != nil {
		msgAttr = h.opts.ReplaceAttr(nil, msgAttr)
	}
	_, err := fmt.Fprintf(h.w, "time=%q severity=%s message=%q\n",
		r.Time.Format("2006/01/02 15:04:05.000000"), sevAttr.Value.String(), msgAttr.Value.String())
	return err
}

func (h textHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h textHandler) WithGroup(name string) slog.Handler       { return h }

// SetLogFormat switches the default logger's output format ("text" or
// "json"; anything other than "json" is treated as "text") without
// touching its destination or level.
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format
	v := programLevel(cfg.LogSeverity(defaultLoggerFactory.level))
	dest := io.Writer(os.Stderr)
	if defaultLoggerFactory.sysWriter != nil {
		dest = defaultLoggerFactory.sysWriter
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(dest, v, ""))
}

// InitLogFile points the default logger at a rotated file, per cfg's
// LoggingConfig. An empty FilePath leaves stderr as the destination.
func InitLogFile(conf cfg.LoggingConfig) error {
	factory := &loggerFactory{
		format:          conf.Format,
		level:           string(conf.Severity),
		logRotateConfig: conf.LogRotate,
	}

	var dest io.Writer = os.Stderr
	if conf.FilePath != "" {
		lj := &lumberjack.Logger{
			Filename:   conf.FilePath,
			MaxSize:    conf.LogRotate.MaxFileSizeMb,
			MaxBackups: conf.LogRotate.BackupFileCount,
			Compress:   conf.LogRotate.Compress,
		}
		dest = NewAsyncLogger(lj, 1024)
		f, err := os.OpenFile(conf.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("logger: opening log file: %w", err)
		}
		factory.file = f
	} else {
		factory.sysWriter = os.Stderr
	}

	defaultLoggerFactory = factory
	v := programLevel(conf.Severity)
	defaultLogger = slog.New(factory.createJsonOrTextHandler(dest, v, ""))
	return nil
}

func Tracef(format string, args ...any) { defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, args...)) }
func Debugf(format string, args ...any) { defaultLogger.Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)  { defaultLogger.Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { defaultLogger.Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { defaultLogger.Error(fmt.Sprintf(format, args...)) }
