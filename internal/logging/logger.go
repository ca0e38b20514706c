// Package logging provides the leveled, structured logger used across jiotty.
//
// Initialize once at startup, then obtain named loggers per package:
//
//	logging.Initialize("info", map[string]string{"lifecycle": "debug"})
//	logger := logging.GetLogger("lifecycle")
//	logger.Info("Starting component %s", name)
//
// Structured fields are attached either per call or persistently:
//
//	logger.InfoWithFields("cycle finished",
//	    logging.Field("cycle", n),
//	    logging.Field("duration_ms", elapsed.Milliseconds()),
//	)
//	cycleLogger := logger.WithField("cycle_id", id)
//
// Loggers carrying a context (WithContext) add the OpenTelemetry trace_id and
// span_id of the active span to every line.
//
// Per-package levels accept exact names ("lifecycle") and wildcard patterns
// ("integration.*"). Unconfigured packages use the default level.
//
// DEBUG, INFO and WARN lines go to stdout; ERROR and FATAL go to stderr.
// Set LOG_TIMESTAMP to pin the timestamp in tests.
//
// Logger values are immutable and safe for concurrent use.
package logging

import (
	"context"
	"os"
	"sync"
)

var (
	globalLogger *Logger
	initOnce     sync.Once
	// exitFunc is called by Fatal. Tests replace it.
	exitFunc = os.Exit
)

// Initialize sets the default level and optional per-package overrides.
// Unknown default levels fall back to INFO.
func Initialize(levelStr string, packageLevels ...map[string]string) error {
	level, err := parseLevel(levelStr)
	if err != nil {
		level = INFO
	}

	globalLogger = &Logger{
		level: level,
		name:  "jiotty",
	}

	if len(packageLevels) > 0 && packageLevels[0] != nil {
		if err := SetPackageLogLevels(packageLevels[0]); err != nil {
			return err
		}
	}
	return nil
}

// GetLogger returns a logger for the named package or component.
func GetLogger(name string) *Logger {
	initOnce.Do(func() {
		if globalLogger == nil {
			_ = Initialize("info")
		}
	})
	return &Logger{
		level:  globalLogger.level,
		name:   name,
		fields: map[string]interface{}{},
	}
}

// Logger writes leveled lines tagged with a name and optional fields.
type Logger struct {
	level  LogLevel
	name   string
	fields map[string]interface{}
	ctx    context.Context
}

// Name returns the logger's name.
func (l *Logger) Name() string {
	return l.name
}

func (l *Logger) enabled(level LogLevel) bool {
	if pkgLevel := GetPackageLogLevel(l.name); pkgLevel >= 0 {
		return level >= pkgLevel
	}
	return level >= l.level
}

// Debug logs a formatted message at DEBUG.
func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.enabled(DEBUG) {
		l.logf(DEBUG, msg, args...)
	}
}

// Info logs a formatted message at INFO.
func (l *Logger) Info(msg string, args ...interface{}) {
	if l.enabled(INFO) {
		l.logf(INFO, msg, args...)
	}
}

// Warn logs a formatted message at WARN.
func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.enabled(WARN) {
		l.logf(WARN, msg, args...)
	}
}

// Error logs a formatted message at ERROR.
func (l *Logger) Error(msg string, args ...interface{}) {
	if l.enabled(ERROR) {
		l.logf(ERROR, msg, args...)
	}
}

// ErrorWithErr logs msg at ERROR with err appended.
func (l *Logger) ErrorWithErr(msg string, err error, args ...interface{}) {
	if l.enabled(ERROR) {
		l.logf(ERROR, msg+" - %v", append(args, err)...)
	}
}

// Fatal logs at FATAL and exits with status 1.
func (l *Logger) Fatal(msg string, args ...interface{}) {
	if l.enabled(FATAL) {
		l.logf(FATAL, msg, args...)
		exitFunc(1)
	}
}

// DebugWithFields logs msg at DEBUG with the given fields.
func (l *Logger) DebugWithFields(msg string, fields ...LogField) {
	if l.enabled(DEBUG) {
		l.logFields(DEBUG, msg, fields)
	}
}

// InfoWithFields logs msg at INFO with the given fields.
func (l *Logger) InfoWithFields(msg string, fields ...LogField) {
	if l.enabled(INFO) {
		l.logFields(INFO, msg, fields)
	}
}

// WarnWithFields logs msg at WARN with the given fields.
func (l *Logger) WarnWithFields(msg string, fields ...LogField) {
	if l.enabled(WARN) {
		l.logFields(WARN, msg, fields)
	}
}

// ErrorWithFields logs msg at ERROR with the given fields.
func (l *Logger) ErrorWithFields(msg string, fields ...LogField) {
	if l.enabled(ERROR) {
		l.logFields(ERROR, msg, fields)
	}
}

// WithName returns a copy of the logger under a different name.
// Persistent fields are dropped.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{level: l.level, name: name, fields: map[string]interface{}{}, ctx: l.ctx}
}

// WithField returns a copy of the logger with an extra persistent field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(Field(key, value))
}

// WithFields returns a copy of the logger with extra persistent fields.
func (l *Logger) WithFields(fields ...LogField) *Logger {
	next := l.clone()
	for _, f := range fields {
		next.fields[f.Key] = f.Value
	}
	return next
}

// WithContext returns a copy of the logger bound to ctx. Trace and span IDs
// found in ctx are added to every line.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	next := l.clone()
	next.ctx = ctx
	return next
}

func (l *Logger) clone() *Logger {
	fields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	return &Logger{level: l.level, name: l.name, fields: fields, ctx: l.ctx}
}
