// Package logging provides the ambient logging abstraction shared by every
// package in this module. It reuses dragonboat's logger.ILogger interface and
// factory hook purely as a leveled-logging abstraction; no raft code in this
// module ever constructs a NodeHost.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// namedLogger implements logger.ILogger with shardctl's own formatting.
type namedLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *namedLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *namedLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *namedLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *namedLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *namedLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *namedLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

func (l *namedLogger) log(level string, format string, args ...interface{}) {
	l.logger.Printf("%-5s | %-12s | %s", level, l.name, fmt.Sprintf(format, args...))
}

// New creates a named logger. It is registered as the global factory below so
// that every package retrieves loggers through logger.GetLogger(name).
//
// Timestamps are UTC, year-month-day ordering (log.Ldate|log.Ltime|log.LUTC).
func New(name string) logger.ILogger {
	stdLogger := log.New(os.Stdout, "", log.Ldate|log.Ltime|log.LUTC)
	return &namedLogger{name: name, level: logger.INFO, logger: stdLogger}
}

// ParseLevel converts a configuration string to a logger.LogLevel.
func ParseLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s (want debug, info, warn, error)", level)
	}
}

// componentNames lists every named logger this module registers. Kept as a
// single list (mirrors the prior InitLoggers) so a new component only
// needs one line added here.
var componentNames = []string{
	"registry",
	"adminlock",
	"metadata",
	"objstore",
	"backup",
	"ingest",
	"eventlog",
	"dispatcher",
	"engine",
	"rpc",
	"transport/rpc",
}

// Init installs shardctl's logger factory and applies levelStr to every
// named component logger.
func Init(levelStr string) error {
	level, err := ParseLevel(levelStr)
	if err != nil {
		return err
	}
	logger.SetLoggerFactory(func(pkgName string) logger.ILogger { return New(pkgName) })
	for _, name := range componentNames {
		logger.GetLogger(name).SetLevel(level)
	}
	return nil
}
