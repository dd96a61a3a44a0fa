package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Leveled logger used across the agent.
// - zero external deps
// - Init(level) controls the global threshold (LOG_LEVEL env at startup)
// - Component(name) yields a sub-logger that prefixes every line, so the
//   bridge, provider client and facade can be told apart in agent logs.

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var (
	mu     sync.RWMutex
	logger *log.Logger = log.New(os.Stdout, "", 0)
	level  Level       = LevelInfo
)

// Init sets the global log level (case-insensitive: debug, info, warn,
// error, fatal). Call early during startup. Default level is Info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		level = LevelDebug
	case "warn", "warning":
		level = LevelWarn
	case "error":
		level = LevelError
	case "fatal":
		level = LevelFatal
	default:
		level = LevelInfo
	}
}

func header(lvl, component string) string {
	if component == "" {
		return fmt.Sprintf("%s [%s] ", time.Now().Format(time.RFC3339), strings.ToUpper(lvl))
	}
	return fmt.Sprintf("%s [%s] (%s) ", time.Now().Format(time.RFC3339), strings.ToUpper(lvl), component)
}

func shouldLog(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func emit(l Level, lvl, component, format string, v ...interface{}) {
	if !shouldLog(l) {
		return
	}
	logger.Printf(header(lvl, component)+format, v...)
}

func Debugf(format string, v ...interface{}) { emit(LevelDebug, "debug", "", format, v...) }
func Infof(format string, v ...interface{})  { emit(LevelInfo, "info", "", format, v...) }
func Warnf(format string, v ...interface{})  { emit(LevelWarn, "warn", "", format, v...) }
func Errorf(format string, v ...interface{}) { emit(LevelError, "error", "", format, v...) }

func Fatalf(format string, v ...interface{}) {
	logger.Printf(header("fatal", "")+format, v...)
	os.Exit(1)
}

// Println kept for brief messages (maps to Info)
func Println(v ...interface{}) {
	if !shouldLog(LevelInfo) {
		return
	}
	logger.Print(header("info", "") + fmt.Sprintln(v...))
}

// Debug/Info/Warn/Error helpers that accept a single string
func Debug(v string) { Debugf("%s", v) }
func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// Prefixed is a component-scoped logger sharing the global level.
type Prefixed struct {
	component string
}

// Component returns a logger that tags every line with the component name.
func Component(name string) *Prefixed { return &Prefixed{component: name} }

func (p *Prefixed) Debugf(format string, v ...interface{}) {
	emit(LevelDebug, "debug", p.component, format, v...)
}
func (p *Prefixed) Infof(format string, v ...interface{}) {
	emit(LevelInfo, "info", p.component, format, v...)
}
func (p *Prefixed) Warnf(format string, v ...interface{}) {
	emit(LevelWarn, "warn", p.component, format, v...)
}
func (p *Prefixed) Errorf(format string, v ...interface{}) {
	emit(LevelError, "error", p.component, format, v...)
}

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	switch level {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	}
	return "info"
}
