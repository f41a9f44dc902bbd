// Package logger provides component-scoped, leveled structured logging.
//
// Every entry is a single JSON object carrying the component name, the
// message and any extra fields. The sink is a logr.Logger built on funcr.
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

type LogLevel int32

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[LogLevel]string{
	DEBUG: "debug",
	INFO:  "info",
	WARN:  "warn",
	ERROR: "error",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int32(l))
}

// ParseLevel maps a level name (case-insensitive) to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	for lvl, name := range levelNames {
		if strings.EqualFold(s, name) {
			return lvl, nil
		}
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

var (
	currentLevel atomic.Int32

	mu     sync.RWMutex
	out    io.Writer = os.Stderr
	writeM sync.Mutex
	sink   logr.Logger
)

func init() {
	currentLevel.Store(int32(INFO))
	sink = newSink()
}

func newSink() logr.Logger {
	return funcr.NewJSON(func(obj string) {
		mu.RLock()
		w := out
		mu.RUnlock()

		writeM.Lock()
		defer writeM.Unlock()
		_, _ = io.WriteString(w, obj+"\n")
	}, funcr.Options{
		LogTimestamp: true,
		Verbosity:    1,
	})
}

// SetLevel sets the minimum level that will be written.
func SetLevel(level LogLevel) {
	currentLevel.Store(int32(level))
}

func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects log output. Intended for tests and the console command.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

func enabled(level LogLevel) bool {
	return level >= GetLevel()
}

func logMessage(level LogLevel, component, message string, fields map[string]any) {
	if !enabled(level) {
		return
	}

	l := sink
	if component != "" {
		l = l.WithName(component)
	}

	kv := make([]any, 0, 2+len(fields)*2)
	kv = append(kv, "severity", level.String())

	var errVal error
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fields[k]
		if e, ok := v.(error); ok && k == "error" && level == ERROR {
			errVal = e
			continue
		}
		kv = append(kv, k, v)
	}

	switch level {
	case DEBUG:
		l.V(1).Info(message, kv...)
	case ERROR:
		l.Error(errVal, message, kv...)
	default:
		l.Info(message, kv...)
	}
}

func Debug(message string) { logMessage(DEBUG, "", message, nil) }
func Info(message string)  { logMessage(INFO, "", message, nil) }
func Warn(message string)  { logMessage(WARN, "", message, nil) }
func Error(message string) { logMessage(ERROR, "", message, nil) }

func DebugC(component, message string) { logMessage(DEBUG, component, message, nil) }
func InfoC(component, message string)  { logMessage(INFO, component, message, nil) }
func WarnC(component, message string)  { logMessage(WARN, component, message, nil) }
func ErrorC(component, message string) { logMessage(ERROR, component, message, nil) }

func DebugCF(component, message string, fields map[string]any) {
	logMessage(DEBUG, component, message, fields)
}

func InfoCF(component, message string, fields map[string]any) {
	logMessage(INFO, component, message, fields)
}

func WarnCF(component, message string, fields map[string]any) {
	logMessage(WARN, component, message, fields)
}

func ErrorCF(component, message string, fields map[string]any) {
	logMessage(ERROR, component, message, fields)
}
