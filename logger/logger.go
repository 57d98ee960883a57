// Package gridlog provides a thread-safe, leveled logger shared by the GridClash server,
// clients and tools. It supports four levels (INFO, WARNING, ERROR, DEBUG) and four
// output modes (DEV, RELEASE, VERBOSE, HIDDEN).
//
// Key Features:
// - ANSI color output on the console destination
// - Optional file logging into a timestamped file per process
// - Consumer-aware formatting: "[GridClash] [Server] ..."
// - Redirectable console destination (the terminal client owns the tty)
//
// Example:
//
//	log, _ := gridlog.NewLogger("./logs", gridlog.RELEASE)
//	log.Logf("Server", gridlog.INFO, "listening on %s", addr)
//	defer log.Close()
package gridlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogType represents different severity levels for log messages
type LogType uint8

const (
	INFO    LogType = iota // Normal operations
	WARNING                // Dropped datagrams, rejections, timeouts
	ERROR                  // Failures surfaced to a caller
	DEBUG                  // Per-datagram tracing
)

// LogMode controls how and where logs are output
type LogMode uint8

const (
	DEV     LogMode = iota // Console only, all logs
	RELEASE                // Console + file, no DEBUG
	VERBOSE                // Console + file, all logs
	HIDDEN                 // Console + file, INFO and ERROR only
)

// ParseMode maps a mode name (case-insensitive) to a LogMode.
func ParseMode(name string) (LogMode, error) {
	switch strings.ToUpper(name) {
	case "DEV":
		return DEV, nil
	case "RELEASE":
		return RELEASE, nil
	case "VERBOSE":
		return VERBOSE, nil
	case "HIDDEN":
		return HIDDEN, nil
	}
	return DEV, fmt.Errorf("[GridLog] unknown log mode %q", name)
}

// String returns the name of the mode.
func (m LogMode) String() string {
	switch m {
	case DEV:
		return "DEV"
	case RELEASE:
		return "RELEASE"
	case VERBOSE:
		return "VERBOSE"
	case HIDDEN:
		return "HIDDEN"
	default:
		return "INVALID"
	}
}

// ANSI color codes for console output
const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
)

const (
	module     = "[GridClash]"
	timeFormat = "2006-01-02 15:04:05.000"
	bufferSize = 4096
)

var logTypeStrings = [4]string{
	INFO:    "INFO",
	WARNING: "WARNING",
	ERROR:   "ERROR",
	DEBUG:   "DEBUG",
}

var logTypeColors = [4]string{
	INFO:    Green,
	WARNING: Yellow,
	ERROR:   Red,
	DEBUG:   Blue,
}

// [mode][logType] -> [console, file]
var logBehavior = [4][4][2]bool{
	DEV: {
		INFO:    {true, false},
		WARNING: {true, false},
		ERROR:   {true, false},
		DEBUG:   {true, false},
	},
	RELEASE: {
		INFO:    {true, true},
		WARNING: {true, true},
		ERROR:   {true, true},
		DEBUG:   {false, false},
	},
	VERBOSE: {
		INFO:    {true, true},
		WARNING: {true, true},
		ERROR:   {true, true},
		DEBUG:   {true, true},
	},
	HIDDEN: {
		INFO:    {true, true},
		WARNING: {false, false},
		ERROR:   {true, true},
		DEBUG:   {false, false},
	},
}

// Logger handles all logging operations. A nil *Logger discards everything,
// so components can be built without one in tests.
type Logger struct {
	mu      sync.Mutex
	mode    LogMode
	console io.Writer     // nil disables console output
	color   bool          // ANSI colors on the console
	logFile *os.File      // nil when file output is disabled
	writer  *bufio.Writer // buffered writer over logFile
	path    string
	closed  bool
	sb      strings.Builder
}

// NewLogger creates a logger writing to stdout and, for non-DEV modes,
// to a timestamped file inside logDir.
func NewLogger(logDir string, mode LogMode) (*Logger, error) {
	if mode > HIDDEN {
		return nil, fmt.Errorf("[GridLog] invalid log mode %d", mode)
	}
	l := &Logger{
		mode:    mode,
		console: os.Stdout,
		color:   true,
	}
	l.sb.Grow(256)

	if mode != DEV {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("[GridLog] failed to create log directory: %w", err)
		}

		l.path = fmt.Sprintf("%s/%s_%d.log", logDir, time.Now().Format("20060102_150405"), os.Getpid())
		file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("[GridLog] failed to create log file: %w", err)
		}
		l.logFile = file
		l.writer = bufio.NewWriterSize(file, bufferSize)
	}

	return l, nil
}

// SetOutput redirects console lines to w. A nil w silences the console;
// colors are only emitted when w is the process stdout or stderr.
func (l *Logger) SetOutput(w io.Writer) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.console = w
	l.color = w == os.Stdout || w == os.Stderr
}

// Path returns the log file path, or "" when file output is disabled.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Log writes a message for consumer at the given level.
func (l *Logger) Log(consumer string, logType LogType, message string) {
	if l == nil || logType > DEBUG {
		return
	}
	behavior := logBehavior[l.mode][logType]
	toConsole, toFile := behavior[0], behavior[1]
	if !toConsole && !toFile {
		return
	}

	timestamp := time.Now().Format(timeFormat)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	if toConsole && l.console != nil {
		fmt.Fprint(l.console, l.format(timestamp, consumer, logType, message, l.color))
	}
	if toFile && l.writer != nil {
		if _, err := l.writer.WriteString(l.format(timestamp, consumer, logType, message, false)); err != nil && l.console != nil {
			fmt.Fprintf(l.console, "[ERROR] [GridLog] failed to write log: %v\n", err)
		}
	}
}

// Logf is Log with fmt.Sprintf formatting.
func (l *Logger) Logf(consumer string, logType LogType, format string, args ...any) {
	if l == nil {
		return
	}
	l.Log(consumer, logType, fmt.Sprintf(format, args...))
}

// Enabled reports whether any destination accepts logType; callers use it
// to skip building expensive DEBUG messages.
func (l *Logger) Enabled(logType LogType) bool {
	if l == nil || logType > DEBUG {
		return false
	}
	b := logBehavior[l.mode][logType]
	return b[0] || b[1]
}

// format renders one line; must be called with mu held.
func (l *Logger) format(timestamp, consumer string, logType LogType, message string, color bool) string {
	l.sb.Reset()
	l.sb.WriteByte('[')
	if color {
		l.sb.WriteString(logTypeColors[logType])
	}
	l.sb.WriteString(logTypeStrings[logType])
	if color {
		l.sb.WriteString(Reset)
	}
	l.sb.WriteString("] [")
	l.sb.WriteString(timestamp)
	l.sb.WriteString("] ")
	l.sb.WriteString(module)
	l.sb.WriteString(" [")
	l.sb.WriteString(consumer)
	l.sb.WriteString("] ")
	l.sb.WriteString(message)
	l.sb.WriteByte('\n')
	return l.sb.String()
}

// Flush forces any buffered log data to be written to disk
func (l *Logger) Flush() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		return l.writer.Flush()
	}
	return nil
}

// Close flushes and closes the log file. Further Log calls are ignored.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if l.writer != nil {
		if err := l.writer.Flush(); err != nil {
			return fmt.Errorf("failed to flush buffer: %w", err)
		}
	}
	if l.logFile != nil {
		if err := l.logFile.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
	}
	return nil
}
