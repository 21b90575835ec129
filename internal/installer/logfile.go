package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Line types written to the run log.
const (
	levelInfo      = "I"
	levelSuccess   = "S"
	levelWarning   = "W"
	levelError     = "E"
	levelSeparator = "-"
)

const logTimeLayout = "02-01-2006 15:04:05"

// LogWriter writes the run log in the fixed line format
// "dd-MM-yyyy HH:mm:ss <I|S|W|E|-> - <text>". A separator entry with empty
// text emits a blank line.
type LogWriter struct {
	file *os.File
	now  func() time.Time
}

// NewLogWriter creates the log directory and truncates the log file.
func NewLogWriter(path string) (*LogWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	return &LogWriter{file: f, now: time.Now}, nil
}

func (w *LogWriter) write(level, text string) {
	if level == levelSeparator && strings.TrimSpace(text) == "" {
		fmt.Fprintln(w.file)
		return
	}
	fmt.Fprintf(w.file, "%s %s - %s\n", w.now().Format(logTimeLayout), level, text)
}

func (w *LogWriter) Info(format string, args ...any)    { w.write(levelInfo, fmt.Sprintf(format, args...)) }
func (w *LogWriter) Success(format string, args ...any) { w.write(levelSuccess, fmt.Sprintf(format, args...)) }
func (w *LogWriter) Warn(format string, args ...any)    { w.write(levelWarning, fmt.Sprintf(format, args...)) }
func (w *LogWriter) Error(format string, args ...any)   { w.write(levelError, fmt.Sprintf(format, args...)) }

// Blank writes an empty line.
func (w *LogWriter) Blank() { w.write(levelSeparator, "") }

func (w *LogWriter) Close() error { return w.file.Close() }
