package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is our abstract logging interface.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(err error)
	WithFields(fields map[string]any) Logger
}

// LogrusLogger implements Logger using logrus.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger creates a logrus logger writing JSON to stdout and, when
// filepath is set, appending to that file as well.
func NewLogrusLogger(filepath, level string) (Logger, error) {
	var out io.Writer = os.Stdout
	if filepath != "" {
		file, err := os.OpenFile(filepath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(os.Stdout, file)
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return NewWriterLogger(out, lvl), nil
}

// NewWriterLogger creates a JSON logrus logger on w.
func NewWriterLogger(w io.Writer, level logrus.Level) Logger {
	baseLogger := logrus.New()
	baseLogger.SetOutput(w)
	baseLogger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05.000000",
	})
	baseLogger.SetLevel(level)

	return &LogrusLogger{
		entry: logrus.NewEntry(baseLogger),
	}
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return NewWriterLogger(io.Discard, logrus.PanicLevel)
}

func (l *LogrusLogger) Debug(msg string) {
	l.entry.Debug(msg)
}

func (l *LogrusLogger) Info(msg string) {
	l.entry.Info(msg)
}

func (l *LogrusLogger) Warn(msg string) {
	l.entry.Warn(msg)
}

func (l *LogrusLogger) Error(err error) {
	l.entry.Error(err)
}

func (l *LogrusLogger) WithFields(fields map[string]any) Logger {
	return &LogrusLogger{
		entry: l.entry.WithFields(logrus.Fields(fields)),
	}
}
