package server

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// maxLogValue caps string field length so header values and paths cannot
// flood the log
const maxLogValue = 100

// NewLogger builds the process logger. format is "text" or "json".
func NewLogger(level, format string, out io.Writer) (*logrus.Entry, error) {
	l := logrus.New()
	l.SetOutput(out)

	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	l.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	l.AddHook(truncateHook{limit: maxLogValue})
	return logrus.NewEntry(l), nil
}

// truncateHook shortens long string fields before they are formatted.
// Diagnostic fields are kept whole.
type truncateHook struct {
	limit int
}

var untruncatedFields = map[string]bool{
	"stack":         true,
	logrus.ErrorKey: true,
}

func (truncateHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h truncateHook) Fire(e *logrus.Entry) error {
	for k, v := range e.Data {
		if untruncatedFields[k] {
			continue
		}
		if s, ok := v.(string); ok && len(s) > h.limit {
			e.Data[k] = s[:h.limit] + "...[truncated]"
		}
	}
	return nil
}
