package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logrus entry writing to out with the given level and format
// ("text" or "json"). Unknown levels fall back to info.
func New(out io.Writer, level, format string) *logrus.Entry {
	if out == nil {
		out = os.Stderr
	}

	l := logrus.New()
	l.Out = out

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	entry := logrus.NewEntry(l).WithField("app", "claygrounds")
	entry.Debugf("Debug level is enabled")
	return entry
}

// Noop returns an entry that discards everything, for tests
func Noop() *logrus.Entry {
	l := logrus.New()
	l.Out = io.Discard
	return logrus.NewEntry(l)
}
