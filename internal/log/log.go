package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the process wide logger. It is usable before Init is called.
var Logger = New(os.Stderr, "info", false)

type Log struct {
	entry *logrus.Entry
}

func New(w io.Writer, level string, jsonFormat bool) *Log {
	l := logrus.New()
	l.SetOutput(w)
	if jsonFormat {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000"})
	}

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	return &Log{entry: logrus.NewEntry(l)}
}

// Init replaces Logger. An unknown level is reported and leaves Logger untouched.
func Init(level string, jsonFormat bool) error {
	if _, err := logrus.ParseLevel(strings.ToLower(level)); err != nil {
		return err
	}
	Logger = New(os.Stderr, level, jsonFormat)
	return nil
}

func (l *Log) With(fields map[string]any) *Log {
	return &Log{entry: l.entry.WithFields(fields)}
}

func (l *Log) Debug(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

func (l *Log) Info(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l *Log) Warn(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

func (l *Log) Error(format string, args ...any) {
	l.entry.Errorf(format, args...)
}

func (l *Log) Fatal(format string, args ...any) {
	l.entry.Fatalf(format, args...)
}
