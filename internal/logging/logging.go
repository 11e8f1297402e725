// Package logging provides the structured logger used throughout the
// gateway, backed by github.com/rs/zerolog (grounded on RedClaus-cortex,
// which uses zerolog as its structured logger).
//
// The Logger interface and NoOpLogger are kept from the teacher's
// pkg/orchestrator/types.go as the injection seam the rest of the module
// depends on, so provider adapters and the orchestrator never import
// zerolog directly — only this package and cmd/gateway wire a concrete
// sink.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the narrow logging seam the rest of the module depends on.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NoOpLogger discards everything; used in tests and as a zero-value default.
type NoOpLogger struct{}

func (NoOpLogger) Debug(msg string, args ...interface{}) {}
func (NoOpLogger) Info(msg string, args ...interface{})  {}
func (NoOpLogger) Warn(msg string, args ...interface{})  {}
func (NoOpLogger) Error(msg string, args ...interface{}) {}

// ZerologLogger adapts zerolog.Logger to the Logger interface, pairing
// key/value varargs the way the teacher's NoOpLogger signature expects.
type ZerologLogger struct {
	log zerolog.Logger
}

// New builds a ZerologLogger writing JSON lines to stdout and, if logPath
// is non-empty, additionally appending to a log file (append-only; the
// file is never rotated).
func New(logPath string) (*ZerologLogger, error) {
	writers := []io.Writer{os.Stdout}

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, f)
	}

	multi := zerolog.MultiLevelWriter(writers...)
	log := zerolog.New(multi).With().Timestamp().Logger()

	return &ZerologLogger{log: log}, nil
}

func (z *ZerologLogger) Debug(msg string, args ...interface{}) { z.event(z.log.Debug(), msg, args) }
func (z *ZerologLogger) Info(msg string, args ...interface{})  { z.event(z.log.Info(), msg, args) }
func (z *ZerologLogger) Warn(msg string, args ...interface{})  { z.event(z.log.Warn(), msg, args) }
func (z *ZerologLogger) Error(msg string, args ...interface{}) { z.event(z.log.Error(), msg, args) }

func (z *ZerologLogger) event(e *zerolog.Event, msg string, args []interface{}) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, args[i+1])
	}
	e.Msg(msg)
}
