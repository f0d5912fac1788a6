package observability

import (
	"github.com/rs/zerolog"
)

type zerologLogger struct {
	l zerolog.Logger
}

// NewZerolog adapts a zerolog logger to Logger.
func NewZerolog(l zerolog.Logger) Logger {
	return zerologLogger{l: l}
}

func (z zerologLogger) Debug(msg string, fields ...Field) { z.emit(z.l.Debug(), msg, fields) }
func (z zerologLogger) Info(msg string, fields ...Field)  { z.emit(z.l.Info(), msg, fields) }
func (z zerologLogger) Warn(msg string, fields ...Field)  { z.emit(z.l.Warn(), msg, fields) }
func (z zerologLogger) Error(msg string, fields ...Field) { z.emit(z.l.Error(), msg, fields) }

func (z zerologLogger) With(fields ...Field) Logger {
	ctx := z.l.With()
	for _, f := range fields {
		switch v := f.Value().(type) {
		case error:
			ctx = ctx.AnErr(f.Key(), v)
		default:
			ctx = ctx.Interface(f.Key(), v)
		}
	}
	return zerologLogger{l: ctx.Logger()}
}

func (z zerologLogger) emit(ev *zerolog.Event, msg string, fields []Field) {
	// disabled levels return a nil event
	if ev == nil {
		return
	}
	for _, f := range fields {
		switch v := f.Value().(type) {
		case string:
			ev = ev.Str(f.Key(), v)
		case int:
			ev = ev.Int(f.Key(), v)
		case int64:
			ev = ev.Int64(f.Key(), v)
		case float64:
			ev = ev.Float64(f.Key(), v)
		case error:
			ev = ev.AnErr(f.Key(), v)
		default:
			ev = ev.Interface(f.Key(), v)
		}
	}
	ev.Msg(msg)
}
