// Package observability holds the logging contract shared by the OCR, layout
// and PDF packages. Library code logs through Logger so callers can plug in
// the service logger (zerolog) or silence it with NopLogger.
package observability

import "time"

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type Field interface {
	Key() string
	Value() interface{}
}

type stringField struct{ key, val string }

func (f stringField) Key() string        { return f.key }
func (f stringField) Value() interface{} { return f.val }

type intField struct {
	key string
	val int
}

func (f intField) Key() string        { return f.key }
func (f intField) Value() interface{} { return f.val }

type int64Field struct {
	key string
	val int64
}

func (f int64Field) Key() string        { return f.key }
func (f int64Field) Value() interface{} { return f.val }

type floatField struct {
	key string
	val float64
}

func (f floatField) Key() string        { return f.key }
func (f floatField) Value() interface{} { return f.val }

type durationField struct {
	key string
	val time.Duration
}

func (f durationField) Key() string        { return f.key }
func (f durationField) Value() interface{} { return f.val }

type errorField struct {
	key string
	err error
}

func (f errorField) Key() string        { return f.key }
func (f errorField) Value() interface{} { return f.err }

func String(key, value string) Field                 { return stringField{key, value} }
func Int(key string, value int) Field                { return intField{key, value} }
func Int64(key string, value int64) Field            { return int64Field{key, value} }
func Float(key string, value float64) Field          { return floatField{key, value} }
func Duration(key string, value time.Duration) Field { return durationField{key, value} }
func Error(key string, err error) Field              { return errorField{key, err} }

type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// Standard metric names emitted by the service.
const (
	MetricOCRTime    = "readease.ocr.duration"
	MetricOCRWords   = "readease.ocr.words"
	MetricLayoutTime = "readease.layout.duration"
	MetricPageCount  = "readease.pdf.pages.count"
)

// Timer measures an operation and reports it as a debug record named after
// the metric.
type Timer struct {
	log    Logger
	metric string
	start  time.Time
}

// StartTimer begins timing metric. A nil logger is treated as NopLogger.
func StartTimer(log Logger, metric string) *Timer {
	if log == nil {
		log = NopLogger{}
	}
	return &Timer{log: log, metric: metric, start: time.Now()}
}

// Stop logs the elapsed time with the extra fields and returns it.
func (t *Timer) Stop(fields ...Field) time.Duration {
	elapsed := time.Since(t.start)
	t.log.Debug(t.metric, append([]Field{Duration("elapsed", elapsed)}, fields...)...)
	return elapsed
}
