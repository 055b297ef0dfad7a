package report

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Core returns a zap core that records Warn and higher entries into s,
// together with their fields and the fields added through With. Tee it with
// the writing cores of the run logger.
func (s *Service) Core() zapcore.Core {
	return &logCore{LevelEnabler: zapcore.WarnLevel, service: s}
}

type logCore struct {
	zapcore.LevelEnabler
	service *Service
	fields  []zapcore.Field
}

func (c *logCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &logCore{LevelEnabler: c.LevelEnabler, service: c.service, fields: merged}
}

func (c *logCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *logCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	delete(enc.Fields, stacktraceKey)

	entry := LogEntry{
		Time:    e.Time,
		Level:   e.Level.CapitalString(),
		Logger:  e.LoggerName,
		Message: e.Message,
	}
	if len(enc.Fields) > 0 {
		entry.Fields = enc.Fields
	}
	c.service.AddLog(entry)
	return nil
}

func (c *logCore) Sync() error {
	return nil
}

// stacktraceKey is dropped from recorded fields; the console log keeps it.
const stacktraceKey = "stacktrace"

// Text returns the message followed by the fields as key=value pairs in key
// order.
func (e LogEntry) Text() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(e.Message)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Fields[k])
	}
	return sb.String()
}
