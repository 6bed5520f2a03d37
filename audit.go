package goFactor

import (
	"io"

	"go.uber.org/zap"

	"github.com/MrEthical07/goFactor/internal/audit"
)

// AuditEvent is one security-relevant sign-in outcome.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	LogSink        = audit.LogSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewLogSink writes audit events through l: successes at info, failures at warn.
func NewLogSink(l *zap.Logger) *LogSink {
	return audit.NewLogSink(l)
}
