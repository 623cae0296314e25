package goGuard

import (
	"io"

	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
	"github.com/go-logr/logr"
)

// AuditEvent is one security-relevant outcome.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink delivers audit events on a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per audit event.
type JSONWriterSink = internalaudit.JSONWriterSink

// LogSink writes audit events through a logr.Logger.
type LogSink = internalaudit.LogSink

// NewChannelSink returns a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLogSink returns a [LogSink] writing to logger.
func NewLogSink(logger logr.Logger) LogSink {
	return internalaudit.NewLogSink(logger)
}
