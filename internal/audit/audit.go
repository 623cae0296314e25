package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Event is one security-relevant outcome: a login, a refresh, a logout or
// an authorization denial or override.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Username  string            `json:"username,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Roles     []string          `json:"roles,omitempty"`
	Rule      string            `json:"rule,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
}

// LogSink writes events as structured log lines.
type LogSink struct {
	logger logr.Logger
}

func NewLogSink(logger logr.Logger) LogSink {
	return LogSink{logger: logger.WithName("audit")}
}

func (s LogSink) Emit(_ context.Context, event Event) {
	kv := []any{
		"event", event.EventType,
		"success", event.Success,
	}
	if event.UserID != "" {
		kv = append(kv, "user", event.UserID)
	}
	if event.Username != "" {
		kv = append(kv, "username", event.Username)
	}
	if event.Rule != "" {
		kv = append(kv, "rule", event.Rule, "roles", event.Roles)
	}
	if event.Error != "" {
		kv = append(kv, "error", event.Error)
	}
	s.logger.Info("audit", kv...)
}
