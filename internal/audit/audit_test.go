package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{}, nil)
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatal("nil dispatcher should report zero counts")
	}
}

func TestDispatcherDropIfFullCountsDrops(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink, nil)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "factor_failure"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink and buffer of 1")
	}

	close(sink.gate)
	d.Close()
}

func TestDispatcherCloseDrainsBuffer(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink, nil)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "signin_success"})
	}
	d.Close()

	if got := d.Delivered(); got != 5 {
		t.Fatalf("expected 5 delivered events, got %d", got)
	}
	if got := len(sink.Events()); got != 5 {
		t.Fatalf("expected 5 events in sink, got %d", got)
	}

	d.Emit(context.Background(), Event{EventType: "after_close"})
	if got := len(sink.Events()); got != 5 {
		t.Fatalf("emit after close must be ignored, sink has %d", got)
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{EventType: "factor_success", PrincipalID: "p1", Factor: "webauthn", Success: true})
	sink.Emit(context.Background(), Event{EventType: "factor_failure", PrincipalID: "p1", Error: "factor_rejected"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.Factor != "webauthn" || !first.Success {
		t.Fatalf("unexpected event %+v", first)
	}
}

func TestLogSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	sink.Emit(context.Background(), Event{Timestamp: time.Now(), EventType: "signin_success", Success: true, PrincipalID: "p1"})
	sink.Emit(context.Background(), Event{Timestamp: time.Now(), EventType: "factor_failure", Error: "counter_replay", Metadata: map[string]string{"reason": "counter"}})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected levels %v %v", entries[0].Level, entries[1].Level)
	}
	fields := entries[1].ContextMap()
	if fields["error_code"] != "counter_replay" || fields["meta.reason"] != "counter" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

type panicSink struct{ calls int }

func (s *panicSink) Emit(_ context.Context, ev Event) {
	s.calls++
	if ev.EventType == "boom" {
		panic("sink failure")
	}
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sink := &panicSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink, zap.New(core))

	d.Emit(context.Background(), Event{EventType: "boom"})
	d.Emit(context.Background(), Event{EventType: "signin_success"})
	d.Close()

	if sink.calls != 2 {
		t.Fatalf("expected both events to reach the sink, got %d", sink.calls)
	}
	if d.Panicked() != 1 || d.Delivered() != 1 {
		t.Fatalf("panicked=%d delivered=%d", d.Panicked(), d.Delivered())
	}
	if logs.FilterMessage("audit sink panicked").Len() != 1 {
		t.Fatal("expected the panic to be logged once")
	}
}

func TestDispatcherWarnsOnPowerOfTwoDrops(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink, zap.New(core))

	// The first event may be taken by the relay before the queue fills.
	for i := 0; i < 12; i++ {
		d.Emit(context.Background(), Event{EventType: "factor_failure"})
	}
	dropped := d.Dropped()
	close(sink.gate)
	d.Close()

	if dropped < 10 {
		t.Fatalf("expected at least 10 drops, got %d", dropped)
	}
	warned := logs.FilterMessage("audit events dropped").Len()
	if warned != 4 {
		t.Fatalf("expected warnings at drops 1, 2, 4 and 8, got %d", warned)
	}
}
