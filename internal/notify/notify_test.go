package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

// fakeSink records messages and optionally fails every send.
type fakeSink struct {
	mu   sync.Mutex
	name string
	err  error
	msgs []Message
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func TestFanout_BroadcastsToAllSinks(t *testing.T) {
	a := &fakeSink{name: "a"}
	b := &fakeSink{name: "b"}
	f := NewFanout(a, nil, b)

	f.Notify(context.Background(), "session started", "250101_120000", "rule=oneTime")

	for _, s := range []*fakeSink{a, b} {
		if len(s.msgs) != 1 {
			t.Fatalf("sink %s got %d messages, want 1", s.name, len(s.msgs))
		}
		msg := s.msgs[0]
		if msg.Title != "Monitoring session started" {
			t.Errorf("Title = %q", msg.Title)
		}
		if len(msg.Fields) != 2 || msg.Fields[0].Value != "250101_120000" {
			t.Errorf("Fields = %+v", msg.Fields)
		}
	}
}

func TestFanout_SinkFailureDoesNotStopOthers(t *testing.T) {
	broken := &fakeSink{name: "broken", err: fmt.Errorf("gateway down")}
	ok := &fakeSink{name: "ok"}
	f := NewFanout(broken, ok)

	f.Notify(context.Background(), "session stopped", "250101_120000", "")

	if len(ok.msgs) != 1 {
		t.Fatalf("healthy sink got %d messages, want 1", len(ok.msgs))
	}
}

func TestFanout_NoSinksIsNoOp(t *testing.T) {
	NewFanout().Notify(context.Background(), "session started", "250101_120000", "")
}

func TestFormatEvent_Colors(t *testing.T) {
	tests := []struct {
		event string
		want  string
	}{
		{"session started", ColorInfo},
		{"analysis started", ColorInfo},
		{"analysis completed", ColorSuccess},
		{"session deleted", ColorWarning},
		{"session stopped", ColorInfo},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			if got := formatEvent(tt.event, "x", "").Color; got != tt.want {
				t.Errorf("color = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatEvent_OmitsEmptyDetailField(t *testing.T) {
	msg := formatEvent("session stopped", "250101_120000", "")
	if len(msg.Fields) != 1 {
		t.Errorf("Fields = %+v, want session field only", msg.Fields)
	}
}
