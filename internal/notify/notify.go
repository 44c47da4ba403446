// Package notify bridges session lifecycle events to chat platforms
// (Slack, Discord). Sinks are post-only: failures are logged, never
// surfaced to the lifecycle.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// sendTimeout caps how long one sink may hold up a lifecycle operation.
const sendTimeout = 10 * time.Second

// Message is a lifecycle event formatted for display in chat.
type Message struct {
	Title  string  // event headline (e.g. "session 250101_120000 stopped")
	Body   string  // detail text
	Color  string  // sidebar color hint
	Fields []Field // key-value metadata pairs
}

// Field is a key-value pair displayed alongside a message.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// Sink delivers a formatted message to one chat platform.
type Sink interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Fanout broadcasts lifecycle events to every configured sink. It
// implements the lifecycle's Notifier interface.
type Fanout struct {
	sinks []Sink
}

// NewFanout returns a Fanout over the given sinks. Nil sinks are skipped.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Notify formats the event and posts it to every sink. Each sink gets its
// own timeout so a stuck platform cannot wedge the lifecycle.
func (f *Fanout) Notify(ctx context.Context, event, sessionID, detail string) {
	if len(f.sinks) == 0 {
		return
	}
	msg := formatEvent(event, sessionID, detail)

	for _, s := range f.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		if err := s.Send(sendCtx, msg); err != nil {
			log.Printf("notify: %s: %v", s.Name(), err)
		}
		cancel()
	}
}

// eventColor maps a lifecycle event name to a sidebar color.
func eventColor(event string) string {
	switch event {
	case "session started", "analysis started":
		return ColorInfo
	case "analysis completed":
		return ColorSuccess
	case "session deleted":
		return ColorWarning
	default:
		return ColorInfo
	}
}

// formatEvent builds the chat message for one lifecycle event.
func formatEvent(event, sessionID, detail string) Message {
	msg := Message{
		Title: fmt.Sprintf("Monitoring %s", event),
		Body:  detail,
		Color: eventColor(event),
		Fields: []Field{
			{Name: "Session", Value: sessionID, Short: true},
		},
	}
	if detail != "" {
		msg.Fields = append(msg.Fields, Field{Name: "Detail", Value: detail, Short: true})
	}
	return msg
}
