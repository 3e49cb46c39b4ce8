package realtime

import (
	"fmt"
	"net/http"
	"strings"
)

// Event is one server-sent event. Data containing embedded newlines is
// split into multiple "data:" lines on write, per the SSE framing rules.
type Event struct {
	ID      string
	Event   string
	Data    string
	RetryMS int
	Comment string
}

// SSEWriter frames and flushes events over an http.ResponseWriter. Hand
// written over http.Flusher rather than an SSE library: no repo in the
// reference corpus imports one, and the frame format is a handful of lines
// of string formatting.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter opens the response with the canonical SSE headers.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("realtime: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// Write frames and flushes one event.
func (s *SSEWriter) Write(e Event) error {
	var b strings.Builder
	if e.Comment != "" {
		fmt.Fprintf(&b, ": %s\n", e.Comment)
	}
	if e.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", e.ID)
	}
	if e.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", e.Event)
	}
	for _, line := range strings.Split(e.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	if e.RetryMS > 0 {
		fmt.Fprintf(&b, "retry: %d\n", e.RetryMS)
	}
	b.WriteString("\n")

	if _, err := s.w.Write([]byte(b.String())); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Keepalive writes a bare comment line, useful for holding the stream open
// through idle intermediaries.
func (s *SSEWriter) Keepalive(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
