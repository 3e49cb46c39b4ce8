package realtime

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewSSEWriterSetsCanonicalHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	if _, err := NewSSEWriter(rec); err != nil {
		t.Fatalf("new sse writer: %v", err)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream; charset=utf-8" {
		t.Fatalf("unexpected content-type: %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("unexpected cache-control: %q", got)
	}
}

func TestWriteFramesMultiLineData(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("new sse writer: %v", err)
	}
	if err := w.Write(Event{ID: "1", Event: "update", Data: "line one\nline two"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "id: 1\n") {
		t.Fatalf("expected id line, got %q", body)
	}
	if !strings.Contains(body, "event: update\n") {
		t.Fatalf("expected event line, got %q", body)
	}
	if !strings.Contains(body, "data: line one\n") || !strings.Contains(body, "data: line two\n") {
		t.Fatalf("expected both data lines split, got %q", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Fatalf("expected event to be terminated by a blank line, got %q", body)
	}
}

func TestKeepaliveWritesCommentOnly(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("new sse writer: %v", err)
	}
	if err := w.Keepalive("ping"); err != nil {
		t.Fatalf("keepalive: %v", err)
	}
	if got := rec.Body.String(); got != ": ping\n\n" {
		t.Fatalf("unexpected keepalive frame: %q", got)
	}
}
