package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestUpgradeEchoesMessagesAndRegistersConnection(t *testing.T) {
	registry := NewRegistry(0, 0)
	received := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = Upgrade(w, r, registry, "client-a", Config{HeartbeatInterval: 50 * time.Millisecond}, func(mt int, data []byte) {
			received <- string(data)
		})
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("write message: %v", err)
	}

	select {
	case msg := <-received:
		if msg != "hello" {
			t.Fatalf("expected hello, got %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message to be received by the handler")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(registry.Snapshot()) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected exactly one open connection to be registered")
}

func TestUpgradeRejectsWhenRegistryAtCapacity(t *testing.T) {
	registry := NewRegistry(0, 0)
	if _, err := registry.Register("client-a"); err != nil {
		t.Fatalf("seed registration: %v", err)
	}
	registry.maxPerClient = 1

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := Upgrade(w, r, registry, "client-a", Config{}, nil)
		if err == nil {
			t.Error("expected upgrade to fail when the per-client cap is already exhausted")
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp != nil && resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}
