package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	logx "revertbot/pkg/logx"
)

func TestNewValidates(t *testing.T) {
	t.Parallel()
	cases := []Config{
		{ChatID: "1"},
		{Token: "t"},
		{Token: "t", ChatID: "channel"},
	}
	for _, c := range cases {
		if _, err := New(c, logx.Nop()); err == nil {
			t.Fatalf("New(%+v) should fail", c)
		}
	}
}

func TestPublishSendsMessage(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bot123:abc/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-1001,"type":"channel"},"text":"hi"}}`))
	}))
	defer srv.Close()

	p, err := New(Config{Token: "123:abc", ChatID: "-1001", ThreadID: 5, APIURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Publish(context.Background(), "Foo reverted an edit on Bar"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got["chat_id"] != "-1001" || got["text"] != "Foo reverted an edit on Bar" {
		t.Fatalf("unexpected params %v", got)
	}
	if got["message_thread_id"] != "5" {
		t.Fatalf("thread id = %v", got["message_thread_id"])
	}
}

func TestPublishSurfacesAPIError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	p, err := New(Config{Token: "123:abc", ChatID: "@nowhere", APIURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Publish(context.Background(), "hello"); err == nil {
		t.Fatal("expected error from API")
	}
	if err := p.Publish(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty text")
	}
}
