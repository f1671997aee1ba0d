package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"alice"}`))
	if err := DecodeJSON(httptest.NewRecorder(), req, &dst); err != nil {
		t.Fatalf("DecodeJSON err: %v", err)
	}
	if dst.Name != "alice" {
		t.Fatalf("unexpected name: %s", dst.Name)
	}

	for _, body := range []string{"", "{", `{"name":"a"} {"name":"b"}`, `{"name":1}`} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		if err := DecodeJSON(httptest.NewRecorder(), req, &dst); err == nil {
			t.Fatalf("expected error for body %q", body)
		}
	}
}

func TestSendSSEEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)

	if err := SendSSEEvent(rec, rec, "delta", map[string]string{"content": "hi"}); err != nil {
		t.Fatalf("SendSSEEvent err: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if got := rec.Body.String(); got != "event: delta\ndata: {\"content\":\"hi\"}\n\n" {
		t.Fatalf("unexpected frame: %q", got)
	}
	if !rec.Flushed {
		t.Fatal("expected flush after event")
	}
}
