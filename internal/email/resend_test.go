package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"macropulse/internal/logging"
)

func TestSendPostsEmailPayload(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer re_key" {
			t.Fatalf("missing auth header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "msg-1"})
	}))
	defer srv.Close()

	s := NewSender("re_key", "digest@example.com", "desk@example.com", logging.NewLogger(), WithBaseURL(srv.URL))
	if err := s.Send(context.Background(), "Daily macro digest", "<p>hi</p>", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if got.From != "digest@example.com" || len(got.To) != 1 || got.To[0] != "desk@example.com" {
		t.Fatalf("unexpected addressing: %+v", got)
	}
	if got.Subject != "Daily macro digest" || got.HTML != "<p>hi</p>" || got.Text != "hi" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestSendFailsOnAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid from"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	s := NewSender("re_key", "bad", "desk@example.com", logging.NewLogger(), WithBaseURL(srv.URL))
	if err := s.Send(context.Background(), "s", "<p>h</p>", "h"); err == nil {
		t.Fatalf("expected error on 422 response")
	}
}

func TestSendRequiresAPIKey(t *testing.T) {
	s := NewSender("", "digest@example.com", "desk@example.com", logging.NewLogger())
	if err := s.Send(context.Background(), "s", "h", "t"); err == nil {
		t.Fatalf("expected error for missing key")
	}
}
