package slack

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(
		Config{BotToken: "xoxb-test", CallsPerMinute: 6000},
		Dependencies{
			HTTPClient: &http.Client{Timeout: 2 * time.Second},
			BaseURL:    srv.URL,
		},
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestPostMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		var msg Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode message: %v", err)
		}
		if msg.Channel != "C123" || msg.Text == "" {
			t.Errorf("unexpected message: %+v", msg)
		}
		fmt.Fprint(w, `{"ok":true,"channel":"C123","ts":"1700000000.000100"}`)
	})

	c := newTestClient(t, mux)
	channel, ts, err := c.PostMessage(context.Background(), Message{Channel: "C123", Text: "hello"})
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if channel != "C123" || ts != "1700000000.000100" {
		t.Fatalf("unexpected identifiers: %s %s", channel, ts)
	}
}

func TestPostMessageAPIErrorSurfaces(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error":"channel_not_found"}`)
	}))

	_, _, err := c.PostMessage(context.Background(), Message{Channel: "C404", Text: "hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestUpdateMessageSendsTS(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat.update", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["ts"] != "1700000000.000100" || payload["channel"] != "C123" {
			t.Errorf("unexpected payload: %v", payload)
		}
		fmt.Fprint(w, `{"ok":true}`)
	})

	c := newTestClient(t, mux)
	if err := c.UpdateMessage(context.Background(), "C123", "1700000000.000100", Message{Text: "edited"}); err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}
}

func TestUserNameCachesLookups(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/users.info", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("user") != "U42" {
			t.Errorf("unexpected user param %q", r.URL.Query().Get("user"))
		}
		fmt.Fprint(w, `{"ok":true,"user":{"real_name":"Ada Lovelace"}}`)
	})

	c := newTestClient(t, mux)
	ctx := context.Background()
	if got := c.UserName(ctx, "U42"); got != "Ada Lovelace" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := c.UserName(ctx, "U42"); got != "Ada Lovelace" {
		t.Fatalf("unexpected cached name %q", got)
	}
	if calls != 1 {
		t.Fatalf("expected one API call, got %d", calls)
	}
}

func TestUserNameFallsBackToID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	if got := c.UserName(context.Background(), "U42"); got != "U42" {
		t.Fatalf("expected fallback to id, got %q", got)
	}
}

func signBody(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{"type":"event_callback"}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := signBody("secret", ts, body)

	if !VerifySignature("secret", ts, sig, body, now) {
		t.Fatalf("expected valid signature to verify")
	}
	if VerifySignature("secret", ts, sig, []byte("tampered"), now) {
		t.Fatalf("expected tampered body to fail")
	}
	if VerifySignature("wrong", ts, sig, body, now) {
		t.Fatalf("expected wrong secret to fail")
	}
	if VerifySignature("secret", ts, sig, body, now.Add(10*time.Minute)) {
		t.Fatalf("expected stale timestamp to fail")
	}
	if VerifySignature("secret", "not-a-number", sig, body, now) {
		t.Fatalf("expected malformed timestamp to fail")
	}
}
