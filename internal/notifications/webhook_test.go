package notifications

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSend_NoWebhook(t *testing.T) {
	s := NewSender("", "TestBot")
	if s.Enabled() {
		t.Fatal("should not be enabled with empty URL")
	}
	s.Send(context.Background(), "hello from test")
	t.Log("Send with no webhook: OK (log only)")
}

func TestSend_SlackFormat(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(srv.URL, "TestBot")
	if !s.Enabled() {
		t.Fatal("should be enabled")
	}

	s.Send(context.Background(), "Someone from Canada just deposited 4.20 BTC")

	if received["username"] != "TestBot" {
		t.Fatalf("username: got %s", received["username"])
	}
	if !strings.Contains(received["text"], "Canada") {
		t.Fatalf("text should carry the message, got %q", received["text"])
	}
	t.Logf("Slack payload: %+v", received)
}

func TestSend_DiscordFormat(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(srv.URL+"/discord/webhook", "VestBot")
	s.Send(context.Background(), "investment #12 approved: 0.5 ETH")

	if received["content"] == "" {
		t.Fatal("content should not be empty for Discord")
	}
	if received["username"] != "VestBot" {
		t.Fatalf("username: got %s", received["username"])
	}
	if _, hasText := received["text"]; hasText {
		t.Fatal("Discord payload should not have 'text' field")
	}
}

func TestSend_WebhookError(t *testing.T) {
	s := NewSender("http://localhost:1/bogus", "TestBot")
	s.retry.BaseDelay = 10 * time.Millisecond
	s.Send(context.Background(), "this will fail gracefully")
	t.Log("Webhook error handled gracefully")
}

func TestSendAsync(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p map[string]string
		json.NewDecoder(r.Body).Decode(&p)
		got <- p["text"]
	}))
	defer srv.Close()

	NewSender(srv.URL, "").SendAsync("async hello")
	select {
	case text := <-got:
		if !strings.Contains(text, "[CryptoVest] async hello") {
			t.Fatalf("unexpected text %q", text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("async send never arrived")
	}
}

func TestDefaultBotName(t *testing.T) {
	s := NewSender("", "")
	if s.botName != "CryptoVest" {
		t.Fatalf("expected default bot name, got %s", s.botName)
	}
}
