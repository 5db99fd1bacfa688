package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kjannette/cryptovest-backend/internal/httputil"
	"github.com/kjannette/cryptovest-backend/internal/logging"
)

var log = logging.For("notify")

const defaultBotName = "CryptoVest"

// Sender posts platform messages (simulated activity alerts, approval
// notices) to a Slack or Discord webhook. Without a webhook it only logs.
type Sender struct {
	webhookURL string
	botName    string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewSender(webhookURL, botName string) *Sender {
	if botName == "" {
		botName = defaultBotName
	}
	return &Sender{
		webhookURL: webhookURL,
		botName:    botName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
		},
	}
}

// Send delivers msg and returns once the webhook answered or gave up.
// Failures are logged, never returned.
func (s *Sender) Send(ctx context.Context, msg string) {
	formatted := fmt.Sprintf("[%s] %s", s.botName, msg)
	log.Info(formatted)

	if s.webhookURL == "" {
		return
	}

	body, err := json.Marshal(s.formatPayload(formatted))
	if err != nil {
		log.WithError(err).Error("marshal payload")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		log.WithError(err).Error("failed to send notification after retries")
		return
	}
	resp.Body.Close()
}

// SendAsync is Send on its own goroutine, for callers on a request path.
func (s *Sender) SendAsync(msg string) {
	go s.Send(context.Background(), msg)
}

func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.botName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.botName,
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}
