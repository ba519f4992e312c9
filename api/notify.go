package api

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

// WebhookNotifier wakes an external agent when something lands on the board.
// Delivery is best effort: the request path never waits on it and failures
// are only logged.
type WebhookNotifier struct {
	url    string
	token  string
	client *http.Client
	logger *log.Logger
}

// NewWebhookNotifier returns nil when no hook URL is configured; a nil
// notifier is skipped by the handlers.
func NewWebhookNotifier(url, token string, logger *log.Logger) *WebhookNotifier {
	if url == "" || token == "" {
		return nil
	}
	return &WebhookNotifier{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

type wakePayload struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

// Notify fires the webhook in the background.
func (n *WebhookNotifier) Notify(_ context.Context, text string) {
	go func() {
		payload, err := sonic.ConfigStd.Marshal(wakePayload{Text: "Dashboard: " + text, Mode: "now"})
		if err != nil {
			return
		}
		req, err := http.NewRequest(http.MethodPost, n.url+"/hooks/wake", bytes.NewReader(payload))
		if err != nil {
			return
		}
		req.Header.Set("Authorization", "Bearer "+n.token)
		req.Header.Set("Content-Type", "application/json")
		resp, err := n.client.Do(req)
		if err != nil {
			if n.logger != nil {
				n.logger.WithField("error", err.Error()).Debug("notify webhook failed")
			}
			return
		}
		_ = resp.Body.Close()
	}()
}
