package snowwhite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

const (
	slackUsername  = "Snow White"
	slackIconEmoji = ":snowwhite:"
)

type slackMessage struct {
	Username  string `json:"username"`
	IconEmoji string `json:"icon_emoji"`
	Channel   string `json:"channel"`
	Text      string `json:"text"`
}

// Notifier posts messages through a Slack incoming webhook.
type Notifier struct {
	client     *http.Client
	webhookURL string
	logger     *log.Logger
}

func NewNotifier(client *http.Client, webhookURL string, logger *log.Logger) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{client: client, webhookURL: webhookURL, logger: logger}
}

// Notify posts text to destination, a channel or a user id, and reports
// whether Slack accepted it.
func (n *Notifier) Notify(ctx context.Context, destination, text string) bool {
	if err := n.Post(ctx, destination, text); err != nil {
		n.logger.Printf("WARN slack post to %s failed: %v", destination, err)
		return false
	}
	return true
}

func (n *Notifier) Post(ctx context.Context, destination, text string) error {
	body, err := json.Marshal(slackMessage{
		Username:  slackUsername,
		IconEmoji: slackIconEmoji,
		Channel:   destination,
		Text:      text,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
