// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of carwatch.
//
// carwatch is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Slack posts messages to an incoming webhook.
type Slack struct {
	webhookURL string
	timeout    time.Duration
	client     *http.Client
}

// NewSlack creates a Slack notifier for webhookURL.
func NewSlack(webhookURL string, timeout time.Duration, client *http.Client) (*Slack, error) {
	if strings.TrimSpace(webhookURL) == "" {
		return nil, ErrWebhookRequired
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Slack{webhookURL: webhookURL, timeout: timeout, client: client}, nil
}

func (s *Slack) Name() string { return "slack" }

var (
	boldPattern   = regexp.MustCompile(`(?s)<b>(.*?)</b>`)
	italicPattern = regexp.MustCompile(`(?s)<i>(.*?)</i>`)
)

// ToMrkdwn converts the HTML subset to Slack mrkdwn.
func ToMrkdwn(message string) string {
	out := boldPattern.ReplaceAllString(message, "*$1*")
	out = italicPattern.ReplaceAllString(out, "_${1}_")
	out = tagPattern.ReplaceAllString(out, "")
	out = html.UnescapeString(out)
	// Slack requires these three escaped in text.
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(out)
}

// Notify posts the message to the webhook.
func (s *Slack) Notify(ctx context.Context, message string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"text": ToMrkdwn(message)})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotification, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotification, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: slack request failed", ErrNotification)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: slack status %d: %s", ErrNotification, resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}
	return nil
}
