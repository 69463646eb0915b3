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
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeremyhahn/carwatch/pkg/adapters"
)

const (
	// DefaultTelegramAPI is the Bot API base URL.
	DefaultTelegramAPI = "https://api.telegram.org"

	// TelegramMessageLimit is the maximum message length accepted by sendMessage.
	TelegramMessageLimit = 4096

	// DefaultTimeout bounds a single delivery request.
	DefaultTimeout = 30 * time.Second
)

// TelegramConfig configures the Telegram notifier.
type TelegramConfig struct {
	BotToken   string
	ChatID     string
	APIBaseURL string
	Timeout    time.Duration
	// MessagesPerSecond paces chunked sends. Zero means one per second.
	MessagesPerSecond float64
	HTTPClient        *http.Client
	Logger            adapters.Logger
}

// Telegram sends messages through the Bot API sendMessage method with HTML
// parse mode.
type Telegram struct {
	config  TelegramConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  adapters.Logger
}

// NewTelegram creates a Telegram notifier. Missing credentials fail here
// rather than at send time.
func NewTelegram(config TelegramConfig) (*Telegram, error) {
	if strings.TrimSpace(config.BotToken) == "" {
		return nil, ErrBotTokenRequired
	}
	if strings.TrimSpace(config.ChatID) == "" {
		return nil, ErrChatIDRequired
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = DefaultTelegramAPI
	}
	config.APIBaseURL = strings.TrimRight(config.APIBaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MessagesPerSecond <= 0 {
		config.MessagesPerSecond = 1
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := config.Logger
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	return &Telegram{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.MessagesPerSecond), 1),
		logger:  logger,
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

type telegramRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Notify sends message, split into several messages when it exceeds the
// Telegram length limit.
func (t *Telegram) Notify(ctx context.Context, message string) error {
	chunks := splitMessage(message, TelegramMessageLimit)
	for i, chunk := range chunks {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrNotification, err)
		}
		if err := t.send(ctx, chunk); err != nil {
			return err
		}
		t.logger.Debug(ctx, "Sent Telegram message",
			adapters.Field{Key: "part", Value: i + 1},
			adapters.Field{Key: "parts", Value: len(chunks)},
		)
	}
	return nil
}

func (t *Telegram) send(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	body, err := json.Marshal(telegramRequest{ChatID: t.config.ChatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotification, err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.config.APIBaseURL, t.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotification, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL embeds the bot token; keep it out of the error.
		return fmt.Errorf("%w: telegram request failed: %s", ErrNotification, redact(err.Error(), t.config.BotToken))
	}
	defer func() { _ = resp.Body.Close() }()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var result telegramResponse
	_ = json.Unmarshal(payload, &result)
	if resp.StatusCode != http.StatusOK || !result.OK {
		desc := result.Description
		if desc == "" {
			desc = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: telegram status %d: %s", ErrNotification, resp.StatusCode, desc)
	}
	return nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}
