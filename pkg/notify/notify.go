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

// Package notify delivers formatted change messages to a messaging
// endpoint. Messages use a small HTML subset (<b>, <i>) that each
// transport renders or strips.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"sync"
)

var (
	// ErrNotification is returned when a transport fails to deliver.
	ErrNotification = errors.New("notification failed")

	// ErrBotTokenRequired is returned when Telegram has no bot token.
	ErrBotTokenRequired = errors.New("telegram bot token is required")

	// ErrChatIDRequired is returned when Telegram has no chat id.
	ErrChatIDRequired = errors.New("telegram chat id is required")

	// ErrWebhookRequired is returned when Slack has no webhook URL.
	ErrWebhookRequired = errors.New("slack webhook url is required")
)

// Notifier delivers a single message.
type Notifier interface {
	Notify(ctx context.Context, message string) error
	Name() string
}

var tagPattern = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)

// StripMarkup removes tags and unescapes entities.
func StripMarkup(message string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(message, ""))
}

// Writer prints messages as plain text.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a notifier that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (n *Writer) Name() string { return "writer" }

// Notify writes the message followed by a newline.
func (n *Writer) Notify(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	text := StripMarkup(message)
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if _, err := io.WriteString(n.w, text); err != nil {
		return fmt.Errorf("%w: %w", ErrNotification, err)
	}
	return nil
}

// Multi fans a message out to several notifiers. Every notifier is tried;
// failures are joined.
type Multi []Notifier

func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, n := range m {
		names[i] = n.Name()
	}
	return strings.Join(names, ",")
}

// Notify delivers to every notifier in order.
func (m Multi) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// splitMessage breaks message into chunks of at most limit runes, preferring
// line boundaries. A single line longer than limit is hard-split, never
// inside an HTML tag or entity. Blank chunks are dropped.
func splitMessage(message string, limit int) []string {
	if limit <= 0 || len([]rune(message)) <= limit {
		return []string{message}
	}

	var chunks []string
	var current []rune
	flush := func() {
		if chunk := strings.TrimRight(string(current), "\n"); chunk != "" {
			chunks = append(chunks, chunk)
		}
		current = current[:0]
	}

	for _, line := range strings.SplitAfter(message, "\n") {
		runes := []rune(line)
		if len(current)+len(runes) > limit {
			flush()
		}
		for len(runes) > limit {
			cut := markupSafeCut(runes, limit)
			chunks = append(chunks, string(runes[:cut]))
			runes = runes[cut:]
		}
		current = append(current, runes...)
	}
	flush()
	return chunks
}

// markupSafeCut returns the largest cut point no greater than limit that
// does not fall inside a <tag> or &entity;. It returns limit when the
// markup itself is longer than limit.
func markupSafeCut(runes []rune, limit int) int {
	head := runes[:limit]
	cut := limit
	for _, pair := range [][2]rune{{'&', ';'}, {'<', '>'}} {
		open, closed := lastIndex(head, pair[0]), lastIndex(head, pair[1])
		if open > closed && open < cut {
			cut = open
		}
	}
	if cut == 0 {
		return limit
	}
	return cut
}

func lastIndex(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
