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

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jeremyhahn/carwatch/pkg/adapters"
	"github.com/jeremyhahn/carwatch/pkg/fetcher"
	"github.com/jeremyhahn/carwatch/pkg/snapshot"
)

// Backend and notifier names accepted in the configuration.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
	BackendMinio  = "minio"
	BackendGCS    = "gcs"
	BackendAzure  = "azure"

	NotifierTelegram = "telegram"
	NotifierSlack    = "slack"
	NotifierStdout   = "stdout"
)

// Config holds the CLI configuration settings.
type Config struct {
	Backend          string
	BackendPath      string
	BackendBucket    string
	BackendRegion    string
	BackendKey       string
	BackendSecret    string
	BackendURL       string
	BackendAccount   string
	BackendContainer string

	Ranking  string
	Location string

	InventoryURL string
	FetchTimeout time.Duration
	FetchRetries int

	Notifier         string
	TelegramBotToken string
	TelegramChatID   string
	SlackWebhookURL  string
	NotifyTimeout    time.Duration

	Interval time.Duration
	Listen   string
	APIToken string
	// AuditLog is "" to disable API auditing, "-" for stderr, or a file path.
	AuditLog string

	OutputFormat string
	LogLevel     string
	LogFormat    string
}

// InitConfig initializes the configuration using Viper.
// Configuration priority: flags > env vars > config file > defaults.
func InitConfig(cfgFile string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("backend", BackendLocal)
	v.SetDefault("backend-path", "./snapshots")
	v.SetDefault("ranking", snapshot.RankByCreation.String())
	v.SetDefault("location", "Local")
	v.SetDefault("inventory-url", fetcher.DefaultURL)
	v.SetDefault("fetch-timeout", fetcher.DefaultTimeout)
	v.SetDefault("fetch-retries", fetcher.DefaultRetries)
	v.SetDefault("notifier", NotifierTelegram)
	v.SetDefault("notify-timeout", 30*time.Second)
	v.SetDefault("interval", time.Hour)
	v.SetDefault("listen", ":8080")
	v.SetDefault("output-format", string(FormatText))
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".carwatch")
		v.SetConfigType("yaml")
	}

	// CARWATCH_BACKEND_PATH maps to backend-path.
	v.SetEnvPrefix("CARWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// The Telegram secrets are also read from their conventional names.
	if err := v.BindEnv("telegram-bot-token", "CARWATCH_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("telegram-chat-id", "CARWATCH_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return v, nil
}

// GetConfig extracts the configuration from Viper into a Config struct.
func GetConfig(v *viper.Viper) *Config {
	return &Config{
		Backend:          v.GetString("backend"),
		BackendPath:      v.GetString("backend-path"),
		BackendBucket:    v.GetString("backend-bucket"),
		BackendRegion:    v.GetString("backend-region"),
		BackendKey:       v.GetString("backend-key"),
		BackendSecret:    v.GetString("backend-secret"),
		BackendURL:       v.GetString("backend-url"),
		BackendAccount:   v.GetString("backend-account"),
		BackendContainer: v.GetString("backend-container"),
		Ranking:          v.GetString("ranking"),
		Location:         v.GetString("location"),
		InventoryURL:     v.GetString("inventory-url"),
		FetchTimeout:     v.GetDuration("fetch-timeout"),
		FetchRetries:     v.GetInt("fetch-retries"),
		Notifier:         v.GetString("notifier"),
		TelegramBotToken: v.GetString("telegram-bot-token"),
		TelegramChatID:   v.GetString("telegram-chat-id"),
		SlackWebhookURL:  v.GetString("slack-webhook-url"),
		NotifyTimeout:    v.GetDuration("notify-timeout"),
		Interval:         v.GetDuration("interval"),
		Listen:           v.GetString("listen"),
		APIToken:         v.GetString("api-token"),
		AuditLog:         v.GetString("audit-log"),
		OutputFormat:     v.GetString("output-format"),
		LogLevel:         v.GetString("log-level"),
		LogFormat:        v.GetString("log-format"),
	}
}

// GetStorageSettings converts Config to storage backend settings.
func (c *Config) GetStorageSettings() map[string]string {
	settings := make(map[string]string)
	put := func(key, value string) {
		if value != "" {
			settings[key] = value
		}
	}

	switch c.Backend {
	case BackendLocal, BackendBolt, BackendSQLite:
		put("path", c.BackendPath)
	case BackendS3, BackendMinio:
		put("bucket", c.BackendBucket)
		put("region", c.BackendRegion)
		put("accessKey", c.BackendKey)
		put("secretKey", c.BackendSecret)
		put("endpoint", c.BackendURL)
		if c.Backend == BackendMinio {
			settings["forcePathStyle"] = "true"
		}
	case BackendGCS:
		put("bucket", c.BackendBucket)
		put("endpoint", c.BackendURL)
		put("credentialsFile", c.BackendKey)
	case BackendAzure:
		put("accountName", c.BackendAccount)
		put("accountKey", c.BackendSecret)
		put("containerName", c.container())
		put("endpoint", c.BackendURL)
	}
	return settings
}

// FactoryBackend returns the registered backend name for c.Backend. MinIO
// is served by the S3 backend.
func (c *Config) FactoryBackend() string {
	if c.Backend == BackendMinio {
		return BackendS3
	}
	return c.Backend
}

func (c *Config) container() string {
	if c.BackendContainer != "" {
		return c.BackendContainer
	}
	return c.BackendBucket
}

// TimeLocation resolves the configured location.
func (c *Config) TimeLocation() (*time.Location, error) {
	if c.Location == "" || c.Location == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocation, c.Location)
	}
	return loc, nil
}

// DisplayConfig formats the current configuration with secrets masked.
func DisplayConfig(cfg *Config, format string) string {
	rows := configRows(cfg)
	switch OutputFormat(format) {
	case FormatJSON:
		return formatJSON(rowsToMap(rows))
	case FormatYAML:
		return formatYAML(rowsToMap(rows))
	case FormatTable:
		return formatConfigTable(rows)
	default:
		return formatConfigText(rows)
	}
}

type configRow struct {
	key   string
	label string
	value string
}

func configRows(cfg *Config) []configRow {
	rows := []configRow{
		{"backend", "Backend", cfg.Backend},
		{"backend_path", "Backend Path", cfg.BackendPath},
		{"backend_bucket", "Backend Bucket", cfg.BackendBucket},
		{"backend_region", "Backend Region", cfg.BackendRegion},
		{"backend_url", "Backend URL", cfg.BackendURL},
		{"backend_account", "Backend Account", cfg.BackendAccount},
		{"backend_container", "Backend Container", cfg.BackendContainer},
		{"backend_key", "Backend Key", maskSecret(cfg.BackendKey)},
		{"backend_secret", "Backend Secret", maskSecret(cfg.BackendSecret)},
		{"ranking", "Ranking", cfg.Ranking},
		{"location", "Location", cfg.Location},
		{"inventory_url", "Inventory URL", cfg.InventoryURL},
		{"fetch_timeout", "Fetch Timeout", cfg.FetchTimeout.String()},
		{"fetch_retries", "Fetch Retries", fmt.Sprintf("%d", cfg.FetchRetries)},
		{"notifier", "Notifier", cfg.Notifier},
		{"telegram_bot_token", "Telegram Token", maskSecret(cfg.TelegramBotToken)},
		{"telegram_chat_id", "Telegram Chat", cfg.TelegramChatID},
		{"slack_webhook_url", "Slack Webhook", maskSecret(cfg.SlackWebhookURL)},
		{"notify_timeout", "Notify Timeout", cfg.NotifyTimeout.String()},
		{"interval", "Interval", cfg.Interval.String()},
		{"listen", "Listen", cfg.Listen},
		{"api_token", "API Token", maskSecret(cfg.APIToken)},
		{"audit_log", "Audit Log", cfg.AuditLog},
		{"output_format", "Output Format", cfg.OutputFormat},
		{"log_level", "Log Level", cfg.LogLevel},
		{"log_format", "Log Format", cfg.LogFormat},
	}
	out := rows[:0]
	for _, row := range rows {
		if row.value != "" {
			out = append(out, row)
		}
	}
	return out
}

func rowsToMap(rows []configRow) map[string]string {
	m := make(map[string]string, len(rows))
	for _, row := range rows {
		m[row.key] = row.value
	}
	return m
}

func formatConfigText(rows []configRow) string {
	var b strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&b, "%s: %s\n", row.label, row.value)
	}
	return b.String()
}

func formatConfigTable(rows []configRow) string {
	var b strings.Builder
	b.WriteString("┌──────────────────┬────────────────────────────────────────┐\n")
	b.WriteString("│ Setting          │ Value                                  │\n")
	b.WriteString("├──────────────────┼────────────────────────────────────────┤\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "│ %-16s │ %-38s │\n", row.label, truncate(row.value, 38))
	}
	b.WriteString("└──────────────────┴────────────────────────────────────────┘\n")
	return b.String()
}

// maskSecret masks sensitive information, showing only first 4 characters.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) < 5 {
		return "****"
	}
	return s[:4] + "****"
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// ValidateConfig validates the storage, output and logging settings shared
// by every command. Notifier secrets are checked by ValidateNotifier.
func ValidateConfig(cfg *Config) error {
	switch cfg.Backend {
	case BackendLocal, BackendBolt, BackendSQLite:
		if cfg.BackendPath == "" {
			return ErrBackendPathRequired
		}
		if strings.HasPrefix(cfg.BackendPath, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			cfg.BackendPath = filepath.Join(home, cfg.BackendPath[1:])
		}
	case BackendMemory:
	case BackendS3, BackendGCS:
		if cfg.BackendBucket == "" {
			return ErrBackendBucketRequired
		}
	case BackendMinio:
		if cfg.BackendBucket == "" {
			return ErrBackendBucketRequired
		}
		if cfg.BackendURL == "" {
			return ErrBackendURLRequired
		}
	case BackendAzure:
		if cfg.BackendAccount == "" {
			return ErrBackendAccountRequired
		}
		if cfg.container() == "" {
			return ErrBackendContainerRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}

	if _, err := ParseOutputFormat(cfg.OutputFormat); err != nil {
		return err
	}
	if _, err := snapshot.ParseRanking(cfg.Ranking); err != nil {
		return err
	}
	if _, err := cfg.TimeLocation(); err != nil {
		return err
	}
	if _, err := adapters.ParseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	if cfg.FetchTimeout <= 0 || cfg.NotifyTimeout <= 0 {
		return fmt.Errorf("%w: fetch-timeout and notify-timeout", ErrInvalidDuration)
	}
	return nil
}

// ValidateNotifier checks that the configured notifier has its secrets.
func ValidateNotifier(cfg *Config) error {
	switch cfg.Notifier {
	case NotifierTelegram:
		if strings.TrimSpace(cfg.TelegramBotToken) == "" {
			return ErrBotTokenRequired
		}
		if strings.TrimSpace(cfg.TelegramChatID) == "" {
			return ErrChatIDRequired
		}
	case NotifierSlack:
		if strings.TrimSpace(cfg.SlackWebhookURL) == "" {
			return ErrWebhookRequired
		}
	case NotifierStdout:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedNotifier, cfg.Notifier)
	}
	return nil
}
