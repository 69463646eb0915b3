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
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jeremyhahn/carwatch/pkg/adapters"
	"github.com/jeremyhahn/carwatch/pkg/audit"
	"github.com/jeremyhahn/carwatch/pkg/catalog"
	"github.com/jeremyhahn/carwatch/pkg/common"
	"github.com/jeremyhahn/carwatch/pkg/differ"
	"github.com/jeremyhahn/carwatch/pkg/factory"
	"github.com/jeremyhahn/carwatch/pkg/fetcher"
	"github.com/jeremyhahn/carwatch/pkg/follow"
	"github.com/jeremyhahn/carwatch/pkg/metrics"
	"github.com/jeremyhahn/carwatch/pkg/monitor"
	"github.com/jeremyhahn/carwatch/pkg/notify"
	"github.com/jeremyhahn/carwatch/pkg/report"
	"github.com/jeremyhahn/carwatch/pkg/snapshot"
)

// CommandContext holds the context for executing commands.
type CommandContext struct {
	Config   *Config
	Storage  common.Storage
	Store    *snapshot.Store
	Logger   adapters.Logger
	Location *time.Location
	Registry *prometheus.Registry
	Metrics  *metrics.Prometheus

	// Stdout receives command output. Defaults to os.Stdout.
	Stdout io.Writer

	closers []io.Closer
}

// NewCommandContext validates cfg, sets up logging to logOut and opens the
// configured storage backend.
func NewCommandContext(cfg *Config, logOut io.Writer) (*CommandContext, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if logOut == nil {
		logOut = os.Stderr
	}
	logger, err := adapters.NewLogger(cfg.LogFormat, cfg.LogLevel, logOut)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.TimeLocation()
	if err != nil {
		return nil, err
	}
	ranking, err := snapshot.ParseRanking(cfg.Ranking)
	if err != nil {
		return nil, err
	}

	storage, err := factory.NewStorage(cfg.FactoryBackend(), cfg.GetStorageSettings())
	if err != nil {
		return nil, err
	}
	if l, ok := storage.(interface{ SetLogger(adapters.Logger) }); ok {
		l.SetLogger(logger)
	}
	store, err := snapshot.New(storage,
		snapshot.WithRanking(ranking),
		snapshot.WithLocation(loc),
		snapshot.WithLogger(logger),
	)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &CommandContext{
		Config:   cfg,
		Storage:  storage,
		Store:    store,
		Logger:   logger,
		Location: loc,
		Registry: registry,
		Metrics:  metrics.NewPrometheus(registry),
		Stdout:   os.Stdout,
	}, nil
}

// Close releases the storage backend and any open audit log.
func (ctx *CommandContext) Close() error {
	for _, c := range ctx.closers {
		_ = c.Close()
	}
	ctx.closers = nil
	if ctx.Storage != nil {
		return ctx.Storage.Close()
	}
	return nil
}

// NewAuditLogger opens the configured audit log. It returns nil when
// auditing is disabled.
func (ctx *CommandContext) NewAuditLogger() (audit.AuditLogger, error) {
	config := audit.DefaultConfig()
	switch ctx.Config.AuditLog {
	case "":
		return nil, nil
	case "-":
		config.Output = os.Stderr
	default:
		f, err := os.OpenFile(ctx.Config.AuditLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		ctx.closers = append(ctx.closers, f)
		config.Output = f
	}
	return audit.NewAuditLogger(config), nil
}

func (ctx *CommandContext) format() OutputFormat {
	f, err := ParseOutputFormat(ctx.Config.OutputFormat)
	if err != nil {
		return FormatText
	}
	return f
}

// NewFetcher builds the inventory client from the configuration.
func (ctx *CommandContext) NewFetcher() (*fetcher.Client, error) {
	config := fetcher.DefaultConfig()
	config.URL = ctx.Config.InventoryURL
	config.Timeout = ctx.Config.FetchTimeout
	config.Retry.MaxRetries = ctx.Config.FetchRetries
	config.Logger = ctx.Logger
	return fetcher.New(config)
}

// NewNotifier builds the configured notifier. dryRun replaces it with a
// writer on Stdout.
func (ctx *CommandContext) NewNotifier(dryRun bool) (notify.Notifier, error) {
	if dryRun {
		return notify.NewWriter(ctx.Stdout), nil
	}
	if err := ValidateNotifier(ctx.Config); err != nil {
		return nil, err
	}
	switch ctx.Config.Notifier {
	case NotifierTelegram:
		telegram, err := notify.NewTelegram(notify.TelegramConfig{
			BotToken: ctx.Config.TelegramBotToken,
			ChatID:   ctx.Config.TelegramChatID,
			Timeout:  ctx.Config.NotifyTimeout,
			Logger:   ctx.Logger,
		})
		if err != nil {
			return nil, err
		}
		return telegram, nil
	case NotifierSlack:
		slack, err := notify.NewSlack(ctx.Config.SlackWebhookURL, ctx.Config.NotifyTimeout, nil)
		if err != nil {
			return nil, err
		}
		return slack, nil
	default:
		return notify.NewWriter(ctx.Stdout), nil
	}
}

// NewMonitor wires a Monitor from the configuration. In text mode the
// plain-text change message is echoed to Stdout unless dryRun already
// prints it through the notifier.
func (ctx *CommandContext) NewMonitor(dryRun bool) (*monitor.Monitor, error) {
	client, err := ctx.NewFetcher()
	if err != nil {
		return nil, err
	}
	notifier, err := ctx.NewNotifier(dryRun)
	if err != nil {
		return nil, err
	}
	reporter := report.New(notifier,
		report.WithLocation(ctx.Location),
		report.WithLogger(ctx.Logger),
	)

	var console io.Writer
	if ctx.format() == FormatText && !dryRun {
		console = ctx.Stdout
	}
	return monitor.New(monitor.Config{
		Fetcher:  client,
		Store:    ctx.Store,
		Reporter: reporter,
		Logger:   ctx.Logger,
		Metrics:  ctx.Metrics,
		Console:  console,
	})
}

// RunCommand runs a single cycle and prints its summary.
func (ctx *CommandContext) RunCommand(c context.Context, dryRun bool) (*monitor.CycleResult, error) {
	m, err := ctx.NewMonitor(dryRun)
	if err != nil {
		return nil, err
	}
	result, err := m.RunCycle(c)
	if err != nil {
		return nil, err
	}
	fmt.Fprint(ctx.Stdout, FormatCycleResult(result, ctx.format()))
	return result, nil
}

// ListCommand prints up to limit snapshots, most recent first. A limit of
// zero lists all of them.
func (ctx *CommandContext) ListCommand(c context.Context, limit int) error {
	infos, err := ctx.Store.List(c)
	if err != nil {
		return err
	}
	if limit > 0 && len(infos) > limit {
		infos = infos[:limit]
	}
	fmt.Fprint(ctx.Stdout, FormatSnapshotList(infos, ctx.format()))
	return nil
}

// ShowCommand prints a stored payload verbatim, or the parsed catalog.
// The id "latest" selects the most recent snapshot.
func (ctx *CommandContext) ShowCommand(c context.Context, id string, parsed bool) error {
	if id == "latest" {
		latest, err := ctx.Store.MostRecent(c, "")
		if err != nil {
			return err
		}
		if latest == "" {
			return fmt.Errorf("%w: no snapshots", common.ErrKeyNotFound)
		}
		id = latest
	}

	if !parsed {
		raw, err := ctx.Store.LoadRaw(c, id)
		if err != nil {
			return err
		}
		_, err = ctx.Stdout.Write(raw)
		if err == nil && len(raw) > 0 && raw[len(raw)-1] != '\n' {
			_, err = io.WriteString(ctx.Stdout, "\n")
		}
		return err
	}

	snap, err := ctx.Store.Load(c, id)
	if err != nil {
		return err
	}
	switch ctx.format() {
	case FormatYAML:
		fmt.Fprint(ctx.Stdout, formatYAML(snap))
	case FormatText, FormatTable:
		fmt.Fprint(ctx.Stdout, formatCatalogText(snap))
	default:
		fmt.Fprint(ctx.Stdout, formatJSON(snap))
	}
	return nil
}

func formatCatalogText(snap *catalog.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d groups)\n", snap.ID, snap.Len())
	for _, e := range snap.Entries {
		fmt.Fprintf(&b, "  %-40s %d\n", e.Key().String(), e.Trimlines)
	}
	return b.String()
}

// DiffCommand compares two snapshots. Empty ids resolve as in
// snapshot.Store.ResolvePair.
func (ctx *CommandContext) DiffCommand(c context.Context, from, to string) (differ.Changeset, error) {
	from, to, err := ctx.Store.ResolvePair(c, from, to)
	if err != nil {
		return differ.Changeset{}, err
	}
	previous, err := ctx.Store.Load(c, from)
	if err != nil {
		return differ.Changeset{}, err
	}
	current, err := ctx.Store.Load(c, to)
	if err != nil {
		return differ.Changeset{}, err
	}
	cs := differ.Compare(previous, current)
	view := DiffView{From: from, To: to, Changes: cs}
	fmt.Fprint(ctx.Stdout, FormatDiff(view, time.Now().In(ctx.Location), ctx.format()))
	return cs, nil
}

// RawDiffCommand prints the JSON merge patch that turns the from payload
// into the to payload.
func (ctx *CommandContext) RawDiffCommand(c context.Context, from, to string) error {
	from, to, err := ctx.Store.ResolvePair(c, from, to)
	if err != nil {
		return err
	}
	original, err := ctx.Store.LoadRaw(c, from)
	if err != nil {
		return err
	}
	modified, err := ctx.Store.LoadRaw(c, to)
	if err != nil {
		return err
	}
	patch, err := jsonpatch.CreateMergePatch(original, modified)
	if err != nil {
		return fmt.Errorf("%w: %w", snapshot.ErrCorruptSnapshot, err)
	}
	_, err = fmt.Fprintln(ctx.Stdout, string(patch))
	return err
}

// NewFollower watches the local snapshot directory and prints every update.
func (ctx *CommandContext) NewFollower() (*follow.Follower, error) {
	if ctx.Config.Backend != BackendLocal {
		return nil, ErrFollowRequiresLocal
	}
	return follow.New(follow.Config{
		Dir:    ctx.Config.BackendPath,
		Store:  ctx.Store,
		Logger: ctx.Logger,
		OnUpdate: func(c context.Context, update follow.Update) {
			view := DiffView{From: update.PreviousID, To: update.SnapshotID, Changes: update.Changes}
			if update.FirstRun && ctx.format() == FormatText {
				fmt.Fprintf(ctx.Stdout, "%s: first snapshot, nothing to compare\n", update.SnapshotID)
				return
			}
			fmt.Fprint(ctx.Stdout, FormatDiff(view, time.Now().In(ctx.Location), ctx.format()))
		},
	})
}
