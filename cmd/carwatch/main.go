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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/jeremyhahn/carwatch/pkg/adapters"
	"github.com/jeremyhahn/carwatch/pkg/cli"
	"github.com/jeremyhahn/carwatch/pkg/monitor"
	"github.com/jeremyhahn/carwatch/pkg/scheduler"
	"github.com/jeremyhahn/carwatch/pkg/server/rest"
	"github.com/jeremyhahn/carwatch/pkg/version"
)

var (
	cfgFile      string
	viperConfig  *viper.Viper
	globalConfig *cli.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		format := cli.FormatText
		if globalConfig != nil {
			if f, ferr := cli.ParseOutputFormat(globalConfig.OutputFormat); ferr == nil {
				format = f
			}
		}
		fmt.Fprint(os.Stderr, cli.FormatError(err, format))
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "carwatch",
	Short: "Track changes in the Ayvens used-car inventory",
	Long: `carwatch fetches the Ayvens business used-car catalog, saves every response
as a timestamped snapshot and reports which make/model groups appeared,
disappeared or changed their number of trimlines since the previous snapshot.

Supported Storage Backends:
  - local      : Local directory (default)
  - bolt       : Single-file bbolt database
  - sqlite     : SQLite database
  - memory     : In-process, for testing
  - s3         : AWS S3
  - minio      : MinIO (S3-compatible)
  - gcs        : Google Cloud Storage
  - azure      : Azure Blob Storage

Notifiers: telegram (default), slack, stdout.

Configuration can be provided via:
  - Command-line flags (highest priority)
  - Environment variables (CARWATCH_*, TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID)
  - Configuration file (~/.carwatch.yaml or ./.carwatch.yaml)
  - Default values (lowest priority)`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		viperConfig, err = cli.InitConfig(cfgFile)
		if err != nil {
			return err
		}
		if err := viperConfig.BindPFlags(cmd.Flags()); err != nil {
			return fmt.Errorf("failed to bind flags: %w", err)
		}
		globalConfig = cli.GetConfig(viperConfig)
		return nil
	},
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withContext opens the configured store for the duration of fn.
func withContext(fn func(ctx *cli.CommandContext) error) error {
	ctx, err := cli.NewCommandContext(globalConfig, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = ctx.Close() }()
	return fn(ctx)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one fetch, save and compare cycle",
	Long: `Fetch the inventory once, save it as a new snapshot, compare it with the
most recent previous snapshot and send a notification when something changed.
With --dry-run the notification is printed instead of sent.`,
	Example: `  carwatch run                                   # Fetch, compare and notify
  carwatch run --dry-run                         # Print the message instead of sending it
  carwatch run --backend bolt --backend-path carwatch.db`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run") //nolint:errcheck // flags are validated by cobra
		c, cancel := signalContext()
		defer cancel()
		return withContext(func(ctx *cli.CommandContext) error {
			_, err := ctx.RunCommand(c, dryRun)
			return err
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run cycles on a fixed interval",
	Long: `Run a cycle immediately and then every --interval until interrupted.
Failed cycles are logged and the next tick runs as usual.`,
	Example: `  carwatch watch                                 # Hourly
  carwatch watch --interval 15m`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cancel := signalContext()
		defer cancel()
		return withContext(func(ctx *cli.CommandContext) error {
			m, err := ctx.NewMonitor(false)
			if err != nil {
				return err
			}
			s, err := newScheduler(ctx, m)
			if err != nil {
				return err
			}
			return s.Run(c)
		})
	},
}

func newScheduler(ctx *cli.CommandContext, runner scheduler.Runner) (*scheduler.Scheduler, error) {
	return scheduler.New(scheduler.Config{
		Runner:   runner,
		Interval: globalConfig.Interval,
		Logger:   ctx.Logger,
		OnResult: func(result *monitor.CycleResult, err error) {
			if err == nil && result != nil {
				fmt.Fprint(ctx.Stdout, cli.FormatCycleResult(result, cli.OutputFormat(globalConfig.OutputFormat)))
			}
		},
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API and run scheduled cycles",
	Long: `Serve the snapshot REST API and Prometheus metrics on --listen. Unless
--schedule=false is given, cycles also run every --interval. POST
/api/v1/cycles requires "Authorization: Bearer <api-token>" when api-token is set.`,
	Example: `  carwatch serve                                 # API on :8080, hourly cycles
  carwatch serve --listen 127.0.0.1:9090 --interval 30m
  carwatch serve --schedule=false                # Read-only API over existing snapshots`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		schedule, _ := cmd.Flags().GetBool("schedule") //nolint:errcheck // flags are validated by cobra
		c, cancel := signalContext()
		defer cancel()

		return withContext(func(ctx *cli.CommandContext) error {
			m, err := ctx.NewMonitor(false)
			if err != nil {
				return err
			}

			config := rest.DefaultServerConfig()
			config.Addr = globalConfig.Listen
			config.Logger = ctx.Logger
			config.Gatherer = ctx.Registry
			config.EnableRateLimit = true
			if globalConfig.APIToken != "" {
				config.Authenticator = adapters.NewBearerTokenAuthenticator(globalConfig.APIToken)
			}
			if config.AuditLogger, err = ctx.NewAuditLogger(); err != nil {
				return err
			}
			server, err := rest.NewServer(ctx.Store, m, config)
			if err != nil {
				return err
			}

			var s *scheduler.Scheduler
			if schedule {
				if s, err = newScheduler(ctx, m); err != nil {
					return err
				}
			}

			g, gctx := errgroup.WithContext(c)
			g.Go(func() error { return server.Run(gctx) })
			if s != nil {
				g.Go(func() error { return s.Run(gctx) })
			}
			return g.Wait()
		})
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored snapshots, most recent first",
	Example: `  carwatch list
  carwatch list --limit 5 -o table`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit") //nolint:errcheck // flags are validated by cobra
		return withContext(func(ctx *cli.CommandContext) error {
			return ctx.ListCommand(cmd.Context(), limit)
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <snapshot-id|latest>",
	Short: "Print a stored snapshot",
	Long: `Print a stored snapshot payload exactly as it was fetched, or with --parsed
the make/model groups it contains.`,
	Example: `  carwatch show latest
  carwatch show inventory_20260301_101500.json --parsed -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parsed, _ := cmd.Flags().GetBool("parsed") //nolint:errcheck // flags are validated by cobra
		return withContext(func(ctx *cli.CommandContext) error {
			return ctx.ShowCommand(cmd.Context(), args[0], parsed)
		})
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff [from] [to]",
	Short: "Compare two stored snapshots",
	Long: `Compare two stored snapshots without fetching. With no arguments the two
most recent snapshots are compared; with one argument it is compared against
the most recent other snapshot. --raw prints a JSON merge patch between the
stored payloads instead.`,
	Example: `  carwatch diff
  carwatch diff inventory_20260301_091500.json inventory_20260301_101500.json
  carwatch diff --raw`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw") //nolint:errcheck // flags are validated by cobra
		var from, to string
		if len(args) > 0 {
			from = args[0]
		}
		if len(args) > 1 {
			to = args[1]
		}
		return withContext(func(ctx *cli.CommandContext) error {
			if raw {
				return ctx.RawDiffCommand(cmd.Context(), from, to)
			}
			_, err := ctx.DiffCommand(cmd.Context(), from, to)
			return err
		})
	},
}

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "Print changes as snapshots land in the local store",
	Long: `Watch the local snapshot directory and print the changes every time
another process, such as a scheduled 'carwatch run', writes a new snapshot.`,
	Example: `  carwatch follow --backend-path /var/lib/carwatch`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cancel := signalContext()
		defer cancel()
		return withContext(func(ctx *cli.CommandContext) error {
			follower, err := ctx.NewFollower()
			if err != nil {
				return err
			}
			defer func() { _ = follower.Close() }()
			return follower.Run(c)
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	Long:  `Display the effective configuration with secrets masked.`,
	Example: `  carwatch config
  carwatch config -o json
  carwatch --backend s3 --backend-bucket inventory config`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print(cli.DisplayConfig(globalConfig, globalConfig.OutputFormat))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the carwatch version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("carwatch " + version.Get())
	},
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "print the notification instead of sending it")

	watchCmd.Flags().Duration("interval", 0, "time between cycles (default 1h)")

	serveCmd.Flags().String("listen", "", "REST API listen address (default :8080)")
	serveCmd.Flags().Duration("interval", 0, "time between scheduled cycles (default 1h)")
	serveCmd.Flags().Bool("schedule", true, "run cycles on --interval while serving")
	serveCmd.Flags().String("api-token", "", "bearer token required by POST /api/v1/cycles")
	serveCmd.Flags().String("audit-log", "", "audit API requests to a file, or - for stderr")

	listCmd.Flags().Int("limit", 0, "maximum number of snapshots to list (0 for all)")

	showCmd.Flags().Bool("parsed", false, "print the parsed make/model groups")

	diffCmd.Flags().Bool("raw", false, "print a JSON merge patch between the payloads")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.carwatch.yaml)")
	rootCmd.PersistentFlags().String("backend", "local", "storage backend (local, bolt, sqlite, memory, s3, minio, gcs, azure)")
	rootCmd.PersistentFlags().String("backend-path", "./snapshots", "directory or database file for local, bolt and sqlite")
	rootCmd.PersistentFlags().String("backend-bucket", "", "bucket name for cloud backends")
	rootCmd.PersistentFlags().String("backend-region", "", "region for s3")
	rootCmd.PersistentFlags().String("backend-key", "", "access key (s3) or credentials file (gcs)")
	rootCmd.PersistentFlags().String("backend-secret", "", "secret key (s3) or account key (azure)")
	rootCmd.PersistentFlags().String("backend-url", "", "custom endpoint URL for cloud backends")
	rootCmd.PersistentFlags().String("backend-account", "", "storage account name for azure")
	rootCmd.PersistentFlags().String("backend-container", "", "container name for azure (defaults to backend-bucket)")
	rootCmd.PersistentFlags().String("ranking", "creation", "how the most recent snapshot is chosen (creation, name)")
	rootCmd.PersistentFlags().String("location", "Local", "time zone for snapshot names and messages")
	rootCmd.PersistentFlags().String("inventory-url", "", "inventory API endpoint")
	rootCmd.PersistentFlags().Duration("fetch-timeout", 0, "timeout for one inventory request (default 30s)")
	rootCmd.PersistentFlags().Int("fetch-retries", 2, "retries after a transient fetch failure")
	rootCmd.PersistentFlags().String("notifier", "telegram", "notifier (telegram, slack, stdout)")
	rootCmd.PersistentFlags().String("telegram-chat-id", "", "telegram chat id (or TELEGRAM_CHAT_ID)")
	rootCmd.PersistentFlags().String("slack-webhook-url", "", "slack incoming webhook URL")
	rootCmd.PersistentFlags().Duration("notify-timeout", 0, "timeout for one notification request (default 30s)")
	rootCmd.PersistentFlags().StringP("output-format", "o", "text", "output format (text, json, table, yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json, zap)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(followCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
