package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yourorg/trainlink/internal/browser"
	"github.com/yourorg/trainlink/internal/capture"
	"github.com/yourorg/trainlink/internal/config"
	"github.com/yourorg/trainlink/internal/helper"
	"github.com/yourorg/trainlink/internal/interp"
	"github.com/yourorg/trainlink/internal/notify"
	"github.com/yourorg/trainlink/internal/presence"
	"github.com/yourorg/trainlink/internal/refdata"
	"github.com/yourorg/trainlink/internal/server"
	"github.com/yourorg/trainlink/internal/sessionlog"
	"github.com/yourorg/trainlink/internal/store"
	"github.com/yourorg/trainlink/internal/tracker"
	"github.com/yourorg/trainlink/internal/watcher"
	"github.com/yourorg/trainlink/pkg/types"
)

const defaultConfigContent = `capture:
  dir: ""
  poll_interval: 250ms
  watch: true
  request_header_size: 170
  decode_retries: 10
  decode_retry_delay: 100ms
  remove_retries: 5
  remove_retry_delay: 1s
  read_failures: 5

browser:
  enabled: true
  helper_host: "gametora.com"
  game_path: "umamusume"
  control_url: ""
  headless: false
  retries: 3
  timeout: 10s

archive:
  enabled: true
  dir: ""

refdata:
  path: ""
  cache_size: 4096

server:
  enabled: false
  host: "127.0.0.1"
  port: 3150

log:
  level: "info"
  format: "text"
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	cfgPath string
	debug   bool
}

func (g *globalFlags) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if g.debug {
		cfg.Log.Level = "debug"
	}
	return cfg, setupLogging(cfg.Log), nil
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	var out string

	root := &cobra.Command{
		Use:   "trainlink [archive...]",
		Short: "Training companion for captured game traffic",
		Long: "trainlink follows a training run from captured client traffic.\n" +
			"Given archive paths it replays them into CSV timelines.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return exportArchives(cmd, g, args, out)
		},
	}

	root.PersistentFlags().StringVar(&g.cfgPath, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug output")
	root.Flags().StringVarP(&out, "out", "o", "", "CSV output path")

	root.AddCommand(newInitCmd())
	root.AddCommand(newRunCmd(g))
	root.AddCommand(newExportCmd(g))
	root.AddCommand(newRunsCmd(g))
	root.AddCommand(newSkippedCmd(g))

	return root
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize ~/.trainlink directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseDir, err := config.BaseDir()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(baseDir, 0o755); err != nil {
				return err
			}

			cfgFile := filepath.Join(baseDir, "config.yaml")
			if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgFile, []byte(defaultConfigContent), 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", cfgFile)
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "exists", cfgFile)
			} else {
				return err
			}

			dbPath := filepath.Join(baseDir, "trainlink.db")
			s, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "database ready", dbPath)
			fmt.Fprintln(cmd.OutOrStdout(), "please set refdata.path and capture.dir in", cfgFile)
			return nil
		},
	}
}

func newRunCmd(g *globalFlags) *cobra.Command {
	var serve bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the capture directory and follow the live run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			if serve {
				cfg.Server.Enabled = true
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPipeline(ctx, cfg, logger)
		},
	}
	cmd.Flags().BoolVar(&serve, "serve", false, "start the local status server")
	return cmd
}

func runPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.ValidateRun(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return err
	}
	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ref, err := refdata.Open(cfg.RefData, logger)
	if err != nil {
		return fmt.Errorf("master database: %w", err)
	}
	defer ref.Close()

	center := notify.NewCenter(50, 30*time.Second, logger)

	var br browser.Adapter = browser.Disabled{}
	if cfg.Browser.Enabled {
		br = browser.NewRod(cfg.Browser, logger)
	}
	defer br.Close()

	var archives interp.ArchiveFactory
	if cfg.Archive.Enabled {
		archives = func(cardID, scenarioID, startTime int64) (interp.Archive, error) {
			return sessionlog.Create(cfg.Archive.Dir, cardID, scenarioID, startTime, logger)
		}
	}

	ip := interp.New(interp.Options{
		Browser:  br,
		Presence: presence.NewLog(logger),
		Notifier: center,
		RefData:  ref,
		Store:    st,
		Archives: archives,
		Helper:   helper.New(cfg.Rules, cfg.Helper.Rows, ref, logger),
		Browse:   cfg.Browser,
		Rules:    cfg.Rules,
		Logger:   logger,
	})
	defer ip.Close()

	tr := tracker.New(time.Now(), tracker.Options{
		RemoveRetries:    cfg.Capture.RemoveRetries,
		RemoveRetryDelay: cfg.Capture.RemoveRetryDelay,
		ReadFailures:     cfg.Capture.ReadFailures,
		Store:            st,
		Notifier:         center,
		Logger:           logger,
	})
	w := watcher.New(watcher.Options{
		Dir:          cfg.Capture.Dir,
		PollInterval: cfg.Capture.PollInterval,
		Watch:        cfg.Capture.Watch,
		Decoder: &capture.Decoder{
			HeaderSize:  cfg.Capture.RequestHeaderSize,
			Retries:     cfg.Capture.DecodeRetries,
			RetryDelay:  cfg.Capture.DecodeRetryDelay,
			RequestKeys: cfg.Sanitize.RequestKeys,
			Logger:      logger,
		},
		Handler:  ip,
		Tracker:  tr,
		Notifier: center,
		Logger:   logger,
	})

	if cfg.Server.Enabled {
		srv, err := server.New(server.Options{
			Status:        ip,
			Store:         st,
			Notifications: center,
			Stats:         w,
			Logger:        logger,
		})
		if err != nil {
			return err
		}
		addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
		go func() {
			if err := srv.Serve(ctx, addr); err != nil {
				logger.Error("status server stopped", "addr", addr, "error", err)
			}
		}()
	}

	logger.Info("trainlink started", "captures", cfg.Capture.Dir, "browser", cfg.Browser.Enabled, "archive", cfg.Archive.Enabled)
	return w.Run(ctx)
}

func newExportCmd(g *globalFlags) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <archive>...",
		Short: "Replay run archives into CSV",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return exportArchives(cmd, g, args, out)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "CSV output path")
	return cmd
}

func exportArchives(cmd *cobra.Command, g *globalFlags, paths []string, out string) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	var names sessionlog.Names
	if cfg.RefData.Path != "" {
		ref, err := refdata.Open(cfg.RefData, logger)
		if err != nil {
			logger.Warn("master database unavailable, exporting raw ids", "error", err)
		} else {
			defer ref.Close()
			names = ref
		}
	}
	written, err := sessionlog.NewAnalyzer(names, cfg.Rules, logger).Export(paths, out)
	if err != nil {
		return err
	}
	for _, p := range written {
		fmt.Fprintln(cmd.OutOrStdout(), "wrote", p)
	}
	return nil
}

func newRunsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(g)
			if err != nil {
				return err
			}
			defer st.Close()
			runs, err := st.ListRuns()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSCENARIO\tCARD\tSTATUS\tSTARTED\tARCHIVE")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
					r.ID, types.Scenario(r.ScenarioID), r.CardID, r.Status,
					humanize.Time(r.CreatedAt), archiveSize(r.ArchivePath))
			}
			return tw.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(g)
			if err != nil {
				return err
			}
			defer st.Close()
			r, err := st.GetRun(args[0])
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			o := cmd.OutOrStdout()
			fmt.Fprintln(o, "id:      ", r.ID)
			fmt.Fprintln(o, "scenario:", types.Scenario(r.ScenarioID))
			fmt.Fprintln(o, "card:    ", r.CardID)
			fmt.Fprintln(o, "status:  ", r.Status)
			fmt.Fprintln(o, "started: ", r.CreatedAt.Local().Format(time.DateTime), "("+humanize.Time(r.CreatedAt)+")")
			if r.EndedAt != nil {
				fmt.Fprintln(o, "ended:   ", r.EndedAt.Local().Format(time.DateTime))
			}
			fmt.Fprintln(o, "archive: ", r.ArchivePath, archiveSize(r.ArchivePath))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a run and its archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(g)
			if err != nil {
				return err
			}
			defer st.Close()
			r, err := st.GetRun(args[0])
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			if r.ArchivePath != "" {
				if err := os.Remove(r.ArchivePath); err != nil && !errors.Is(err, os.ErrNotExist) {
					return err
				}
			}
			if err := st.DeleteRun(r.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", r.ID)
			return nil
		},
	})
	return cmd
}

func newSkippedCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "skipped",
		Short: "List capture files that could not be removed",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(g)
			if err != nil {
				return err
			}
			defer st.Close()
			files, err := st.ListSkipped()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tSINCE\tREASON")
			for _, f := range files {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Path, humanize.Time(f.CreatedAt), f.Reason)
			}
			return tw.Flush()
		},
	}
}

func openStore(g *globalFlags) (*store.SQLiteStore, error) {
	cfg, _, err := g.load()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(cfg.Store.Path)
}

func archiveSize(path string) string {
	if path == "" {
		return "-"
	}
	info, err := os.Stat(path)
	if err != nil {
		return "(missing)"
	}
	return humanize.Bytes(uint64(info.Size()))
}

func setupLogging(c config.LogConfig) *slog.Logger {
	var lvl slog.Level
	switch c.Level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if c.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
