package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"likesync/pkg/auth"
	"likesync/pkg/config"
	errs "likesync/pkg/errors"
	"likesync/pkg/logger"
	"likesync/pkg/metadata"
	"likesync/pkg/metrics"
	"likesync/pkg/poller"
	"likesync/pkg/storage"
	"likesync/pkg/twitter"
	"likesync/pkg/ui"
)

var (
	// Run command flags
	runOnce     bool
	outputDir   string
	concurrent  int
	interval    time.Duration
	users       []string
	accountName string
	metricsAddr string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll liked posts and download their media",
	Long: `Poll the liked posts of every tracked account and download the attached
media into the storage directory.

The bearer token is taken from, in order:
  - the config file or LIKESYNC_BEARER_TOKEN
  - the stored account named by --account
  - the default stored account (see 'likesync auth login')

A rejected token stops the command with exit status 1.`,
	Example: `  # Poll forever with the configured accounts
  likesync run

  # One cycle for two accounts into ./likes
  likesync run --once --user @alice --user bob --output ./likes

  # Expose Prometheus metrics while polling every minute
  likesync run --interval 1m --metrics-addr :9090`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single cycle and exit")
	runCmd.Flags().StringVarP(&outputDir, "output", "o", "", "storage directory (default ./pic)")
	runCmd.Flags().IntVar(&concurrent, "concurrent", 0, "number of concurrent downloads")
	runCmd.Flags().DurationVar(&interval, "interval", 0, "delay between poll cycles")
	runCmd.Flags().StringArrayVarP(&users, "user", "u", nil, "account whose likes to track (repeatable)")
	runCmd.Flags().StringVarP(&accountName, "account", "a", "", "use specific stored account")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

func runFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	if cmd.Flags().Changed("output") {
		flags["output"] = outputDir
	}
	if cmd.Flags().Changed("concurrent") {
		flags["concurrent"] = concurrent
	}
	if cmd.Flags().Changed("interval") {
		flags["interval"] = interval
	}
	if cmd.Flags().Changed("user") {
		flags["user"] = users
	}
	if cmd.Flags().Changed("metrics-addr") {
		flags["metrics-addr"] = metricsAddr
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return flags
}

// resolveToken fills cfg's bearer token from the credential stores when
// the config does not carry one or a stored account was requested
func resolveToken(cfg *config.Config) error {
	if cfg.Twitter.BearerToken != "" && accountName == "" {
		return nil
	}

	credManager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	token, err := credManager.Token(accountName)
	if err != nil {
		if accountName != "" {
			return fmt.Errorf("account %q not found; see 'likesync auth list'", accountName)
		}
		return nil
	}

	cfg.Twitter.BearerToken = token
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, runFlags(cmd))
	if err != nil {
		return err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("likesync starting")

	if err := resolveToken(cfg); err != nil {
		return err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	store, err := storage.NewManager(cfg.Storage.Directory, cfg.Storage.CreateDirectory)
	if err != nil {
		return fmt.Errorf("storage directory unusable (set storage.create_directory to create it): %w", err)
	}
	if n, err := store.CleanTemp(); err != nil {
		log.WithError(err).Warn("Failed to clean temporary files")
	} else if n > 0 {
		log.WithField("count", n).Info("Removed temporary files from an interrupted run")
	}

	client := twitter.NewClientFromConfig(cfg, log)
	p := poller.New(client, store, poller.Options{
		Usernames:           cfg.Twitter.Usernames,
		PollInterval:        cfg.Twitter.PollInterval,
		ConcurrentDownloads: cfg.Download.ConcurrentDownloads,
		DownloadTimeout:     cfg.Download.Timeout,
	}, log)

	if cfg.Storage.WriteManifest {
		manifest := metadata.NewManifest(store.GetOutputDir())
		if n, err := manifest.Prune(store.GetOutputDir()); err != nil {
			log.WithError(err).Warn("Failed to prune download manifest")
		} else if n > 0 {
			log.WithField("removed", n).Debug("Pruned manifest records for deleted files")
		}
		p.SetRecorder(manifest)
	}

	srv := metrics.StartServer(cfg.Metrics.Address, log)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metrics.Shutdown(ctx, srv)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.PrintLogo()
	ui.PrintInfo("Tracking", fmt.Sprint(cfg.Twitter.Usernames))
	ui.PrintInfo("Output", store.GetOutputDir())

	if runOnce {
		err = p.RunOnce(ctx)
		if ctx.Err() != nil {
			err = nil
		}
	} else {
		err = p.Run(ctx)
	}

	if err != nil {
		if errs.IsAuth(err) {
			ui.PrintError("The X API rejected the bearer token", "run 'likesync auth login' to store a new one")
			return err
		}
		log.WithError(err).Error("likesync stopped")
		return err
	}

	log.WithField("saved", store.GetSavedCount()).Info("likesync stopped")
	return nil
}
