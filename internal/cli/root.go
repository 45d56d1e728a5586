// Package cmd wires the enrich CLI surface (spec §6): a single root
// command accepting a mandatory graph-root path plus the configuration
// options in spec §6's table. A --config-file, when given, is combined
// with environment variables and the other flags are ignored; without
// one, flags override environment variables, which override defaults.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kgraph/enrich/internal/build"
	"github.com/kgraph/enrich/internal/config"
)

var (
	cfgFile          string
	graphRoot        string
	basePath         string
	maxConcurrent    int
	maxQueueSize     int
	retryDelay       time.Duration
	maxRetries       int
	dryRun           bool
	backupEnabled    bool
	noBackup         bool
	processVideo     bool
	processSocial    bool
	processPDF       bool
	propertyPrefix   string
	minPreviewLength int
	maxTopicsPerItem int
	extractorTimeout time.Duration
	userAgent        string
	videoAPIToken    string
	socialAPIToken   string
	runTimeout       time.Duration
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "enrich [graph-root]",
	Short: "Enrich a Logseq-style outline knowledge graph with extracted link metadata.",
	Long: `enrich scans a Logseq-style outline graph for unenriched video, social,
and PDF links, fetches metadata for each under a rate-limit-aware scheduler,
and rewrites the owning nodes in place with markers, extraction metadata, and
derived topic tags.

A run is a straight-line Scan -> Queue -> Drain -> Apply -> Report. Exit codes:
0 clean success, 1 fatal (no run), 2 partial success (errors > 0).`,
	Version: build.FullVersion(),
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 1 {
			graphRoot = args[0]
		}

		cfg, err := InitConfigWithError(graphRoot)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			cmd.Usage()
			os.Exit(1)
		}

		fmt.Printf("Configuration initialized successfully\n")
		fmt.Printf("Graph Root: %s\n", cfg.GraphRoot())
		if cfg.BasePath() != "" {
			fmt.Printf("Base Path: %s\n", cfg.BasePath())
		}
		fmt.Printf("Max Concurrent: %d\n", cfg.MaxConcurrent())
		fmt.Printf("Max Queue Size: %d\n", cfg.MaxQueueSize())
		fmt.Printf("Retry Delay: %v\n", cfg.RetryDelay())
		fmt.Printf("Max Retries: %d\n", cfg.MaxRetries())
		fmt.Printf("Dry Run: %t\n", cfg.DryRun())
		fmt.Printf("Backup Enabled: %t\n", cfg.BackupEnabled())
		fmt.Printf("Process Video/Social/PDF: %t/%t/%t\n", cfg.ProcessVideo(), cfg.ProcessSocial(), cfg.ProcessPDF())
		fmt.Printf("Property Prefix: %s\n", cfg.PropertyPrefix())
		fmt.Printf("Min Preview Length: %d\n", cfg.MinPreviewLength())
		fmt.Printf("Max Topics Per Item: %d\n", cfg.MaxTopicsPerItem())
		fmt.Printf("User Agent: %s\n", cfg.UserAgent())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if runTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runTimeout)
			defer cancel()
		}

		report, runErr := Run(ctx, cfg)
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", runErr)
			os.Exit(1)
		}
		if report.ErrorCount > 0 {
			os.Exit(2)
		}
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called by main.main() exactly once.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/config.json)")
	rootCmd.PersistentFlags().StringVar(&basePath, "base-path", "", "optional subdirectory of graph-root to scope the scan to")
	rootCmd.PersistentFlags().IntVar(&maxConcurrent, "max-concurrent", 0, "worker pool size")
	rootCmd.PersistentFlags().IntVar(&maxQueueSize, "max-queue-size", 0, "admission bound for the job queue")
	rootCmd.PersistentFlags().DurationVar(&retryDelay, "retry-delay", 0, "default quiet period when Retry-After is absent")
	rootCmd.PersistentFlags().IntVar(&maxRetries, "max-retries", 0, "maximum retry attempts per job before it is marked failed")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "run the pipeline but skip all applier and backup writes")
	rootCmd.PersistentFlags().BoolVar(&backupEnabled, "backup", false, "enable pre-apply backup/rollback (§4.6)")
	rootCmd.PersistentFlags().BoolVar(&noBackup, "no-backup", false, "disable pre-apply backup/rollback (§4.6)")
	rootCmd.PersistentFlags().BoolVar(&processVideo, "process-video", false, "enable video link extraction")
	rootCmd.PersistentFlags().BoolVar(&processSocial, "process-social", false, "enable social link extraction")
	rootCmd.PersistentFlags().BoolVar(&processPDF, "process-pdf", false, "enable PDF link extraction")
	rootCmd.PersistentFlags().StringVar(&propertyPrefix, "property-prefix", "", "topic property key prefix and topic-index filename prefix")
	rootCmd.PersistentFlags().IntVar(&minPreviewLength, "min-preview-length", 0, "minimum preview/caption characters to feed the topic analyzer")
	rootCmd.PersistentFlags().IntVar(&maxTopicsPerItem, "max-topics-per-item", 0, "maximum topic tags stamped per item")
	rootCmd.PersistentFlags().DurationVar(&extractorTimeout, "extractor-timeout", 0, "per-job extractor HTTP timeout")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "user agent string for extractor HTTP requests")
	rootCmd.PersistentFlags().StringVar(&videoAPIToken, "video-api-token", "", "authenticated credential for the video extractor")
	rootCmd.PersistentFlags().StringVar(&socialAPIToken, "social-api-token", "", "authenticated credential for the social extractor")
	rootCmd.PersistentFlags().DurationVar(&runTimeout, "run-timeout", 0, "cancel the drain barrier after this long (0 disables; SIGINT/SIGTERM always cancel)")
}

// InitConfig reads the config file, environment variables, and CLI flags,
// exiting the process on error. graphRootArg is the mandatory graph-root
// path.
func InitConfig(graphRootArg string) config.Config {
	cfg, err := InitConfigWithError(graphRootArg)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// InitConfigWithError builds the run Config. A config file and the CLI
// flag/positional-arg surface are mutually exclusive, matching the
// teacher's InitConfig pattern: when --config-file is set, it (plus any
// environment variables layered on top of it, per config.WithConfigFile)
// is authoritative and flags are ignored; otherwise the config is built
// from environment variables layered under explicit CLI flags, which take
// final precedence as the most specific, user-typed-this-run source.
func InitConfigWithError(graphRootArg string) (config.Config, error) {
	if cfgFile != "" {
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return config.Config{}, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	if graphRootArg == "" {
		return config.Config{}, fmt.Errorf("%w: graph-root cannot be empty", config.ErrInvalidConfig)
	}

	cfg, err := config.WithEnv(graphRootArg)
	if err != nil {
		return config.Config{}, fmt.Errorf("error initializing config: %w", err)
	}

	builder := config.WithDefault(cfg.GraphRoot()).
		WithBasePath(cfg.BasePath()).
		WithMaxConcurrent(cfg.MaxConcurrent()).
		WithMaxQueueSize(cfg.MaxQueueSize()).
		WithRetryDelay(cfg.RetryDelay()).
		WithMaxRetries(cfg.MaxRetries()).
		WithDryRun(cfg.DryRun()).
		WithBackupEnabled(cfg.BackupEnabled()).
		WithProcessVideo(cfg.ProcessVideo()).
		WithProcessSocial(cfg.ProcessSocial()).
		WithProcessPDF(cfg.ProcessPDF()).
		WithPropertyPrefix(cfg.PropertyPrefix()).
		WithMinPreviewLength(cfg.MinPreviewLength()).
		WithMaxTopicsPerItem(cfg.MaxTopicsPerItem()).
		WithExtractorTimeout(cfg.ExtractorTimeout()).
		WithUserAgent(cfg.UserAgent()).
		WithVideoAPIToken(cfg.VideoAPIToken()).
		WithSocialAPIToken(cfg.SocialAPIToken())

	if basePath != "" {
		builder = builder.WithBasePath(basePath)
	}
	if maxConcurrent > 0 {
		builder = builder.WithMaxConcurrent(maxConcurrent)
	}
	if maxQueueSize > 0 {
		builder = builder.WithMaxQueueSize(maxQueueSize)
	}
	if retryDelay > 0 {
		builder = builder.WithRetryDelay(retryDelay)
	}
	if maxRetries > 0 {
		builder = builder.WithMaxRetries(maxRetries)
	}
	if dryRun {
		builder = builder.WithDryRun(true)
	}
	if backupEnabled {
		builder = builder.WithBackupEnabled(true)
	}
	if noBackup {
		builder = builder.WithBackupEnabled(false)
	}
	if processVideo {
		builder = builder.WithProcessVideo(true)
	}
	if processSocial {
		builder = builder.WithProcessSocial(true)
	}
	if processPDF {
		builder = builder.WithProcessPDF(true)
	}
	if propertyPrefix != "" {
		builder = builder.WithPropertyPrefix(propertyPrefix)
	}
	if minPreviewLength > 0 {
		builder = builder.WithMinPreviewLength(minPreviewLength)
	}
	if maxTopicsPerItem > 0 {
		builder = builder.WithMaxTopicsPerItem(maxTopicsPerItem)
	}
	if extractorTimeout > 0 {
		builder = builder.WithExtractorTimeout(extractorTimeout)
	}
	if userAgent != "" {
		builder = builder.WithUserAgent(userAgent)
	}
	if videoAPIToken != "" {
		builder = builder.WithVideoAPIToken(videoAPIToken)
	}
	if socialAPIToken != "" {
		builder = builder.WithSocialAPIToken(socialAPIToken)
	}

	return builder.Build()
}

func ResetFlags() {
	cfgFile = ""
	graphRoot = ""
	basePath = ""
	maxConcurrent = 0
	maxQueueSize = 0
	retryDelay = 0
	maxRetries = 0
	dryRun = false
	backupEnabled = false
	noBackup = false
	processVideo = false
	processSocial = false
	processPDF = false
	propertyPrefix = ""
	minPreviewLength = 0
	maxTopicsPerItem = 0
	extractorTimeout = 0
	userAgent = ""
	videoAPIToken = ""
	socialAPIToken = ""
	runTimeout = 0
}

// Test helper functions to set flag values from tests.
func SetConfigFileForTest(path string)     { cfgFile = path }
func SetBasePathForTest(path string)       { basePath = path }
func SetMaxConcurrentForTest(n int)        { maxConcurrent = n }
func SetMaxQueueSizeForTest(n int)         { maxQueueSize = n }
func SetRetryDelayForTest(d time.Duration) { retryDelay = d }
func SetMaxRetriesForTest(n int)           { maxRetries = n }
func SetDryRunForTest(dry bool)            { dryRun = dry }
func SetBackupEnabledForTest(b bool)       { backupEnabled = b }
func SetNoBackupForTest(b bool)            { noBackup = b }
func SetProcessVideoForTest(b bool)        { processVideo = b }
func SetProcessSocialForTest(b bool)       { processSocial = b }
func SetProcessPDFForTest(b bool)          { processPDF = b }
func SetPropertyPrefixForTest(p string)    { propertyPrefix = p }
func SetMinPreviewLengthForTest(n int)     { minPreviewLength = n }
func SetMaxTopicsPerItemForTest(n int)     { maxTopicsPerItem = n }
func SetExtractorTimeoutForTest(d time.Duration) { extractorTimeout = d }
func SetUserAgentForTest(agent string)     { userAgent = agent }
func SetVideoAPITokenForTest(tok string)   { videoAPIToken = tok }
func SetSocialAPITokenForTest(tok string)  { socialAPIToken = tok }
func SetRunTimeoutForTest(d time.Duration) { runTimeout = d }
