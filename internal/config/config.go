// Package config defines the immutable run configuration, built in
// layers: built-in defaults, an optional JSON config file, environment
// variables (via caarlos0/env/v11), then explicit builder calls from CLI
// flags — each layer overriding the last (spec §6's option table). The
// CLI applies flag overrides only when no config file is given.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	//===============
	// Graph scope
	//===============
	// graphRoot is the directory holding the Logseq-style outline graph.
	// Mandatory — Build fails without it.
	graphRoot string
	// basePath optionally scopes the scan to a subdirectory of graphRoot.
	basePath string

	//===============
	// Scheduling
	//===============
	maxConcurrent int
	maxQueueSize  int
	retryDelay    time.Duration
	maxRetries    int

	//===============
	// Run mode
	//===============
	dryRun        bool
	backupEnabled bool

	//===============
	// Kind toggles
	//===============
	processVideo  bool
	processSocial bool
	processPDF    bool

	//===============
	// Applier / Topic Analyzer
	//===============
	propertyPrefix   string
	minPreviewLength int
	maxTopicsPerItem int

	//===============
	// Extraction
	//===============
	extractorTimeout time.Duration
	userAgent        string
	videoAPIToken    string
	socialAPIToken   string
}

type configDTO struct {
	GraphRoot        string        `json:"graphRoot" env:"ENRICH_GRAPH_ROOT"`
	BasePath         string        `json:"basePath,omitempty" env:"ENRICH_BASE_PATH"`
	MaxConcurrent    int           `json:"maxConcurrent,omitempty" env:"ENRICH_MAX_CONCURRENT"`
	MaxQueueSize     int           `json:"maxQueueSize,omitempty" env:"ENRICH_MAX_QUEUE_SIZE"`
	RetryDelay       time.Duration `json:"retryDelay,omitempty" env:"ENRICH_RETRY_DELAY"`
	MaxRetries       int           `json:"maxRetries,omitempty" env:"ENRICH_MAX_RETRIES"`
	DryRun           bool          `json:"dryRun,omitempty" env:"ENRICH_DRY_RUN"`
	BackupEnabled    bool          `json:"backupEnabled,omitempty" env:"ENRICH_BACKUP_ENABLED"`
	ProcessVideo     bool          `json:"processVideo,omitempty" env:"ENRICH_PROCESS_VIDEO"`
	ProcessSocial    bool          `json:"processSocial,omitempty" env:"ENRICH_PROCESS_SOCIAL"`
	ProcessPDF       bool          `json:"processPdf,omitempty" env:"ENRICH_PROCESS_PDF"`
	PropertyPrefix   string        `json:"propertyPrefix,omitempty" env:"ENRICH_PROPERTY_PREFIX"`
	MinPreviewLength int           `json:"minPreviewLength,omitempty" env:"ENRICH_MIN_PREVIEW_LENGTH"`
	MaxTopicsPerItem int           `json:"maxTopicsPerItem,omitempty" env:"ENRICH_MAX_TOPICS_PER_ITEM"`
	ExtractorTimeout time.Duration `json:"extractorTimeout,omitempty" env:"ENRICH_EXTRACTOR_TIMEOUT"`
	UserAgent        string        `json:"userAgent,omitempty" env:"ENRICH_USER_AGENT"`
	VideoAPIToken    string        `json:"-" env:"ENRICH_VIDEO_API_TOKEN"`
	SocialAPIToken   string        `json:"-" env:"ENRICH_SOCIAL_API_TOKEN"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	cfg, err := WithDefault(dto.GraphRoot).Build()
	if err != nil {
		return Config{}, err
	}

	if dto.BasePath != "" {
		cfg.basePath = dto.BasePath
	}
	if dto.MaxConcurrent != 0 {
		cfg.maxConcurrent = dto.MaxConcurrent
	}
	if dto.MaxQueueSize != 0 {
		cfg.maxQueueSize = dto.MaxQueueSize
	}
	if dto.RetryDelay != 0 {
		cfg.retryDelay = dto.RetryDelay
	}
	if dto.MaxRetries != 0 {
		cfg.maxRetries = dto.MaxRetries
	}
	cfg.dryRun = dto.DryRun
	cfg.backupEnabled = dto.BackupEnabled || cfg.backupEnabled
	cfg.processVideo = dto.ProcessVideo || cfg.processVideo
	cfg.processSocial = dto.ProcessSocial || cfg.processSocial
	cfg.processPDF = dto.ProcessPDF || cfg.processPDF
	if dto.PropertyPrefix != "" {
		cfg.propertyPrefix = dto.PropertyPrefix
	}
	if dto.MinPreviewLength != 0 {
		cfg.minPreviewLength = dto.MinPreviewLength
	}
	if dto.MaxTopicsPerItem != 0 {
		cfg.maxTopicsPerItem = dto.MaxTopicsPerItem
	}
	if dto.ExtractorTimeout != 0 {
		cfg.extractorTimeout = dto.ExtractorTimeout
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	if dto.VideoAPIToken != "" {
		cfg.videoAPIToken = dto.VideoAPIToken
	}
	if dto.SocialAPIToken != "" {
		cfg.socialAPIToken = dto.SocialAPIToken
	}

	return cfg, nil
}

// WithConfigFile loads a JSON config file, then layers environment
// variables on top of it (env beats file, per spec §6).
func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}

	cfgDTO := configDTO{}
	if err := json.Unmarshal(configContent, &cfgDTO); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}
	if err := env.Parse(&cfgDTO); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	return newConfigFromDTO(cfgDTO)
}

// WithEnv loads configuration from environment variables only, with the
// given graphRoot as the mandatory field a config file would otherwise
// supply.
func WithEnv(graphRoot string) (Config, error) {
	cfgDTO := configDTO{GraphRoot: graphRoot}
	if err := env.Parse(&cfgDTO); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}
	return newConfigFromDTO(cfgDTO)
}

// WithDefault creates a new Config with the given graph root and default
// values for all other fields. graphRoot is mandatory; Build fails if
// it's empty.
func WithDefault(graphRoot string) *Config {
	defaultConfig := Config{
		graphRoot:        graphRoot,
		maxConcurrent:    5,
		maxQueueSize:     10000,
		retryDelay:       30 * time.Second,
		maxRetries:       5,
		dryRun:           false,
		backupEnabled:    true,
		processVideo:     true,
		processSocial:    true,
		processPDF:       true,
		propertyPrefix:   "topic",
		minPreviewLength: 200,
		maxTopicsPerItem: 5,
		extractorTimeout: 20 * time.Second,
		userAgent:        "enrich/1.0",
	}
	return &defaultConfig
}

func (c *Config) WithGraphRoot(root string) *Config {
	c.graphRoot = root
	return c
}

func (c *Config) WithBasePath(path string) *Config {
	c.basePath = path
	return c
}

func (c *Config) WithMaxConcurrent(n int) *Config {
	c.maxConcurrent = n
	return c
}

func (c *Config) WithMaxQueueSize(n int) *Config {
	c.maxQueueSize = n
	return c
}

func (c *Config) WithRetryDelay(d time.Duration) *Config {
	c.retryDelay = d
	return c
}

func (c *Config) WithMaxRetries(n int) *Config {
	c.maxRetries = n
	return c
}

func (c *Config) WithDryRun(dryRun bool) *Config {
	c.dryRun = dryRun
	return c
}

func (c *Config) WithBackupEnabled(enabled bool) *Config {
	c.backupEnabled = enabled
	return c
}

func (c *Config) WithProcessVideo(enabled bool) *Config {
	c.processVideo = enabled
	return c
}

func (c *Config) WithProcessSocial(enabled bool) *Config {
	c.processSocial = enabled
	return c
}

func (c *Config) WithProcessPDF(enabled bool) *Config {
	c.processPDF = enabled
	return c
}

func (c *Config) WithPropertyPrefix(prefix string) *Config {
	c.propertyPrefix = prefix
	return c
}

func (c *Config) WithMinPreviewLength(n int) *Config {
	c.minPreviewLength = n
	return c
}

func (c *Config) WithMaxTopicsPerItem(n int) *Config {
	c.maxTopicsPerItem = n
	return c
}

func (c *Config) WithExtractorTimeout(d time.Duration) *Config {
	c.extractorTimeout = d
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithVideoAPIToken(token string) *Config {
	c.videoAPIToken = token
	return c
}

func (c *Config) WithSocialAPIToken(token string) *Config {
	c.socialAPIToken = token
	return c
}

func (c *Config) Build() (Config, error) {
	if c.graphRoot == "" {
		return Config{}, fmt.Errorf("%w: graphRoot cannot be empty", ErrInvalidConfig)
	}
	return *c, nil
}

func (c Config) GraphRoot() string           { return c.graphRoot }
func (c Config) BasePath() string            { return c.basePath }
func (c Config) MaxConcurrent() int          { return c.maxConcurrent }
func (c Config) MaxQueueSize() int           { return c.maxQueueSize }
func (c Config) RetryDelay() time.Duration   { return c.retryDelay }
func (c Config) MaxRetries() int             { return c.maxRetries }
func (c Config) DryRun() bool                { return c.dryRun }
func (c Config) BackupEnabled() bool         { return c.backupEnabled }
func (c Config) ProcessVideo() bool          { return c.processVideo }
func (c Config) ProcessSocial() bool         { return c.processSocial }
func (c Config) ProcessPDF() bool            { return c.processPDF }
func (c Config) PropertyPrefix() string      { return c.propertyPrefix }
func (c Config) MinPreviewLength() int       { return c.minPreviewLength }
func (c Config) MaxTopicsPerItem() int       { return c.maxTopicsPerItem }
func (c Config) ExtractorTimeout() time.Duration { return c.extractorTimeout }
func (c Config) UserAgent() string           { return c.userAgent }
func (c Config) VideoAPIToken() string       { return c.videoAPIToken }
func (c Config) SocialAPIToken() string      { return c.socialAPIToken }
