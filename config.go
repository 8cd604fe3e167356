package paperscraper

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables that override config values.
const EnvPrefix = "PAPERSCRAPER_"

// Config is the file form of a scraping run.
type Config struct {
	// From and Until are YYYY-MM-DD. From defaults to the first day of the
	// current month, Until to today.
	From         string `yaml:"from"`
	Until        string `yaml:"until"`
	IntervalDays int    `yaml:"interval_days"`
	Reverse      bool   `yaml:"reverse"`

	Source  SourceConfig  `yaml:"source"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Extract ExtractConfig `yaml:"extract"`
	Classes []ClassConfig `yaml:"classes"`

	// LogFile receives the provenance log
	LogFile string `yaml:"log_file"`
	// Append keeps existing output and log files instead of truncating them
	Append      bool   `yaml:"append"`
	WorkDir     string `yaml:"work_dir"`
	Concurrency int    `yaml:"concurrency"`

	Logging LoggingConfig `yaml:"logging"`
}

// SourceConfig selects and configures record discovery.
type SourceConfig struct {
	// Kind is "oai" (default) or "search"
	Kind       string              `yaml:"kind"`
	OAIBaseURL string              `yaml:"oai_base_url"`
	Set        string              `yaml:"set"`
	APIBaseURL string              `yaml:"api_base_url"`
	Query      string              `yaml:"query"`
	PageSize   int                 `yaml:"page_size"`
	PageDelay  time.Duration       `yaml:"page_delay"`
	Filter     map[string][]string `yaml:"filter"`
}

// FetchConfig configures HTTP retries.
type FetchConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `yaml:"user_agent"`
}

// ExtractConfig configures e-print downloads.
type ExtractConfig struct {
	BaseURL               string   `yaml:"base_url"`
	ContentType           string   `yaml:"content_type"`
	SingleFileContentType string   `yaml:"single_file_content_type"`
	PDFFallback           bool     `yaml:"pdf_fallback"`
	Extensions            []string `yaml:"extensions"`
}

// ClassConfig describes one output corpus.
type ClassConfig struct {
	Name      string          `yaml:"name"`
	Output    string          `yaml:"output"`
	Quota     int             `yaml:"quota"`
	Predicate PredicateConfig `yaml:"predicate"`
}

// LoggingConfig configures the command's logger.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
	// File, when set, receives a rotated copy of the log
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

// Load reads a config file, applies a .env file from the working directory
// when present, then PAPERSCRAPER_* environment overrides and defaults.
// An empty path starts from defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.SetDefaults(time.Now())
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"FROM":            &c.From,
		"UNTIL":           &c.Until,
		"LOG_FILE":        &c.LogFile,
		"WORK_DIR":        &c.WorkDir,
		"SOURCE":          &c.Source.Kind,
		"SET":             &c.Source.Set,
		"QUERY":           &c.Source.Query,
		"OAI_BASE_URL":    &c.Source.OAIBaseURL,
		"API_BASE_URL":    &c.Source.APIBaseURL,
		"EPRINT_BASE_URL": &c.Extract.BaseURL,
		"USER_AGENT":      &c.Fetch.UserAgent,
		"LOG_LEVEL":       &c.Logging.Level,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	ints := map[string]*int{
		"INTERVAL_DAYS": &c.IntervalDays,
		"CONCURRENCY":   &c.Concurrency,
		"MAX_ATTEMPTS":  &c.Fetch.MaxAttempts,
	}
	for key, dst := range ints {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}
	if v, ok := lookup(EnvPrefix + "BASE_DELAY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sBASE_DELAY: %w", EnvPrefix, err)
		}
		c.Fetch.BaseDelay = d
	}
	return nil
}

// SetDefaults fills unset fields; now anchors the default date range.
func (c *Config) SetDefaults(now time.Time) {
	now = now.UTC()
	if c.From == "" {
		c.From = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).Format(DateLayout)
	}
	if c.Until == "" {
		c.Until = now.Format(DateLayout)
	}
	if c.IntervalDays == 0 {
		c.IntervalDays = 10
	}
	if c.Concurrency == 0 {
		c.Concurrency = 1
	}
	if c.Source.Kind == "" {
		c.Source.Kind = "oai"
	}
	if c.Source.OAIBaseURL == "" {
		c.Source.OAIBaseURL = DefaultOAIBaseURL
	}
	if c.Source.APIBaseURL == "" {
		c.Source.APIBaseURL = DefaultAPIBaseURL
	}
	if c.Fetch.BaseDelay == 0 {
		c.Fetch.BaseDelay = DefaultBaseDelay
	}
	if c.Fetch.Multiplier == 0 {
		c.Fetch.Multiplier = DefaultMultiplier
	}
	if c.Fetch.MaxAttempts == 0 {
		c.Fetch.MaxAttempts = DefaultMaxAttempts
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 60 * time.Second
	}
	if c.Extract.BaseURL == "" {
		c.Extract.BaseURL = DefaultEPrintBaseURL
	}
	if c.Extract.ContentType == "" {
		c.Extract.ContentType = DefaultArchiveContentType
	}
	if len(c.Extract.Extensions) == 0 {
		c.Extract.Extensions = []string{""}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "console"
	}
}

// Validate checks the config before any work starts.
func (c *Config) Validate() error {
	if _, err := c.Range(); err != nil {
		return err
	}
	if c.IntervalDays < 0 {
		return fmt.Errorf("interval_days: must be positive, got %d", c.IntervalDays)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency: must be at least 1, got %d", c.Concurrency)
	}
	switch strings.ToLower(c.Source.Kind) {
	case "oai":
		if c.Source.Set == "" {
			return errors.New("source.set: required for oai source")
		}
	case "search":
		if c.Source.Query == "" {
			return errors.New("source.query: required for search source")
		}
	default:
		return fmt.Errorf("source.kind: unknown %q", c.Source.Kind)
	}
	if c.Fetch.Multiplier < 1 {
		return fmt.Errorf("fetch.multiplier: must be >= 1, got %g", c.Fetch.Multiplier)
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("fetch.max_attempts: must be at least 1, got %d", c.Fetch.MaxAttempts)
	}
	if len(c.Classes) == 0 {
		return errors.New("classes: at least one class is required")
	}
	if c.LogFile == "" {
		return errors.New("log_file: required")
	}
	seen := map[string]bool{c.LogFile: true}
	for i, cc := range c.Classes {
		if cc.Output == "" {
			return fmt.Errorf("classes[%d]: %w: no output", i, ErrClassOutputMismatch)
		}
		if seen[cc.Output] {
			return fmt.Errorf("classes[%d]: output %s used twice", i, cc.Output)
		}
		seen[cc.Output] = true
		if _, err := cc.Predicate.Build(); err != nil {
			return fmt.Errorf("classes[%d]: %w", i, err)
		}
	}
	return nil
}

// Range returns the configured date range.
func (c *Config) Range() (DateRange, error) {
	return ParseDateRange(c.From, c.Until)
}

// BuildClasses returns the classes and their output paths in index order.
func (c *Config) BuildClasses() ([]Class, []string, error) {
	classes := make([]Class, 0, len(c.Classes))
	outputs := make([]string, 0, len(c.Classes))
	for i, cc := range c.Classes {
		pred, err := cc.Predicate.Build()
		if err != nil {
			return nil, nil, fmt.Errorf("classes[%d]: %w", i, err)
		}
		name := cc.Name
		if name == "" {
			name = strconv.Itoa(i)
		}
		classes = append(classes, Class{Name: name, Predicate: pred, Quota: cc.Quota})
		outputs = append(outputs, cc.Output)
	}
	return classes, outputs, nil
}

// NewFetcher builds the shared HTTP fetcher.
func (c *Config) NewFetcher(logger *zap.Logger) *Fetcher {
	return NewFetcher(FetcherOptions{
		Client:      &http.Client{Timeout: c.Fetch.Timeout},
		BaseDelay:   c.Fetch.BaseDelay,
		Multiplier:  c.Fetch.Multiplier,
		MaxAttempts: c.Fetch.MaxAttempts,
		UserAgent:   c.Fetch.UserAgent,
		Logger:      logger,
	})
}

// NewSource builds the configured record source.
func (c *Config) NewSource(fetcher *Fetcher, logger *zap.Logger) (Source, error) {
	filter := RecordFilter(c.Source.Filter)
	switch strings.ToLower(c.Source.Kind) {
	case "oai":
		return NewHarvester(NewOAIClient(fetcher, c.Source.OAIBaseURL), HarvestOptions{
			Set:       c.Source.Set,
			Filter:    filter,
			PageDelay: c.Source.PageDelay,
			Logger:    logger,
		}), nil
	case "search":
		return NewSearchSource(fetcher, SearchOptions{
			BaseURL:   c.Source.APIBaseURL,
			Query:     c.Source.Query,
			PageSize:  c.Source.PageSize,
			Filter:    filter,
			PageDelay: c.Source.PageDelay,
			Logger:    logger,
		}), nil
	}
	return nil, fmt.Errorf("source.kind: unknown %q", c.Source.Kind)
}

// NewExtractor builds the e-print extractor.
func (c *Config) NewExtractor(fetcher *Fetcher, logger *zap.Logger) *Extractor {
	return NewExtractor(fetcher, ExtractorOptions{
		BaseURL:               c.Extract.BaseURL,
		ContentType:           c.Extract.ContentType,
		SingleFileContentType: c.Extract.SingleFileContentType,
		PDFFallback:           c.Extract.PDFFallback,
		Extensions:            c.Extract.Extensions,
		Logger:                logger,
	})
}

// Options validates the config and assembles scraper options. Output files
// are opened (and truncated unless Append is set) here.
func (c *Config) Options(logger *zap.Logger) (Options, error) {
	if err := c.Validate(); err != nil {
		return Options{}, err
	}
	r, err := c.Range()
	if err != nil {
		return Options{}, err
	}
	classes, outputs, err := c.BuildClasses()
	if err != nil {
		return Options{}, err
	}
	fetcher := c.NewFetcher(logger)
	source, err := c.NewSource(fetcher, logger)
	if err != nil {
		return Options{}, err
	}
	writer, err := OpenWriter(outputs, c.LogFile, c.Append)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Source:       source,
		Extractor:    c.NewExtractor(fetcher, logger),
		Classes:      classes,
		Writer:       writer,
		Range:        r,
		IntervalDays: c.IntervalDays,
		Reverse:      c.Reverse,
		WorkDir:      c.WorkDir,
		Concurrency:  c.Concurrency,
		Logger:       logger,
	}, nil
}
