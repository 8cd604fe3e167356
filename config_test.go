package paperscraper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testConfigYAML = `
from: "2024-01-01"
until: "2024-01-31"
interval_days: 5
reverse: true
source:
  kind: oai
  set: cs
  page_delay: 3s
  filter:
    categories: [cs.CL]
fetch:
  base_delay: 10s
  multiplier: 1.5
  max_attempts: 3
  user_agent: corpus-bot
extract:
  extensions: [.tex, .bbl]
classes:
  - name: munich
    output: out/munich.txt
    quota: 100
    predicate:
      type: keyword
      fields: [institutes]
      keywords: [munich]
  - name: rest
    output: out/rest.txt
    predicate:
      type: main
log_file: out/provenance.log
concurrency: 2
logging:
  level: debug
  encoding: json
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, testConfigYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "2024-01-01", cfg.From)
	assert.Equal(t, 5, cfg.IntervalDays)
	assert.True(t, cfg.Reverse)
	assert.Equal(t, "cs", cfg.Source.Set)
	assert.Equal(t, 3*time.Second, cfg.Source.PageDelay)
	assert.Equal(t, map[string][]string{"categories": {"cs.CL"}}, cfg.Source.Filter)
	assert.Equal(t, 10*time.Second, cfg.Fetch.BaseDelay)
	assert.Equal(t, 1.5, cfg.Fetch.Multiplier)
	assert.Equal(t, 3, cfg.Fetch.MaxAttempts)
	assert.Equal(t, []string{".tex", ".bbl"}, cfg.Extract.Extensions)
	assert.Equal(t, DefaultEPrintBaseURL, cfg.Extract.BaseURL)
	assert.Equal(t, DefaultOAIBaseURL, cfg.Source.OAIBaseURL)
	assert.Equal(t, "debug", cfg.Logging.Level)

	require.Len(t, cfg.Classes, 2)
	assert.Equal(t, []string{"munich"}, cfg.Classes[0].Predicate.Keywords)
	assert.Equal(t, 0, cfg.Classes[1].Quota)

	classes, outputs, err := cfg.BuildClasses()
	require.NoError(t, err)
	assert.Equal(t, []string{"out/munich.txt", "out/rest.txt"}, outputs)
	assert.Equal(t, "munich", classes[0].Name)
	assert.Equal(t, 100, classes[0].Quota)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PAPERSCRAPER_SET", "physics")
	t.Setenv("PAPERSCRAPER_UNTIL", "2024-01-15")
	t.Setenv("PAPERSCRAPER_CONCURRENCY", "8")
	t.Setenv("PAPERSCRAPER_BASE_DELAY", "1m")

	cfg, err := Load(writeConfig(t, testConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, "physics", cfg.Source.Set)
	assert.Equal(t, "2024-01-15", cfg.Until)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, time.Minute, cfg.Fetch.BaseDelay)

	t.Setenv("PAPERSCRAPER_CONCURRENCY", "many")
	_, err = Load(writeConfig(t, testConfigYAML))
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults(time.Date(2024, 3, 17, 15, 0, 0, 0, time.UTC))

	assert.Equal(t, "2024-03-01", cfg.From)
	assert.Equal(t, "2024-03-17", cfg.Until)
	assert.Equal(t, 10, cfg.IntervalDays)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, "oai", cfg.Source.Kind)
	assert.Equal(t, DefaultBaseDelay, cfg.Fetch.BaseDelay)
	assert.Equal(t, DefaultMaxAttempts, cfg.Fetch.MaxAttempts)
	assert.Equal(t, DefaultArchiveContentType, cfg.Extract.ContentType)
	assert.Equal(t, []string{""}, cfg.Extract.Extensions)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			Source:  SourceConfig{Set: "cs"},
			Classes: []ClassConfig{{Output: "a.txt"}},
			LogFile: "log.txt",
		}
		cfg.SetDefaults(time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC))
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(*Config){
		"bad date":          func(c *Config) { c.From = "yesterday" },
		"inverted range":    func(c *Config) { c.From, c.Until = c.Until, c.From },
		"no classes":        func(c *Config) { c.Classes = nil },
		"no output":         func(c *Config) { c.Classes[0].Output = "" },
		"shared output":     func(c *Config) { c.Classes = append(c.Classes, ClassConfig{Output: "a.txt"}) },
		"output is log":     func(c *Config) { c.Classes[0].Output = "log.txt" },
		"no log":            func(c *Config) { c.LogFile = "" },
		"no set":            func(c *Config) { c.Source.Set = "" },
		"search no query":   func(c *Config) { c.Source.Kind = "search" },
		"unknown source":    func(c *Config) { c.Source.Kind = "s3" },
		"upper case set":    func(c *Config) { c.Source.Kind, c.Source.Set = "OAI", "" },
		"bad predicate":     func(c *Config) { c.Classes[0].Predicate.Type = "regex" },
		"zero concurrency":  func(c *Config) { c.Concurrency = 0 },
		"shrinking backoff": func(c *Config) { c.Fetch.Multiplier = 0.5 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigSourceKindIgnoresCase(t *testing.T) {
	cfg := &Config{
		Source:  SourceConfig{Kind: "OAI", Set: "cs"},
		Classes: []ClassConfig{{Output: "a.txt"}},
		LogFile: "log.txt",
	}
	cfg.SetDefaults(time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC))
	require.NoError(t, cfg.Validate())

	src, err := cfg.NewSource(cfg.NewFetcher(zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Harvester{}, src)

	cfg.Source = SourceConfig{Kind: "Search", Query: "cat:cs.CL"}
	require.NoError(t, cfg.Validate())
	src, err = cfg.NewSource(cfg.NewFetcher(zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SearchSource{}, src)
}

func TestConfigOptions(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		From:    "2024-01-01",
		Until:   "2024-01-03",
		Source:  SourceConfig{Kind: "search", Query: "cat:cs.CL"},
		Classes: []ClassConfig{{Name: "all", Output: filepath.Join(dir, "all.txt")}},
		LogFile: filepath.Join(dir, "log.txt"),
	}
	cfg.SetDefaults(time.Now())

	opts, err := cfg.Options(zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SearchSource{}, opts.Source)
	assert.Equal(t, []string{filepath.Join(dir, "all.txt")}, opts.Writer.Outputs())
	assert.FileExists(t, filepath.Join(dir, "all.txt"))

	s, err := New(opts)
	require.NoError(t, err)
	assert.NotNil(t, s)
}
