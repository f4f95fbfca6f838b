// Package config loads the backtest configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"wsb-sentiment-lab/internal/domain"
)

// Config is the full run configuration. It is built once at startup and
// passed to the components that need it.
type Config struct {
	Corpus  CorpusConfig        `yaml:"corpus"`
	Window  WindowConfig        `yaml:"window"`
	Tickers []string            `yaml:"tickers"`
	Aliases map[string][]string `yaml:"aliases"` // per-ticker overrides of the built-in alias sets
	Oracle  OracleConfig        `yaml:"oracle"`
	Prices  PricesConfig        `yaml:"prices"`
	Signal  SignalConfig        `yaml:"signal"`
	Output  OutputConfig        `yaml:"output"`
	Storage StorageConfig       `yaml:"storage"`
	Log     LogConfig           `yaml:"log"`
	Metrics MetricsConfig       `yaml:"metrics"`
	Server  ServerConfig        `yaml:"server"`
}

type CorpusConfig struct {
	Path            string `yaml:"path"`
	TimestampColumn string `yaml:"timestamp_column"`
	TitleColumn     string `yaml:"title_column"`
	BodyColumn      string `yaml:"body_column"`
	ChunkSize       int    `yaml:"chunk_size"`
}

// WindowConfig is the inclusive backtest date range (YYYY-MM-DD).
type WindowConfig struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type OracleConfig struct {
	Kind      string        `yaml:"kind"` // http or lexicon
	URL       string        `yaml:"url"`
	Models    []string      `yaml:"models"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

type PricesConfig struct {
	Source     string `yaml:"source"` // yahoo, csv or clickhouse
	Path       string `yaml:"path"`   // snapshot file for the csv source
	YahooURL   string `yaml:"yahoo_url"`
	BufferDays int    `yaml:"buffer_days"`
}

type SignalConfig struct {
	MinPosts int `yaml:"min_posts"` // 0 keeps every group
}

type OutputConfig struct {
	CSVPath      string `yaml:"csv_path"`
	MarkdownPath string `yaml:"markdown_path"`
}

type StorageConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Detailed bool   `yaml:"detailed"`
	Tracing  bool   `yaml:"tracing"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Oracle kinds.
const (
	OracleHTTP    = "http"
	OracleLexicon = "lexicon"
)

// Price sources.
const (
	PricesYahoo      = "yahoo"
	PricesCSV        = "csv"
	PricesClickhouse = "clickhouse"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads a YAML file, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Corpus.Path == "" {
		c.Corpus.Path = "data/wallstreetbets_2022.csv"
	}
	if c.Corpus.TimestampColumn == "" {
		c.Corpus.TimestampColumn = "timestamp"
	}
	if c.Corpus.TitleColumn == "" {
		c.Corpus.TitleColumn = "title"
	}
	if c.Corpus.BodyColumn == "" {
		c.Corpus.BodyColumn = "body"
	}
	if c.Corpus.ChunkSize == 0 {
		c.Corpus.ChunkSize = 100_000
	}
	if c.Window.Start == "" {
		c.Window.Start = "2022-04-01"
	}
	if c.Window.End == "" {
		c.Window.End = "2022-12-31"
	}
	if len(c.Tickers) == 0 {
		c.Tickers = []string{"TSLA", "AAPL", "MSFT", "NVDA", "AMD", "GME"}
	}
	if c.Oracle.Kind == "" {
		c.Oracle.Kind = OracleHTTP
	}
	if c.Oracle.URL == "" {
		c.Oracle.URL = "http://localhost:5051/predict"
	}
	if len(c.Oracle.Models) == 0 {
		c.Oracle.Models = []string{"distilbert"}
	}
	if c.Oracle.BatchSize == 0 {
		c.Oracle.BatchSize = 64
	}
	if c.Oracle.Timeout == 0 {
		c.Oracle.Timeout = 60 * time.Second
	}
	if c.Prices.Source == "" {
		c.Prices.Source = PricesYahoo
	}
	if c.Prices.YahooURL == "" {
		c.Prices.YahooURL = "https://query1.finance.yahoo.com"
	}
	if c.Prices.BufferDays == 0 {
		c.Prices.BufferDays = 7
	}
	if c.Output.CSVPath == "" {
		c.Output.CSVPath = "data/backtest_results.csv"
	}
	if c.Log.Level == "" {
		c.Log.Level = "INFO"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

// ApplyEnv overrides connection settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CORPUS_PATH"); v != "" {
		c.Corpus.Path = v
	}
	if v := os.Getenv("ORACLE_URL"); v != "" {
		c.Oracle.URL = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickhouseDSN = v
	}
}

// Validate checks the configuration for values no run can use.
func (c *Config) Validate() error {
	start, end, err := c.Range()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("window.end %s is before window.start %s", c.Window.End, c.Window.Start)
	}
	if len(c.Tickers) == 0 {
		return errors.New("tickers cannot be empty")
	}
	seen := make(map[string]struct{}, len(c.Tickers))
	for _, t := range c.Tickers {
		if strings.TrimSpace(t) == "" {
			return errors.New("tickers cannot contain empty symbols")
		}
		if _, ok := seen[t]; ok {
			return fmt.Errorf("duplicate ticker %q", t)
		}
		seen[t] = struct{}{}
	}
	for t := range c.Aliases {
		if _, ok := seen[t]; !ok {
			return fmt.Errorf("aliases given for untracked ticker %q", t)
		}
	}
	if c.Corpus.ChunkSize <= 0 {
		return fmt.Errorf("corpus.chunk_size must be positive, got %d", c.Corpus.ChunkSize)
	}
	if c.Oracle.Kind != OracleHTTP && c.Oracle.Kind != OracleLexicon {
		return fmt.Errorf("oracle.kind must be 'http' or 'lexicon', got '%s'", c.Oracle.Kind)
	}
	if len(c.Oracle.Models) == 0 {
		return errors.New("oracle.models cannot be empty")
	}
	models := make(map[string]struct{}, len(c.Oracle.Models))
	for _, m := range c.Oracle.Models {
		if strings.TrimSpace(m) == "" {
			return errors.New("oracle.models cannot contain empty names")
		}
		if _, ok := models[m]; ok {
			return fmt.Errorf("duplicate model %q", m)
		}
		models[m] = struct{}{}
	}
	if c.Oracle.BatchSize <= 0 {
		return fmt.Errorf("oracle.batch_size must be positive, got %d", c.Oracle.BatchSize)
	}
	if c.Oracle.Timeout <= 0 {
		return fmt.Errorf("oracle.timeout must be positive, got %s", c.Oracle.Timeout)
	}
	switch c.Prices.Source {
	case PricesYahoo:
	case PricesCSV:
		if c.Prices.Path == "" {
			return errors.New("prices.path is required for the csv price source")
		}
	case PricesClickhouse:
		if c.Storage.ClickhouseDSN == "" {
			return errors.New("storage.clickhouse_dsn is required for the clickhouse price source")
		}
	default:
		return fmt.Errorf("prices.source must be 'yahoo', 'csv' or 'clickhouse', got '%s'", c.Prices.Source)
	}
	if c.Prices.BufferDays < 1 {
		return fmt.Errorf("prices.buffer_days must be at least 1, got %d", c.Prices.BufferDays)
	}
	if c.Signal.MinPosts < 0 {
		return fmt.Errorf("signal.min_posts cannot be negative, got %d", c.Signal.MinPosts)
	}
	return nil
}

// Range returns the parsed inclusive date window.
func (c *Config) Range() (start, end time.Time, err error) {
	start, err = domain.ParseDate(c.Window.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("window.start: %w", err)
	}
	end, err = domain.ParseDate(c.Window.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("window.end: %w", err)
	}
	return start, end, nil
}

// PriceBuffer is the extra span fetched after the window end so the last
// signals still have a next trading day.
func (c *Config) PriceBuffer() time.Duration {
	return time.Duration(c.Prices.BufferDays) * 24 * time.Hour
}
