// Package config loads pipeline settings from a YAML file with environment
// variable overrides and derives the stage directory layout.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds pipeline configuration. Values come from an optional YAML file and
// may be overridden by environment variables.
type Config struct {
	DataDir    string   `yaml:"data_dir"`
	ResultsDir string   `yaml:"results_dir"`
	XESDir     string   `yaml:"xes_dir"`
	RawCSV     string   `yaml:"raw_csv"`
	Companies  []string `yaml:"companies"`

	SampleFraction float64 `yaml:"sample_fraction"`
	Seed           int64   `yaml:"seed"`

	LogDir   string `yaml:"log_dir"`
	LogLevel string `yaml:"log_level"`

	DictionaryPath     string  `yaml:"dictionary"`
	MinLangConfidence  float64 `yaml:"min_language_confidence"`
	HypothesisTemplate string  `yaml:"hypothesis_template"`
	DecreasingFactor   float64 `yaml:"variant_decreasing_factor"`

	Triton TritonConfig `yaml:"triton"`
	Cache  CacheConfig  `yaml:"cache"`
	S3     S3Config     `yaml:"s3"`

	DatabaseURL    string `yaml:"database_url"`
	PushgatewayURL string `yaml:"pushgateway_url"`
}

// TritonConfig describes the NLI model served by Triton.
type TritonConfig struct {
	BaseURL            string        `yaml:"base_url"`
	Model              string        `yaml:"model"`
	TokenizerPath      string        `yaml:"tokenizer"`
	EntailmentIndex    int           `yaml:"entailment_index"`
	ContradictionIndex int           `yaml:"contradiction_index"`
	PadID              int           `yaml:"pad_id"`
	MaxLength          int           `yaml:"max_length"`
	Timeout            time.Duration `yaml:"timeout"`
	CFAccessClientID   string        `yaml:"cf_access_client_id"`
	CFAccessSecret     string        `yaml:"cf_access_client_secret"`
}

// CacheConfig locates the persistent classification cache.
type CacheConfig struct {
	Path    string `yaml:"path"`
	LRUSize int    `yaml:"lru_size"`
}

// S3Config enables publishing of result artefacts. Publishing is off when Bucket is empty.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // MinIO
	Prefix   string `yaml:"prefix"`
}

// Default returns the stock data/ and results/ directory layout.
func Default() *Config {
	return &Config{
		DataDir:            "data",
		ResultsDir:         "results",
		XESDir:             "xes",
		RawCSV:             "twcs.csv",
		Companies:          []string{"AmazonHelp", "AppleSupport", "SpotifyCares"},
		SampleFraction:     0.02,
		Seed:               1868,
		LogLevel:           "info",
		DictionaryPath:     "en_frequency.txt",
		MinLangConfidence:  0,
		HypothesisTemplate: "{}.",
		DecreasingFactor:   0.7,
		Triton: TritonConfig{
			BaseURL:            "http://localhost:8000",
			Model:              "bart_large_mnli",
			TokenizerPath:      "tokenizer.json",
			EntailmentIndex:    2,
			ContradictionIndex: 0,
			PadID:              1,
			MaxLength:          512,
			Timeout:            30 * time.Second,
		},
		Cache: CacheConfig{
			Path:    "nlp_cache.db",
			LRUSize: 100000,
		},
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "twcs-miner",
		},
	}
}

// Load reads the YAML file at path (if path is non-empty) on top of the defaults
// and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DataDir = getEnvOrDefault("TWCS_DATA_DIR", c.DataDir)
	c.ResultsDir = getEnvOrDefault("TWCS_RESULTS_DIR", c.ResultsDir)
	c.XESDir = getEnvOrDefault("TWCS_XES_DIR", c.XESDir)
	c.RawCSV = getEnvOrDefault("TWCS_RAW_CSV", c.RawCSV)
	if v := os.Getenv("TWCS_COMPANIES"); v != "" {
		c.Companies = splitList(v)
	}
	c.SampleFraction = getFloatEnvOrDefault("TWCS_SAMPLE_FRACTION", c.SampleFraction)
	c.Seed = int64(getIntEnvOrDefault("TWCS_SEED", int(c.Seed)))
	c.LogDir = getEnvOrDefault("LOG_DIR", c.LogDir)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.DictionaryPath = getEnvOrDefault("TWCS_DICTIONARY", c.DictionaryPath)

	c.Triton.BaseURL = getEnvOrDefault("TRITON_BASE_URL", c.Triton.BaseURL)
	c.Triton.Model = getEnvOrDefault("TRITON_MODEL", c.Triton.Model)
	c.Triton.TokenizerPath = getEnvOrDefault("TOKENIZER_PATH", c.Triton.TokenizerPath)
	c.Triton.Timeout = getDurationEnv("TRITON_TIMEOUT", c.Triton.Timeout)
	c.Triton.CFAccessClientID = getEnvOrDefault("CF_ACCESS_CLIENT_ID", c.Triton.CFAccessClientID)
	c.Triton.CFAccessSecret = getEnvOrDefault("CF_ACCESS_CLIENT_SECRET", c.Triton.CFAccessSecret)

	c.Cache.Path = getEnvOrDefault("NLI_CACHE_PATH", c.Cache.Path)

	c.S3.Bucket = getEnvOrDefault("S3_BUCKET", c.S3.Bucket)
	c.S3.Region = getEnvOrDefault("S3_REGION", c.S3.Region)
	c.S3.Endpoint = getEnvOrDefault("S3_ENDPOINT", c.S3.Endpoint)
	c.S3.Prefix = getEnvOrDefault("S3_PREFIX", c.S3.Prefix)

	c.DatabaseURL = getEnvOrDefault("DATABASE_URL", c.DatabaseURL)
	c.PushgatewayURL = getEnvOrDefault("PUSHGATEWAY_URL", c.PushgatewayURL)
}

// Validate checks value ranges that would otherwise fail deep inside a stage.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Companies) == 0 {
		errs = append(errs, errors.New("companies must not be empty"))
	}
	if c.SampleFraction <= 0 || c.SampleFraction > 1 {
		errs = append(errs, fmt.Errorf("sample_fraction must be in (0, 1], got %v", c.SampleFraction))
	}
	if c.DecreasingFactor <= 0 || c.DecreasingFactor > 1 {
		errs = append(errs, fmt.Errorf("variant_decreasing_factor must be in (0, 1], got %v", c.DecreasingFactor))
	}
	if c.Cache.LRUSize < 0 {
		errs = append(errs, fmt.Errorf("cache.lru_size must not be negative, got %d", c.Cache.LRUSize))
	}
	if !strings.Contains(c.HypothesisTemplate, "{}") {
		errs = append(errs, fmt.Errorf("hypothesis_template must contain {}, got %q", c.HypothesisTemplate))
	}
	return errors.Join(errs...)
}

// Directory layout helpers.

func (c *Config) PreprocessedDir() string { return filepath.Join(c.DataDir, "preprocessed") }
func (c *Config) LabeledDir() string      { return filepath.Join(c.DataDir, "labeled") }
func (c *Config) PredictedDir() string    { return filepath.Join(c.DataDir, "predicted") }
func (c *Config) MappingsDir() string     { return filepath.Join(c.DataDir, "topics-activities") }

func (c *Config) TemplatesDir(direction string) string {
	return filepath.Join(c.DataDir, "nli-templates", direction)
}

func (c *Config) CrossValidationDir() string {
	return filepath.Join(c.ResultsDir, "nli-cv")
}

func (c *Config) KeywordResultsDir() string {
	return filepath.Join(c.ResultsDir, "keyword-classification")
}

func (c *Config) DiscoveryDir() string {
	return filepath.Join(c.ResultsDir, "process-discovery")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getFloatEnvOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if dur, err := time.ParseDuration(value); err == nil {
			return dur
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
