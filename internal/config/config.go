package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string

	// Auth
	OutlinerAPIKey string

	// LLM oracle
	AnthropicAPIKey string
	AnthropicModel  string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// Storage
	DBDir string

	// Structure inference
	TOCCheckPages       int
	MaxPagesPerNode     int
	MaxTokensPerNode    int
	VerifySampleSize    int
	VerifyThreshold     float64
	MaxLLMWorkers       int
	GenerateSummaries   bool
	GenerateDescription bool

	// PDF extraction
	MinCharsPerPage      int
	MaxCharsPerPage      int
	PDFFallbackPdftotext bool
}

// fileConfig is the optional YAML overlay. Zero values mean "not set" and
// leave the environment-derived value alone.
type fileConfig struct {
	Port                string  `yaml:"port"`
	AnthropicModel      string  `yaml:"anthropic_model"`
	WorkerCount         int     `yaml:"worker_count"`
	DBDir               string  `yaml:"db_dir"`
	TOCCheckPages       int     `yaml:"toc_check_pages"`
	MaxPagesPerNode     int     `yaml:"max_pages_per_node"`
	MaxTokensPerNode    int     `yaml:"max_tokens_per_node"`
	VerifySampleSize    int     `yaml:"verify_sample_size"`
	VerifyThreshold     float64 `yaml:"verify_threshold"`
	MaxLLMWorkers       int     `yaml:"max_llm_workers"`
	GenerateSummaries   *bool   `yaml:"generate_summaries"`
	GenerateDescription *bool   `yaml:"generate_description"`
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		OutlinerAPIKey: os.Getenv("OUTLINER_API_KEY"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 50),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		DBDir: envOr("DB_DIR", "data"),

		TOCCheckPages:       envInt("TOC_CHECK_PAGES", 20),
		MaxPagesPerNode:     envInt("MAX_PAGES_PER_NODE", 20),
		MaxTokensPerNode:    envInt("MAX_TOKENS_PER_NODE", 20000),
		VerifySampleSize:    envInt("VERIFY_SAMPLE_SIZE", 10),
		VerifyThreshold:     envFloat("VERIFY_THRESHOLD", 0.6),
		MaxLLMWorkers:       envInt("MAX_LLM_WORKERS", 5),
		GenerateSummaries:   envBool("GENERATE_SUMMARIES", false),
		GenerateDescription: envBool("GENERATE_DESCRIPTION", true),

		MinCharsPerPage:      envInt("MIN_CHARS_PER_PAGE", 40),
		MaxCharsPerPage:      envInt("MAX_CHARS_PER_PAGE", 12000),
		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if path := findConfigFile(os.Getenv("OUTLINER_CONFIG")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			// A broken overlay file should not take the service down.
			fmt.Fprintf(os.Stderr, "config file %s ignored: %v\n", path, err)
		}
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 50
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.VerifyThreshold <= 0 || cfg.VerifyThreshold > 1 {
		cfg.VerifyThreshold = 0.6
	}

	return cfg
}

// DefaultConfigFile is looked up in the working directory when
// OUTLINER_CONFIG is not set.
const DefaultConfigFile = ".outliner.yaml"

func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	return ""
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if fc.Port != "" {
		c.Port = fc.Port
	}
	if fc.AnthropicModel != "" {
		c.AnthropicModel = fc.AnthropicModel
	}
	if fc.WorkerCount > 0 {
		c.WorkerCount = fc.WorkerCount
	}
	if fc.DBDir != "" {
		c.DBDir = fc.DBDir
	}
	if fc.TOCCheckPages > 0 {
		c.TOCCheckPages = fc.TOCCheckPages
	}
	if fc.MaxPagesPerNode > 0 {
		c.MaxPagesPerNode = fc.MaxPagesPerNode
	}
	if fc.MaxTokensPerNode > 0 {
		c.MaxTokensPerNode = fc.MaxTokensPerNode
	}
	if fc.VerifySampleSize > 0 {
		c.VerifySampleSize = fc.VerifySampleSize
	}
	if fc.VerifyThreshold > 0 {
		c.VerifyThreshold = fc.VerifyThreshold
	}
	if fc.MaxLLMWorkers > 0 {
		c.MaxLLMWorkers = fc.MaxLLMWorkers
	}
	if fc.GenerateSummaries != nil {
		c.GenerateSummaries = *fc.GenerateSummaries
	}
	if fc.GenerateDescription != nil {
		c.GenerateDescription = *fc.GenerateDescription
	}
	return nil
}

func (c Config) Validate() error {
	if c.OutlinerAPIKey == "" {
		return fmt.Errorf("OUTLINER_API_KEY is required")
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
