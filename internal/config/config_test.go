package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Make sure ambient env and a stray .outliner.yaml can't leak in.
	t.Setenv("OUTLINER_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	for _, key := range []string{"PORT", "ANTHROPIC_MODEL", "WORKER_COUNT", "VERIFY_THRESHOLD", "JOB_TTL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8090" {
		t.Errorf("default port: got %q", cfg.Port)
	}
	if cfg.WorkerCount != 2 {
		t.Errorf("default worker count: got %d", cfg.WorkerCount)
	}
	if cfg.TOCCheckPages != 20 || cfg.MaxPagesPerNode != 20 {
		t.Errorf("default structure limits: %d / %d", cfg.TOCCheckPages, cfg.MaxPagesPerNode)
	}
	if cfg.VerifyThreshold != 0.6 || cfg.VerifySampleSize != 10 {
		t.Errorf("default verify settings: %f / %d", cfg.VerifyThreshold, cfg.VerifySampleSize)
	}
	if cfg.JobTTL != time.Hour {
		t.Errorf("default job ttl: %s", cfg.JobTTL)
	}
	if !cfg.GenerateDescription || cfg.GenerateSummaries {
		t.Errorf("default toggles: description=%v summaries=%v", cfg.GenerateDescription, cfg.GenerateSummaries)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OUTLINER_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("PORT", "9000")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("VERIFY_THRESHOLD", "0.9")
	t.Setenv("JOB_TTL", "30m")
	t.Setenv("GENERATE_SUMMARIES", "true")

	cfg := Load()
	if cfg.Port != "9000" || cfg.WorkerCount != 8 {
		t.Errorf("env overrides ignored: %q / %d", cfg.Port, cfg.WorkerCount)
	}
	if cfg.VerifyThreshold != 0.9 {
		t.Errorf("threshold override: %f", cfg.VerifyThreshold)
	}
	if cfg.JobTTL != 30*time.Minute {
		t.Errorf("ttl override: %s", cfg.JobTTL)
	}
	if !cfg.GenerateSummaries {
		t.Error("summary toggle override ignored")
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outliner.yaml")
	body := `port: "7070"
anthropic_model: test-model
verify_threshold: 0.75
max_pages_per_node: 15
generate_description: false
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OUTLINER_CONFIG", path)
	t.Setenv("PORT", "")
	t.Setenv("WORKER_COUNT", "4")

	cfg := Load()
	if cfg.Port != "7070" {
		t.Errorf("yaml port: got %q", cfg.Port)
	}
	if cfg.AnthropicModel != "test-model" {
		t.Errorf("yaml model: got %q", cfg.AnthropicModel)
	}
	if cfg.VerifyThreshold != 0.75 || cfg.MaxPagesPerNode != 15 {
		t.Errorf("yaml structure settings: %f / %d", cfg.VerifyThreshold, cfg.MaxPagesPerNode)
	}
	if cfg.GenerateDescription {
		t.Error("yaml false bool ignored")
	}
	// Env settings the file does not mention survive.
	if cfg.WorkerCount != 4 {
		t.Errorf("env worker count clobbered: %d", cfg.WorkerCount)
	}
}

func TestLoad_BrokenYAMLIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("{ unclosed: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OUTLINER_CONFIG", path)
	t.Setenv("PORT", "")

	cfg := Load()
	if cfg.Port != "8090" {
		t.Errorf("broken overlay must leave defaults intact, got port %q", cfg.Port)
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error with no API keys")
	}
	cfg.OutlinerAPIKey = "svc-key"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error with no Anthropic key")
	}
	cfg.AnthropicAPIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}
