package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRetrievalDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RETRIEVE_TOP_K", "")
	t.Setenv("CANDIDATE_MULTIPLIER", "")
	t.Setenv("FUSION_RRF_K", "")
	t.Setenv("MAX_RETRIES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RetrieveTopK != 30 {
		t.Fatalf("expected default retrieve top k 30, got %d", cfg.RetrieveTopK)
	}
	if cfg.CandidateMultiplier != 5 {
		t.Fatalf("expected default candidate multiplier 5, got %d", cfg.CandidateMultiplier)
	}
	if cfg.FusionRRFK != 60 {
		t.Fatalf("expected default rrf k 60, got %d", cfg.FusionRRFK)
	}
	if cfg.MaxRetries != 3 {
		t.Fatalf("expected default max retries 3, got %d", cfg.MaxRetries)
	}
	if cfg.ThreadStoreBackend != "memory" {
		t.Fatalf("expected default thread store memory, got %q", cfg.ThreadStoreBackend)
	}
}

func TestLoadParsesEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RETRIEVE_TOP_K", "40")
	t.Setenv("RERANK_MIN_SCORE", "0.7")
	t.Setenv("THREAD_STORE_BACKEND", "redis")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RetrieveTopK != 40 {
		t.Fatalf("expected retrieve top k 40, got %d", cfg.RetrieveTopK)
	}
	if cfg.RerankMinScore != 0.7 {
		t.Fatalf("expected rerank min score 0.7, got %v", cfg.RerankMinScore)
	}
	if cfg.ThreadStoreBackend != "redis" {
		t.Fatalf("expected thread store redis, got %q", cfg.ThreadStoreBackend)
	}
}

func TestLoadFileOverlayWinsOverEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "retrieve_top_k: 12\nrerank_max_top_k: 10\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RETRIEVE_TOP_K", "40")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RetrieveTopK != 12 {
		t.Fatalf("expected file value 12 to win, got %d", cfg.RetrieveTopK)
	}
	if cfg.RerankMaxTopK != 10 {
		t.Fatalf("expected rerank max top k 10, got %d", cfg.RerankMaxTopK)
	}
	if cfg.FusionRRFK != 60 {
		t.Fatalf("fields absent from the file must keep env defaults, got %d", cfg.FusionRRFK)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("retrieve_top_k: [broken"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed config file")
	}
}
