package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
remote:
  base_url: https://jira.example.com
  token: secret
storage:
  database_path: /tmp/scan.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scan.PageSize != defaultPageSize {
		t.Errorf("expected default page size %d, got %d", defaultPageSize, cfg.Scan.PageSize)
	}
	if cfg.Scan.WorkerCount != defaultWorkerCount {
		t.Errorf("expected default worker count %d, got %d", defaultWorkerCount, cfg.Scan.WorkerCount)
	}
	if cfg.Remote.VerifySSL == nil || !*cfg.Remote.VerifySSL {
		t.Errorf("expected verify_ssl to default true")
	}
	if cfg.Scan.UseContentHash == nil || !*cfg.Scan.UseContentHash {
		t.Errorf("expected use_content_hash to default true")
	}
	if cfg.Storage.CheckpointInterval != defaultCheckpointInterval {
		t.Errorf("expected default checkpoint interval %d, got %d", defaultCheckpointInterval, cfg.Storage.CheckpointInterval)
	}
}

func TestLoadRejectsBothCredentialForms(t *testing.T) {
	path := writeConfig(t, `
remote:
  base_url: https://jira.example.com
  token: secret
  username: bob
storage:
  database_path: /tmp/scan.db
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for both credential forms set")
	}
}

func TestLoadRejectsNoCredentialForm(t *testing.T) {
	path := writeConfig(t, `
remote:
  base_url: https://jira.example.com
storage:
  database_path: /tmp/scan.db
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for no credential form set")
	}
}

func TestLoadRejectsConflictingPredicateForms(t *testing.T) {
	path := writeConfig(t, `
remote:
  base_url: https://jira.example.com
  token: secret
storage:
  database_path: /tmp/scan.db
filters:
  custom_predicate: "project = FOO"
  projects: ["FOO"]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for conflicting predicate forms")
	}
}

func TestEnvOverridesCredentials(t *testing.T) {
	path := writeConfig(t, `
remote:
  base_url: https://jira.example.com
storage:
  database_path: /tmp/scan.db
`)
	t.Setenv("ATTACHMENTSCAN_REMOTE_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Remote.Token != "env-token" {
		t.Errorf("expected env token override, got %q", cfg.Remote.Token)
	}
}

func TestExplicitValuesSurviveDefaulting(t *testing.T) {
	path := writeConfig(t, `
remote:
  base_url: https://jira.example.com
  token: secret
  verify_ssl: false
scan:
  page_size: 25
  use_content_hash: false
storage:
  database_path: /tmp/scan.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scan.PageSize != 25 {
		t.Errorf("expected page_size 25, got %d", cfg.Scan.PageSize)
	}
	if cfg.Remote.VerifySSL == nil || *cfg.Remote.VerifySSL {
		t.Errorf("expected verify_ssl false to survive defaulting")
	}
	if cfg.Scan.UseContentHash == nil || *cfg.Scan.UseContentHash {
		t.Errorf("expected use_content_hash false to survive defaulting")
	}
}
