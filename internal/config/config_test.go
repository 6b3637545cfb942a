package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
server:
  port: 9090
database:
  driver: postgres
  host: db.local
  port: 5432
  user: seca
  password: secret
  name: anomalies
minio:
  endpoint: minio.local:9000
  accessKey: ak
  secretKey: sk
  bucketName: imports
  region: us-east-1
  useSSL: false
ai:
  deepseek:
    apiKey: ds-key
    model: deepseek-reasoner
  anthropic:
    apiKey: an-key
  openai:
    apiKey: oa-key
nvd:
  apiKey: nvd-key
import:
  workers: 8
  maxRecords: 5000
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if cfg.AI.DeepSeek.APIKey != "ds-key" || cfg.AI.DeepSeek.Model != "deepseek-reasoner" {
		t.Errorf("deepseek = %+v", cfg.AI.DeepSeek)
	}
	if cfg.NVD.APIKey != "nvd-key" {
		t.Errorf("nvd key = %q", cfg.NVD.APIKey)
	}
	if cfg.Import.Workers != 8 || cfg.Import.MaxRecords != 5000 {
		t.Errorf("import = %+v", cfg.Import)
	}
	if cfg.Minio.Endpoint != "minio.local:9000" {
		t.Errorf("minio endpoint = %q", cfg.Minio.Endpoint)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != "mysql" {
		t.Errorf("default driver = %q, want mysql", cfg.Database.Driver)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "env-ds")
	t.Setenv("ANTHROPIC_API_KEY", "env-an")
	t.Setenv("OPENAI_API_KEY", "env-oa")
	t.Setenv("NVD_API_KEY", "env-nvd")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.DeepSeek.APIKey != "env-ds" {
		t.Errorf("deepseek key = %q, want env override", cfg.AI.DeepSeek.APIKey)
	}
	if cfg.AI.Anthropic.APIKey != "env-an" {
		t.Errorf("anthropic key = %q", cfg.AI.Anthropic.APIKey)
	}
	if cfg.AI.OpenAI.APIKey != "env-oa" {
		t.Errorf("openai key = %q", cfg.AI.OpenAI.APIKey)
	}
	if cfg.NVD.APIKey != "env-nvd" {
		t.Errorf("nvd key = %q", cfg.NVD.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDSNBuilders(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	wantMySQL := "seca:secret@tcp(db.local:5432)/anomalies?parseTime=true&charset=utf8mb4&loc=UTC"
	if got := cfg.MySQLDSN(); got != wantMySQL {
		t.Errorf("MySQLDSN = %q, want %q", got, wantMySQL)
	}

	wantPG := "host=db.local port=5432 user=seca password=secret dbname=anomalies sslmode=disable"
	if got := cfg.PostgresDSN(); got != wantPG {
		t.Errorf("PostgresDSN = %q, want %q", got, wantPG)
	}
}
