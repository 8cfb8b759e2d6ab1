package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
device:
  api_key: "test_key"
backend:
  base_url: "https://backend.example.com"
database:
  path: "test.db"
sync:
  heartbeat_interval: 30s
  retry_ceiling: 5
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Device.APIKey != "test_key" {
		t.Errorf("expected api_key test_key, got %s", cfg.Device.APIKey)
	}
	if cfg.Sync.HeartbeatInterval.Std() != 30*time.Second {
		t.Errorf("expected heartbeat interval 30s, got %s", cfg.Sync.HeartbeatInterval.Std())
	}
	if cfg.Sync.RetryCeiling != 5 {
		t.Errorf("expected retry ceiling 5, got %d", cfg.Sync.RetryCeiling)
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("TEST_DEVICE_KEY", "secret_from_env")

	yamlContent := `
device:
  api_key: "${TEST_DEVICE_KEY}"
backend:
  base_url: "https://backend.example.com"
database:
  path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Device.APIKey != "secret_from_env" {
		t.Errorf("expected env-expanded api key, got %s", cfg.Device.APIKey)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Device:   DeviceConfig{APIKey: "key"},
				Backend:  BackendConfig{BaseURL: "https://backend"},
				Database: DatabaseConfig{Path: "path"},
			},
			wantErr: false,
		},
		{
			name: "missing api key",
			cfg: Config{
				Backend:  BackendConfig{BaseURL: "https://backend"},
				Database: DatabaseConfig{Path: "path"},
			},
			wantErr: true,
		},
		{
			name: "missing base url",
			cfg: Config{
				Device:   DeviceConfig{APIKey: "key"},
				Database: DatabaseConfig{Path: "path"},
			},
			wantErr: true,
		},
		{
			name: "missing database path",
			cfg: Config{
				Device:  DeviceConfig{APIKey: "key"},
				Backend: BackendConfig{BaseURL: "https://backend"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Sync.HeartbeatInterval.Std() != time.Minute {
		t.Errorf("expected default heartbeat interval 1m, got %s", cfg.Sync.HeartbeatInterval.Std())
	}
	if cfg.Sync.RetryCeiling != 8 {
		t.Errorf("expected default retry ceiling 8, got %d", cfg.Sync.RetryCeiling)
	}
	if cfg.Sync.BackoffExponent != 6 {
		t.Errorf("expected default backoff exponent 6, got %d", cfg.Sync.BackoffExponent)
	}
	if cfg.Auth.MaxAttempts != 3 {
		t.Errorf("expected default auth attempts 3, got %d", cfg.Auth.MaxAttempts)
	}
	if cfg.Monitoring.HealthPort != 8080 {
		t.Errorf("expected default health port 8080, got %d", cfg.Monitoring.HealthPort)
	}
}

func TestDurationUnmarshal(t *testing.T) {
	var parsed struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
	}

	if err := yaml.Unmarshal([]byte("a: 90s\nb: 45\n"), &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.A.Std() != 90*time.Second {
		t.Errorf("expected 90s, got %s", parsed.A.Std())
	}
	if parsed.B.Std() != 45*time.Second {
		t.Errorf("expected bare number to mean seconds, got %s", parsed.B.Std())
	}
}
