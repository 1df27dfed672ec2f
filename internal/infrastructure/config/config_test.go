package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validJWTSecret meets the 32-character minimum requirement.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
api:
  port: 9090
routes:
  allow: ["/js", "/css"]
  disallow: ["/.."]
  api_prefix: "/api/"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
    algorithm: "HS512"
    expiry: "2h"
  hash:
    algorithm: "sha256"
    salt_length: 8
directory:
  backend: static
  users:
    - username: alice
      password_hash: "ab12$deadbeef"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.Security.JWT.Expiry != 2*time.Hour {
		t.Errorf("JWT.Expiry = %v, want 2h", cfg.Security.JWT.Expiry)
	}
	if cfg.Security.JWT.Algorithm != "HS512" {
		t.Errorf("JWT.Algorithm = %q, want HS512", cfg.Security.JWT.Algorithm)
	}
	if cfg.Security.JWT.TokenName != "token" {
		t.Errorf("JWT.TokenName = %q, want default %q", cfg.Security.JWT.TokenName, "token")
	}
	if len(cfg.Routes.Allow) != 2 {
		t.Errorf("Routes.Allow = %v, want 2 entries", cfg.Routes.Allow)
	}
	if got := cfg.Routes.APIRoute(cfg.Routes.Authentication); got != "/api/authentication" {
		t.Errorf("APIRoute(authentication) = %q, want %q", got, "/api/authentication")
	}
	if cfg.Directory.Backend != DirectoryStatic || len(cfg.Directory.Users) != 1 {
		t.Errorf("Directory = %+v, want static backend with one user", cfg.Directory)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_SecretFromEnv(t *testing.T) {
	t.Setenv("DOCGATE_JWT_SECRET", validJWTSecret)

	cfg, err := Load(writeConfig(t, "site:\n  id: env-site\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Security.JWT.Secret != validJWTSecret {
		t.Error("JWT secret should come from DOCGATE_JWT_SECRET")
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = validJWTSecret
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: "site.id"},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: "api.port"},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "missing JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: "secret is required"},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: "at least 32"},
		{name: "asymmetric algorithm", mutate: func(c *Config) { c.Security.JWT.Algorithm = "RS256" }, wantErr: "algorithm"},
		{name: "zero expiry", mutate: func(c *Config) { c.Security.JWT.Expiry = 0 }, wantErr: "expiry"},
		{name: "empty token name", mutate: func(c *Config) { c.Security.JWT.TokenName = "" }, wantErr: "token_name"},
		{name: "salt length zero", mutate: func(c *Config) { c.Security.Hash.SaltLength = 0 }, wantErr: "salt_length"},
		{name: "login page disallowed", mutate: func(c *Config) { c.Routes.Disallow = []string{"/login"} }, wantErr: "must not match"},
		{name: "unknown directory backend", mutate: func(c *Config) { c.Directory.Backend = "ldap" }, wantErr: "directory.backend"},
		{name: "websocket path relative", mutate: func(c *Config) { c.WebSocket.Path = "ws" }, wantErr: "websocket.path"},
		{name: "websocket zero message size", mutate: func(c *Config) { c.WebSocket.MaxMessageSize = 0 }, wantErr: "websocket.max_message_size"},
		{name: "websocket zero ping interval", mutate: func(c *Config) { c.WebSocket.PingInterval = 0 }, wantErr: "websocket.ping_interval"},
		{name: "websocket negative ping interval", mutate: func(c *Config) { c.WebSocket.PingInterval = -5 }, wantErr: "websocket.ping_interval"},
		{name: "websocket zero pong timeout", mutate: func(c *Config) { c.WebSocket.PongTimeout = 0 }, wantErr: "websocket.pong_timeout"},
		{name: "user without name", mutate: func(c *Config) { c.Directory.Users = []UserConfig{{}} }, wantErr: "username"},
		{
			name: "influxdb enabled without bucket",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.Bucket = ""
			},
			wantErr: "influxdb.bucket",
		},
		{
			name: "influxdb disabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.URL = ""
			},
		},
		{
			name: "invalid QoS with MQTT enabled",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: "mqtt.qos",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("DOCGATE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("DOCGATE_API_HOST", "192.168.1.1")
	t.Setenv("DOCGATE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("DOCGATE_MQTT_USERNAME", "testuser")
	t.Setenv("DOCGATE_MQTT_PASSWORD", "testpass")
	t.Setenv("DOCGATE_JWT_SECRET", "jwt-secret")
	t.Setenv("DOCGATE_INFLUXDB_TOKEN", "influx-token")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v, want testuser/testpass", cfg.MQTT.Auth)
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
	if cfg.InfluxDB.Token != "influx-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "influx-token")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Routes.LoginPage != "/login.html" {
		t.Errorf("LoginPage = %q, want /login.html", cfg.Routes.LoginPage)
	}
	if cfg.Routes.Authentication != "/authentication" || cfg.Routes.Hash != "/hash" {
		t.Errorf("default API routes = %q, %q", cfg.Routes.Authentication, cfg.Routes.Hash)
	}
	if cfg.Security.JWT.Algorithm != "HS256" {
		t.Errorf("JWT.Algorithm = %q, want HS256", cfg.Security.JWT.Algorithm)
	}
	if cfg.Security.JWT.Expiry != 24*time.Hour {
		t.Errorf("JWT.Expiry = %v, want 24h", cfg.Security.JWT.Expiry)
	}
	if cfg.Security.Hash.Algorithm != "sha512" || cfg.Security.Hash.SaltLength != 16 {
		t.Errorf("Hash = %+v, want sha512/16", cfg.Security.Hash)
	}
	if cfg.Directory.Backend != DirectorySQLite {
		t.Errorf("Directory.Backend = %q, want %q", cfg.Directory.Backend, DirectorySQLite)
	}
}
