package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for docgate.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Routes    RoutesConfig    `yaml:"routes"`
	Security  SecurityConfig  `yaml:"security"`
	Directory DirectoryConfig `yaml:"directory"`
}

// SiteConfig identifies this deployment.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	TLS       TLSConfig        `yaml:"tls"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	StaticDir string           `yaml:"static_dir"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MQTTConfig contains settings for the optional change-event publisher.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains settings for the optional usage-metrics sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// RoutesConfig controls which paths the gateway serves, allows and rejects.
type RoutesConfig struct {
	// Allow lists path prefixes reachable without a token. The login page
	// is always added to this set.
	Allow []string `yaml:"allow"`

	// Disallow lists fragments that are rejected outright. Disallow wins
	// over Allow.
	Disallow []string `yaml:"disallow"`

	// APIPrefix is prepended to the authentication and hash routes.
	APIPrefix      string `yaml:"api_prefix"`
	Authentication string `yaml:"authentication"`
	Hash           string `yaml:"hash"`
	LoginPage      string `yaml:"login_page"`
	LogoutPage     string `yaml:"logout_page"`
	HomePage       string `yaml:"home_page"`
}

// SecurityConfig contains token and password hashing settings.
type SecurityConfig struct {
	JWT  JWTConfig  `yaml:"jwt"`
	Hash HashConfig `yaml:"hash"`
}

// JWTConfig contains token signing settings.
type JWTConfig struct {
	Secret    string        `yaml:"secret"`
	Algorithm string        `yaml:"algorithm"`
	Expiry    time.Duration `yaml:"expiry"`
	// TokenName is both the cookie name and the query/subprotocol key.
	TokenName string `yaml:"token_name"`
}

// HashConfig contains password hashing settings.
type HashConfig struct {
	Algorithm  string `yaml:"algorithm"`
	SaltLength int    `yaml:"salt_length"`
}

// DirectoryConfig selects where user records are looked up.
type DirectoryConfig struct {
	// Backend is "sqlite" (default) or "static".
	Backend string       `yaml:"backend"`
	Users   []UserConfig `yaml:"users"`
}

// UserConfig is a user entry in the config file. PasswordHash uses the
// "<salt>$<digest>" form produced by the hash endpoint.
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// Directory backends.
const (
	DirectorySQLite = "sqlite"
	DirectoryStatic = "static"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DOCGATE_SECTION_KEY
// For example: DOCGATE_DATABASE_PATH, DOCGATE_JWT_SECRET
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "docgate-001",
			Name: "docgate",
		},
		Database: DatabaseConfig{
			Path:        "./data/docgate.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8880,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			StaticDir: "./public",
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 65536,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "docgate",
			},
			QoS:         1,
			TopicPrefix: "docgate",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "docgate",
			Bucket:        "usage",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Routes: RoutesConfig{
			Allow:          []string{"/js", "/css", "/images", "/fonts"},
			Disallow:       []string{"/.."},
			APIPrefix:      "",
			Authentication: "/authentication",
			Hash:           "/hash",
			LoginPage:      "/login.html",
			LogoutPage:     "/logout.html",
			HomePage:       "/index.html",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Algorithm: "HS256",
				Expiry:    24 * time.Hour,
				TokenName: "token",
			},
			Hash: HashConfig{
				Algorithm:  "sha512",
				SaltLength: 16,
			},
		},
		Directory: DirectoryConfig{
			Backend: DirectorySQLite,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCGATE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("DOCGATE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("DOCGATE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DOCGATE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DOCGATE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("DOCGATE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Signing secret: always set via environment in production.
	if v := os.Getenv("DOCGATE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		errs = append(errs, "websocket.path must start with /")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		errs = append(errs, "websocket.max_message_size must be positive")
	}
	if c.WebSocket.PingInterval <= 0 {
		errs = append(errs, "websocket.ping_interval must be positive")
	}
	if c.WebSocket.PongTimeout <= 0 {
		errs = append(errs, "websocket.pong_timeout must be positive")
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	// A weak secret lets anyone forge tokens for any user.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set DOCGATE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	switch c.Security.JWT.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Sprintf("security.jwt.algorithm %q is not supported (HS256, HS384, HS512)", c.Security.JWT.Algorithm))
	}

	if c.Security.JWT.Expiry <= 0 {
		errs = append(errs, "security.jwt.expiry must be positive")
	}

	if c.Security.JWT.TokenName == "" {
		errs = append(errs, "security.jwt.token_name is required")
	}

	const maxSaltLength = 128
	if c.Security.Hash.SaltLength < 1 || c.Security.Hash.SaltLength > maxSaltLength {
		errs = append(errs, "security.hash.salt_length must be between 1 and 128")
	}

	if c.Routes.LoginPage == "" {
		errs = append(errs, "routes.login_page is required")
	}
	for _, d := range c.Routes.Disallow {
		if d != "" && strings.Contains(c.Routes.LoginPage, d) {
			errs = append(errs, fmt.Sprintf("routes.login_page %q must not match disallowed route %q", c.Routes.LoginPage, d))
		}
	}

	switch c.Directory.Backend {
	case DirectorySQLite, DirectoryStatic:
	default:
		errs = append(errs, fmt.Sprintf("directory.backend %q must be %q or %q", c.Directory.Backend, DirectorySQLite, DirectoryStatic))
	}

	for i, u := range c.Directory.Users {
		if u.Username == "" {
			errs = append(errs, fmt.Sprintf("directory.users[%d].username is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// APIRoute joins the API prefix (without trailing slash) and a route.
func (r RoutesConfig) APIRoute(route string) string {
	return strings.TrimSuffix(r.APIPrefix, "/") + route
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
