package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gatekeeper.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
	RBAC     RBACConfig     `yaml:"rbac"`
	Seed     SeedConfig     `yaml:"seed"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	// QueryTimeout bounds every persistence call made on the request path (seconds).
	QueryTimeout int `yaml:"query_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// InfluxDBConfig contains InfluxDB connection settings for auth event telemetry.
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

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	Login     LoginConfig     `yaml:"login"`
	Reset     ResetConfig     `yaml:"reset"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig contains session token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	// AccessTokenTTL is the token lifetime in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`
}

// LoginConfig contains login throttling settings.
type LoginConfig struct {
	MaxRetry int `yaml:"max_retry"`
	// LockoutWindow is the cooldown in minutes once MaxRetry is reached.
	LockoutWindow int `yaml:"lockout_window"`
}

// ResetConfig contains password reset OTP settings.
type ResetConfig struct {
	// OTPTTL is the OTP lifetime in minutes.
	OTPTTL   int      `yaml:"otp_ttl"`
	Channels []string `yaml:"channels"`
	// MaxAttempts wrong guesses void a live code.
	MaxAttempts int `yaml:"max_attempts"`
	// MinResponse is the floor, in milliseconds, on a forgot-password
	// response. Zero disables it.
	MinResponse int `yaml:"min_response"`
}

// RateLimitConfig contains per-client rate limiting for the public auth endpoints.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// RBACConfig describes the role catalogue and the static permission table.
type RBACConfig struct {
	// PlatformAccess maps a platform to the user types allowed to use it.
	PlatformAccess map[string][]string `yaml:"platform_access"`
	Roles          []RoleConfig        `yaml:"roles"`
	RouteRoles     []RouteRoleConfig   `yaml:"route_roles"`
	// DefaultRoles maps a user type to the role assigned to accounts of that type.
	// User types without an entry receive no role.
	DefaultRoles map[string]string `yaml:"default_roles"`
	// RegistrationUserType is the user type given to self-registered accounts.
	RegistrationUserType string `yaml:"registration_user_type"`
}

// RoleConfig is one entry in the role catalogue.
type RoleConfig struct {
	Code   string `yaml:"code"`
	Name   string `yaml:"name"`
	Weight int    `yaml:"weight"`
}

// RouteRoleConfig grants a role access to one route and method.
type RouteRoleConfig struct {
	Route  string   `yaml:"route"`
	Role   string   `yaml:"role"`
	Method []string `yaml:"method"`
}

// SeedConfig lists accounts created at startup when missing.
type SeedConfig struct {
	Accounts []SeedAccountConfig `yaml:"accounts"`
}

// SeedAccountConfig is one seeded account. An empty password is generated and logged once.
type SeedAccountConfig struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	UserType string `yaml:"user_type"`
}

// knownPlatforms are the client surfaces a token may be scoped to.
var knownPlatforms = map[string]bool{"web": true, "mobile": true}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. A .env file next to the working directory, if present
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: GATEKEEPER_SECTION_KEY
// For example: GATEKEEPER_DATABASE_PATH, GATEKEEPER_JWT_SECRET
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyRBACDefaults(&cfg.RBAC)

	// Variables already present in the environment win over the .env file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
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
		Database: DatabaseConfig{
			Path:         "./data/gatekeeper.db",
			WALMode:      true,
			BusyTimeout:  5,
			QueryTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "gatekeeper",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 166,
			},
			Login: LoginConfig{
				MaxRetry:      3,
				LockoutWindow: 20,
			},
			Reset: ResetConfig{
				OTPTTL:      20,
				Channels:    []string{"email", "sms"},
				MaxAttempts: 3,
				MinResponse: 250,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 30,
				Burst:             10,
			},
		},
	}
}

// applyRBACDefaults fills each RBAC section the file left empty with the
// catalogue the service ships with. Sections are replaced whole, never merged,
// so a file that lists its own roles gets exactly those roles.
func applyRBACDefaults(rbac *RBACConfig) {
	if rbac.PlatformAccess == nil {
		rbac.PlatformAccess = map[string][]string{
			"web": {"super_admin", "employee", "team_lead", "hr"},
		}
	}
	if len(rbac.Roles) == 0 {
		rbac.Roles = []RoleConfig{
			{Code: "DEVELOPER", Name: "Developer", Weight: 1},
			{Code: "SUPER_ADMIN", Name: "Super Admin", Weight: 1},
			{Code: "EMPLOYEE", Name: "Employee", Weight: 1},
			{Code: "TEAM_LEAD", Name: "Team Lead", Weight: 1},
			{Code: "HR", Name: "HR", Weight: 1},
		}
	}
	if rbac.DefaultRoles == nil {
		rbac.DefaultRoles = map[string]string{
			"super_admin": "SUPER_ADMIN",
			"employee":    "EMPLOYEE",
			"team_lead":   "TEAM_LEAD",
			"hr":          "HR",
		}
	}
	if rbac.RegistrationUserType == "" {
		rbac.RegistrationUserType = "employee"
	}
	if rbac.RouteRoles == nil {
		rbac.RouteRoles = defaultRouteRoles()
	}
}

func defaultRouteRoles() []RouteRoleConfig {
	var routes []RouteRoleConfig
	for _, role := range []string{"SUPER_ADMIN", "DEVELOPER"} {
		routes = append(routes,
			RouteRoleConfig{Route: "/api/v1/users/create", Role: role, Method: []string{"POST"}},
			RouteRoleConfig{Route: "/api/v1/users/update/:id", Role: role, Method: []string{"PUT"}},
			RouteRoleConfig{Route: "/api/v1/users/list", Role: role, Method: []string{"POST"}},
			RouteRoleConfig{Route: "/api/v1/users/count", Role: role, Method: []string{"POST"}},
			RouteRoleConfig{Route: "/api/v1/users/:id", Role: role, Method: []string{"GET"}},
			RouteRoleConfig{Route: "/api/v1/users/softdelete/:id", Role: role, Method: []string{"PUT"}},
			RouteRoleConfig{Route: "/api/v1/users/:id/roles", Role: role, Method: []string{"POST"}},
			RouteRoleConfig{Route: "/api/v1/registry/sync", Role: role, Method: []string{"POST"}},
			RouteRoleConfig{Route: "/api/v1/audit", Role: role, Method: []string{"GET"}},
		)
	}
	return append(routes,
		RouteRoleConfig{Route: "/api/v1/users/:id", Role: "HR", Method: []string{"GET"}},
		RouteRoleConfig{Route: "/api/v1/users/count", Role: "HR", Method: []string{"POST"}},
	)
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GATEKEEPER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GATEKEEPER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GATEKEEPER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GATEKEEPER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GATEKEEPER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GATEKEEPER_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GATEKEEPER_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("GATEKEEPER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("GATEKEEPER_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Anyone holding the secret can mint tokens for any account.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set GATEKEEPER_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}
	if c.Security.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, "security.jwt.access_token_ttl must be positive")
	}

	if c.Security.Login.MaxRetry < 1 {
		errs = append(errs, "security.login.max_retry must be at least 1")
	}
	if c.Security.Login.LockoutWindow <= 0 {
		errs = append(errs, "security.login.lockout_window must be positive")
	}

	if c.Security.Reset.OTPTTL <= 0 {
		errs = append(errs, "security.reset.otp_ttl must be positive")
	}
	if c.Security.Reset.MaxAttempts < 1 {
		errs = append(errs, "security.reset.max_attempts must be at least 1")
	}
	if c.Security.Reset.MinResponse < 0 {
		errs = append(errs, "security.reset.min_response must not be negative")
	}
	for _, ch := range c.Security.Reset.Channels {
		if ch != "email" && ch != "sms" {
			errs = append(errs, fmt.Sprintf("security.reset.channels: unknown channel %q", ch))
		}
	}

	if c.Security.RateLimit.Enabled && c.Security.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, "security.rate_limit.requests_per_minute must be positive when enabled")
	}

	for platform := range c.RBAC.PlatformAccess {
		if !knownPlatforms[platform] {
			errs = append(errs, fmt.Sprintf("rbac.platform_access: unknown platform %q", platform))
		}
	}

	roleCodes := make(map[string]bool, len(c.RBAC.Roles))
	for _, r := range c.RBAC.Roles {
		if r.Code == "" || r.Code != strings.ToUpper(r.Code) {
			errs = append(errs, fmt.Sprintf("rbac.roles: code %q must be non-empty and uppercase", r.Code))
		}
		roleCodes[r.Code] = true
	}
	for userType, role := range c.RBAC.DefaultRoles {
		if !roleCodes[role] {
			errs = append(errs, fmt.Sprintf("rbac.default_roles: user type %q maps to unknown role %q", userType, role))
		}
	}

	if c.RBAC.RegistrationUserType == "" {
		errs = append(errs, "rbac.registration_user_type is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// GetQueryTimeout returns the per-call persistence timeout as a Duration.
func (c *Config) GetQueryTimeout() time.Duration {
	return time.Duration(c.Database.QueryTimeout) * time.Second
}

// GetAccessTokenTTL returns the session token lifetime.
func (c *Config) GetAccessTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}

// GetLockoutWindow returns the login cooldown duration.
func (c *Config) GetLockoutWindow() time.Duration {
	return time.Duration(c.Security.Login.LockoutWindow) * time.Minute
}

// GetOTPTTL returns the reset OTP lifetime.
func (c *Config) GetOTPTTL() time.Duration {
	return time.Duration(c.Security.Reset.OTPTTL) * time.Minute
}

// GetResetMinResponse returns the forgot-password response floor.
func (c *Config) GetResetMinResponse() time.Duration {
	return time.Duration(c.Security.Reset.MinResponse) * time.Millisecond
}
