package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "test-secret-key-at-least-32-chars!"

func validConfig() *Config {
	cfg := defaultConfig()
	applyRBACDefaults(&cfg.RBAC)
	cfg.Security.JWT.Secret = testSecret
	return cfg
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
security:
  jwt:
    secret: "`+testSecret+`"
    access_token_ttl: 30
  login:
    max_retry: 5
    lockout_window: 10
  reset:
    otp_ttl: 15
    channels: [email, sms]
rbac:
  registration_user_type: hr
  roles:
    - code: HR
      name: HR
      weight: 1
  default_roles:
    hr: HR
  route_roles:
    - route: /api/v1/users/list
      role: HR
      method: [POST]
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT = %+v, want enabled on localhost", cfg.MQTT)
	}
	if cfg.GetAccessTokenTTL() != 30*time.Minute {
		t.Errorf("GetAccessTokenTTL() = %v, want 30m", cfg.GetAccessTokenTTL())
	}
	if cfg.Security.Login.MaxRetry != 5 || cfg.GetLockoutWindow() != 10*time.Minute {
		t.Errorf("Login = %+v, want max_retry 5 window 10", cfg.Security.Login)
	}
	if cfg.GetOTPTTL() != 15*time.Minute {
		t.Errorf("GetOTPTTL() = %v, want 15m", cfg.GetOTPTTL())
	}
	if len(cfg.Security.Reset.Channels) != 2 {
		t.Errorf("Reset.Channels = %v, want [email sms]", cfg.Security.Reset.Channels)
	}
	if len(cfg.RBAC.Roles) != 1 || cfg.RBAC.Roles[0].Code != "HR" {
		t.Errorf("RBAC.Roles = %+v, want only HR", cfg.RBAC.Roles)
	}
	if len(cfg.RBAC.RouteRoles) != 1 || cfg.RBAC.RouteRoles[0].Method[0] != "POST" {
		t.Errorf("RBAC.RouteRoles = %+v, want one POST entry", cfg.RBAC.RouteRoles)
	}
	if len(cfg.RBAC.DefaultRoles) != 1 {
		t.Errorf("RBAC.DefaultRoles = %v, want only the hr entry", cfg.RBAC.DefaultRoles)
	}
	if _, ok := cfg.RBAC.PlatformAccess["web"]; !ok {
		t.Error("PlatformAccess should fall back to the default web table")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "/tmp/test.db"
security:
  jwt:
    secret: "short"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "at least 32 characters") {
		t.Errorf("Load() error = %v, want secret length complaint", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults with secret",
			modify: func(c *Config) {},
		},
		{
			name:    "missing database path",
			modify:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "bad qos",
			modify:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "bad port",
			modify:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "missing secret",
			modify:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: "GATEKEEPER_JWT_SECRET",
		},
		{
			name:    "zero token ttl",
			modify:  func(c *Config) { c.Security.JWT.AccessTokenTTL = 0 },
			wantErr: "access_token_ttl",
		},
		{
			name:    "zero max retry",
			modify:  func(c *Config) { c.Security.Login.MaxRetry = 0 },
			wantErr: "max_retry",
		},
		{
			name:    "zero lockout window",
			modify:  func(c *Config) { c.Security.Login.LockoutWindow = 0 },
			wantErr: "lockout_window",
		},
		{
			name:    "zero otp ttl",
			modify:  func(c *Config) { c.Security.Reset.OTPTTL = 0 },
			wantErr: "otp_ttl",
		},
		{
			name:    "zero otp attempts",
			modify:  func(c *Config) { c.Security.Reset.MaxAttempts = 0 },
			wantErr: "max_attempts",
		},
		{
			name:    "negative reset floor",
			modify:  func(c *Config) { c.Security.Reset.MinResponse = -1 },
			wantErr: "min_response",
		},
		{
			name:    "unknown reset channel",
			modify:  func(c *Config) { c.Security.Reset.Channels = []string{"pigeon"} },
			wantErr: "pigeon",
		},
		{
			name:    "unknown platform",
			modify:  func(c *Config) { c.RBAC.PlatformAccess["kiosk"] = []string{"hr"} },
			wantErr: "kiosk",
		},
		{
			name: "lowercase role code",
			modify: func(c *Config) {
				c.RBAC.Roles = append(c.RBAC.Roles, RoleConfig{Code: "auditor"})
			},
			wantErr: "uppercase",
		},
		{
			name:    "default role not in catalogue",
			modify:  func(c *Config) { c.RBAC.DefaultRoles["intern"] = "INTERN" },
			wantErr: "INTERN",
		},
		{
			name:    "missing registration user type",
			modify:  func(c *Config) { c.RBAC.RegistrationUserType = "" },
			wantErr: "registration_user_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 30*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
	if got := cfg.GetQueryTimeout(); got != 5*time.Second {
		t.Errorf("GetQueryTimeout() = %v, want 5s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("GATEKEEPER_DATABASE_PATH", "/env/test.db")
	t.Setenv("GATEKEEPER_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GATEKEEPER_API_PORT", "9090")
	t.Setenv("GATEKEEPER_JWT_SECRET", "env-secret-that-is-long-enough-for-validation")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/env/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/env/test.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.Security.JWT.Secret != "env-secret-that-is-long-enough-for-validation" {
		t.Errorf("JWT.Secret not overridden, got %q", cfg.Security.JWT.Secret)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := validConfig()

	if cfg.Security.Login.MaxRetry != 3 {
		t.Errorf("Login.MaxRetry = %d, want 3", cfg.Security.Login.MaxRetry)
	}
	if cfg.GetLockoutWindow() != 20*time.Minute {
		t.Errorf("GetLockoutWindow() = %v, want 20m", cfg.GetLockoutWindow())
	}
	if cfg.GetOTPTTL() != 20*time.Minute {
		t.Errorf("GetOTPTTL() = %v, want 20m", cfg.GetOTPTTL())
	}
	if got := cfg.Security.Reset.Channels; len(got) != 2 || got[0] != "email" || got[1] != "sms" {
		t.Errorf("Reset.Channels = %v, want [email sms]", got)
	}
	if cfg.Security.Reset.MaxAttempts != 3 || cfg.GetResetMinResponse() != 250*time.Millisecond {
		t.Errorf("Reset = %+v, want max_attempts 3 and a 250ms floor", cfg.Security.Reset)
	}
	if got := cfg.RBAC.PlatformAccess["web"]; len(got) != 4 {
		t.Errorf("PlatformAccess[web] = %v, want four user types", got)
	}
	if _, ok := cfg.RBAC.PlatformAccess["mobile"]; ok {
		t.Error("mobile platform should not be open by default")
	}
	if len(cfg.RBAC.Roles) != 5 {
		t.Errorf("len(Roles) = %d, want 5", len(cfg.RBAC.Roles))
	}
	if cfg.MQTT.Enabled {
		t.Error("MQTT should be disabled by default")
	}
}
