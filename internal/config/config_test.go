package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestReadConfig(t *testing.T) {
	var (
		err         error
		projectRoot string
	)

	// Get the project root by going up from internal/config
	projectRoot, err = filepath.Abs("../../")
	if err != nil {
		t.Fatalf("failed to get project root: %v", err)
	}

	configPath := filepath.Join(projectRoot, "etc") + string(filepath.Separator)

	var cfg Config

	cfg, err = ReadConfig(configPath)
	if err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}

	// Test basic config fields
	if cfg.Title == "" {
		t.Error("Config.Title should not be empty")
	}

	if cfg.Webserver.Port == 0 {
		t.Error("Webserver.Port should not be 0")
	}

	if cfg.Webserver.URL == "" {
		t.Error("Webserver.URL should not be empty")
	}

	// Test DB config
	if cfg.DB.Host == "" {
		t.Error("DB.Host should not be empty")
	}

	if cfg.DB.Driver != DBDriverMySQL && cfg.DB.Driver != DBDriverPostgres {
		t.Errorf("DB.Driver should default to a supported driver, got %q", cfg.DB.Driver)
	}

	// Test identity provider map is populated
	if cfg.Identity.Providers == nil {
		t.Fatal("Identity.Providers map should not be nil")
	}

	if _, ok := cfg.Identity.Providers["google"]; !ok {
		t.Error("Identity.Providers should contain the google provider")
	}

	if cfg.Webserver.Session.ExpiryTime != 24*time.Hour {
		t.Errorf("Session.ExpiryTime = %v, want 24h", cfg.Webserver.Session.ExpiryTime)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{}
	valid.Webserver.Port = 8080
	valid.Webserver.URL = "http://localhost:8080"
	valid.DB.Driver = DBDriverPostgres

	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectedErr error
	}{
		{
			name:   "valid config",
			mutate: func(_ *Config) {},
		},
		{
			name:        "zero webserver port",
			mutate:      func(c *Config) { c.Webserver.Port = 0 },
			expectedErr: ErrWebServerPortCanNotBeZero,
		},
		{
			name:        "empty webserver url",
			mutate:      func(c *Config) { c.Webserver.URL = "" },
			expectedErr: ErrEmptyURL,
		},
		{
			name:        "unsupported db driver",
			mutate:      func(c *Config) { c.DB.Driver = "sqlserver" },
			expectedErr: ErrUnsupportedDBDriver,
		},
		{
			name: "enabled provider without issuer",
			mutate: func(c *Config) {
				c.Identity.Providers = map[string]Provider{
					"google": {Enabled: true, ClientID: "abc"},
				}
			},
			expectedErr: ErrIncompleteProvider,
		},
		{
			name: "disabled provider may be incomplete",
			mutate: func(c *Config) {
				c.Identity.Providers = map[string]Provider{
					"github": {Enabled: false},
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)

			err := validate(cfg)

			if tc.expectedErr == nil {
				if err != nil {
					t.Fatalf("validate() error = %v, want nil", err)
				}
				return
			}

			if err == nil {
				t.Fatalf("validate() = nil, want error %v", tc.expectedErr)
			}
		})
	}
}
