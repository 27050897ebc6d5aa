package config

import (
	"time"

	"github.com/guildhall-app/guildhall/internal/logger"
)

// DBDriver values select the database backend.
const (
	DBDriverMySQL    = "mysql"
	DBDriverPostgres = "postgres"
)

// DB holds the database configuration settings.
type DB struct {
	Driver   string // "mysql" or "postgres"
	Extras   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

// Session settings.
type Session struct {
	ExpiryTime time.Duration
	// RelinkSettleDelay is the pause between unlink and link when a
	// provider is re-linked, letting the provider side settle.
	RelinkSettleDelay time.Duration
}

// Provider holds the settings for one external identity provider.
type Provider struct {
	Enabled      bool
	IssuerURL    string // OIDC discovery URL (e.g. "https://accounts.google.com")
	ClientID     string
	ClientSecret string
	RedirectURL  string // callback URL the provider redirects to
	Scopes       []string
}

// Identity holds identity-provider configuration.
type Identity struct {
	// PasswordSignIn enables email/password sign-in against the directory.
	PasswordSignIn bool
	// Providers maps provider tags ("google", "github", ...) to settings.
	Providers map[string]Provider
}

// Config overall data structure.
type Config struct {
	DevMode   bool // enable dev mode for development
	DB        DB
	Log       logger.Log
	Title     string
	Identity  Identity
	Webserver Webserver
}

// Webserver implement webserver settings.
type Webserver struct {
	CleanPath      bool    // use clean path middleware to allow multi slash requests
	DisableRecover bool    // disable recover middleware
	Domain         string  // domain name for the webserver
	Port           int     // listening port for the webserver
	ShutDownTime   int     // wait time for shutdown
	URL            string  // base url for the webserver
	Session        Session // session settings
}
