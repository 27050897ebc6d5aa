package config

import (
	"errors"
)

var (
	// ErrConfigIsNil error if a component is handed a nil configuration.
	ErrConfigIsNil = errors.New("config is nil")

	// ErrEmptyURL error if config webserver.URL is empty.
	ErrEmptyURL = errors.New("toml config webserver.url can not be empty")

	// ErrWebServerPortCanNotBeZero error if config webserver listening port is 0.
	ErrWebServerPortCanNotBeZero = errors.New("toml config webserver.port listening port can not be 0")

	// ErrUnsupportedDBDriver error if config db.driver is not mysql or postgres.
	ErrUnsupportedDBDriver = errors.New("toml config db.driver must be mysql or postgres")

	// ErrIncompleteProvider error if an enabled identity provider is missing its issuer or client id.
	ErrIncompleteProvider = errors.New("toml config identity provider needs issuerurl and clientid")
)
