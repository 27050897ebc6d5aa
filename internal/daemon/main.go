// Package daemon wires the portal together: database, identity
// directory, provisioning, session manager, authorization gate and the
// web service.
package daemon

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/guildhall-app/guildhall/internal/authz"
	"github.com/guildhall-app/guildhall/internal/config"
	"github.com/guildhall-app/guildhall/internal/db/dsn"
	"github.com/guildhall-app/guildhall/internal/db/models"
	"github.com/guildhall-app/guildhall/internal/identity"
	"github.com/guildhall-app/guildhall/internal/provision"
	"github.com/guildhall-app/guildhall/internal/session"
	"github.com/guildhall-app/guildhall/internal/store"
	"github.com/guildhall-app/guildhall/internal/web"
)

// Daemon represents the main application daemon.
type Daemon struct {
	cfg         *config.Config
	webService  *web.Service
	manager     *session.Manager
	provisioner *provision.Provisioner
}

// New creates a new Daemon instance with the provided configuration.
func New(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, config.ErrConfigIsNil
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if err = db.AutoMigrate(
		&models.Account{},
		&models.LinkedIdentity{},
		&models.IdentityRecord{},
		&models.RedirectState{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	st, err := store.NewGorm(db)
	if err != nil {
		return nil, err
	}

	gateway, err := identity.NewGateway(context.Background(), cfg.Identity)
	if err != nil {
		return nil, err
	}

	directory := identity.NewDirectory(db, gateway, st)

	provisioner, err := provision.NewProvisioner(st, directory)
	if err != nil {
		return nil, err
	}

	manager, err := session.NewManager(directory, provisioner,
		session.NewListenerHub(), cfg.Webserver.Session.RelinkSettleDelay)
	if err != nil {
		return nil, err
	}

	gate, err := authz.NewGate(manager.Hub(), st)
	if err != nil {
		return nil, err
	}

	return &Daemon{
		cfg:         cfg,
		webService:  web.New(cfg, manager, gate, st, directory),
		manager:     manager,
		provisioner: provisioner,
	}, nil
}

// Start reconciles a redirect sign-in left over from a previous process
// and serves the web service until shutdown.
func (d *Daemon) Start() error {
	if acct, err := d.manager.CompleteRedirectFlow(context.Background()); err != nil {
		log.Error().Err(err).Msg("failed to complete pending redirect sign-in")
	} else if acct != nil {
		log.Info().Str("uid", acct.ID).Msg("redirect sign-in completed at startup")
	}

	go d.webService.WaitShutdown()

	return d.webService.Start(fmt.Sprintf(":%d", d.cfg.Webserver.Port))
}

// CreateOwner provisions the local owner identity and its approved
// top-role account. Used by the create-owner command.
func (d *Daemon) CreateOwner(ctx context.Context, email, password, displayName string) (*models.Account, error) {
	return d.provisioner.CreateOwnerAccount(ctx, email, password, displayName)
}

// openDatabase opens the configured backend with gorm.
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.DB.Driver {
	case config.DBDriverPostgres:
		dialector = gormpostgres.Open(dsn.Create(cfg))
	case config.DBDriverMySQL:
		dialector = gormmysql.Open(dsn.Create(cfg))
	default:
		return nil, config.ErrUnsupportedDBDriver
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	return db, nil
}
