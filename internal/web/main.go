// Package web serves the portal's HTTP surface: health and metrics
// endpoints plus the guard-protected JSON API over the session manager
// and authorization gate.
package web

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/guildhall-app/guildhall/internal/authz"
	"github.com/guildhall-app/guildhall/internal/config"
	"github.com/guildhall-app/guildhall/internal/identity"
	"github.com/guildhall-app/guildhall/internal/rbac"
	"github.com/guildhall-app/guildhall/internal/session"
	"github.com/guildhall-app/guildhall/internal/store"
	"github.com/guildhall-app/guildhall/internal/web/guard"
)

// Service represents the web service.
type Service struct {
	App *fiber.App

	cfg          *config.Config
	manager      *session.Manager
	gate         *authz.Gate
	store        store.AccountStore
	directory    *identity.Directory
	fastShutDown bool
	alive        atomic.Bool
}

// New creates a new web service with the given configuration and wiring.
func New(cfg *config.Config, manager *session.Manager, gate *authz.Gate, st store.AccountStore, directory *identity.Directory) *Service {
	if cfg == nil {
		panic("config cannot be nil")
	}

	if manager == nil || gate == nil || st == nil || directory == nil {
		panic("web service wiring cannot be nil")
	}

	app := fiber.New(
		fiber.Config{
			ReadBufferSize: 8192,
			AppName:        cfg.Title,
			CaseSensitive:  true,
			Prefork:        false,
			Immutable:      true,
		},
	)

	if !cfg.Webserver.DisableRecover {
		app.Use(recover.New())
	}

	service := &Service{
		cfg:       cfg,
		App:       app,
		manager:   manager,
		gate:      gate,
		store:     st,
		directory: directory,
	}
	service.alive.Store(true)

	service.registerRoutes()

	return service
}

// Start starts the web service on the given address.
func (s *Service) Start(addr string) error {
	var doneFiber = make(chan bool)

	go func() {
		if err := s.App.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("fiber listen error: %v", err)
		}

		doneFiber <- true
	}()

	<-doneFiber // wait for fiber to stop

	return nil
}

// WaitShutdown waits for graceful shutdown of the service.
func (s *Service) WaitShutdown() {
	irqSig := make(chan os.Signal, 1)
	signal.Notify(irqSig, syscall.SIGINT, syscall.SIGTERM)

	sig := <-irqSig
	log.Info().Msgf("shutdown request (signal: %v)", sig)

	// Graceful shutdown for reverse proxies: fail the health check first so
	// the LB removes this instance from active targets.
	if !s.fastShutDown {
		log.Info().Msgf(
			"graceful shutdown: return 503 while %d seconds to let LB to remove this pod from active targets",
			s.cfg.Webserver.ShutDownTime,
		)

		s.alive.Store(false)
		time.Sleep(time.Duration(s.cfg.Webserver.ShutDownTime) * time.Second)
	}

	serverShutdown := make(chan struct{})

	go func() {
		log.Info().Msg("stopping http server ...")

		err := s.App.Shutdown()
		if err != nil {
			log.Error().Err(err).Msg("")
		}

		serverShutdown <- struct{}{}
	}()

	<-serverShutdown
	log.Info().Msg("http server was stopped ... good bye...")
}

func (s *Service) registerRoutes() {
	sessions := s.manager.Hub()

	s.App.Get("/healthz", s.healthz)
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.App.Group("/api")

	api.Post("/auth/password", s.signInWithPassword)
	api.Post("/auth/provider/:tag", s.signInWithProvider)
	api.Get("/auth/callback", s.redirectCallback)
	api.Post("/auth/signout", guard.RequireSession(sessions), s.signOut)

	api.Get("/me", guard.RequireSession(sessions), s.me)
	api.Get("/me/providers", guard.RequireSession(sessions), s.linkedProviders)
	api.Post("/me/providers/:tag/link", guard.RequireSession(sessions), s.linkProvider)
	api.Post("/me/providers/:tag/unlink", guard.RequireSession(sessions), s.unlinkProvider)
	api.Post("/me/providers/:tag/relink", guard.RequireSession(sessions), s.relinkProvider)

	admin := api.Group("/admin", guard.RequirePermission(sessions, s.gate, rbac.PermUserManage))
	admin.Get("/accounts", s.listAccounts)
	admin.Post("/accounts/bulk", s.bulkUpdate)
	admin.Post("/provisioning/retry", s.retryProvisioning)

	api.Post("/admin/accounts/import",
		guard.RequireAtLeastRole(sessions, s.gate, rbac.TopRole),
		s.importAccounts,
	)
}

func (s *Service) healthz(c *fiber.Ctx) error {
	if !s.alive.Load() {
		return c.Status(fiber.StatusServiceUnavailable).SendString("shutting down")
	}

	return c.SendString("ok")
}

type passwordSignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Service) signInWithPassword(c *fiber.Ctx) error {
	var req passwordSignInRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("invalid request body")
	}

	acct, err := s.manager.SignInWithPassword(c.Context(), req.Email, req.Password)
	if err != nil {
		return s.authError(c, err)
	}

	return c.JSON(acct)
}

func (s *Service) signInWithProvider(c *fiber.Ctx) error {
	outcome, err := s.manager.SignInWithProvider(c.Context(), c.Params("tag"))
	if err != nil {
		return s.authError(c, err)
	}

	if outcome.RedirectPending {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"redirect_pending": true})
	}

	return c.JSON(outcome.Account)
}

// redirectCallback receives the provider's browser round-trip and
// finishes the pending redirect sign-in.
func (s *Service) redirectCallback(c *fiber.Ctx) error {
	state := c.Query("state")
	code := c.Query("code")

	if err := s.directory.HandleRedirectCallback(c.Context(), state, code); err != nil {
		if errors.Is(err, identity.ErrNoPendingRedirect) || errors.Is(err, identity.ErrStateMismatch) {
			return c.Status(fiber.StatusBadRequest).SendString(err.Error())
		}

		log.Error().Err(err).Msg("failed to accept redirect callback")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	acct, err := s.manager.CompleteRedirectFlow(c.Context())
	if err != nil {
		return s.authError(c, err)
	}

	if acct == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return c.JSON(acct)
}

func (s *Service) signOut(c *fiber.Ctx) error {
	if err := s.manager.SignOut(c.Context()); err != nil {
		log.Error().Err(err).Msg("sign-out failed")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Service) me(c *fiber.Ctx) error {
	return c.JSON(s.manager.Hub().Current())
}

func (s *Service) linkedProviders(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"providers": s.manager.LinkedProviders()})
}

func (s *Service) linkProvider(c *fiber.Ctx) error {
	if err := s.manager.LinkProvider(c.Context(), c.Params("tag")); err != nil {
		return s.authError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Service) unlinkProvider(c *fiber.Ctx) error {
	if err := s.manager.UnlinkProvider(c.Context(), c.Params("tag")); err != nil {
		return s.authError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Service) relinkProvider(c *fiber.Ctx) error {
	if err := s.manager.RelinkProvider(c.Context(), c.Params("tag")); err != nil {
		return s.authError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// listAccounts returns the accounts the caller may administer.
func (s *Service) listAccounts(c *fiber.Ctx) error {
	filter := store.AccountFilter{
		Group: c.Query("group"),
		Limit: c.QueryInt("limit"),
	}

	accounts, err := s.store.QueryAccounts(c.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to query accounts")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	managed := s.gate.ManageableAccounts(accounts, s.manager.Hub().Current())

	return c.JSON(fiber.Map{"accounts": managed})
}

type bulkUpdateRequest struct {
	IDs   []string           `json:"ids"`
	Patch authz.AccountPatch `json:"patch"`
}

func (s *Service) bulkUpdate(c *fiber.Ctx) error {
	var req bulkUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("invalid request body")
	}

	if err := s.gate.BulkUpdate(c.Context(), req.IDs, req.Patch); err != nil {
		if errors.Is(err, authz.ErrInsufficientPermission) {
			return c.SendStatus(fiber.StatusForbidden)
		}

		if errors.Is(err, store.ErrAccountNotFound) {
			return c.Status(fiber.StatusNotFound).SendString(err.Error())
		}

		log.Error().Err(err).Msg("bulk account update failed")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

type importRequest struct {
	Rows []authz.ImportRow `json:"rows"`
}

func (s *Service) importAccounts(c *fiber.Ctx) error {
	var req importRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("invalid request body")
	}

	if err := s.gate.ImportAccounts(c.Context(), req.Rows); err != nil {
		if errors.Is(err, authz.ErrInsufficientPermission) {
			return c.SendStatus(fiber.StatusForbidden)
		}

		return c.Status(fiber.StatusBadRequest).SendString(err.Error())
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Service) retryProvisioning(c *fiber.Ctx) error {
	acct, err := s.manager.RetryProvisioning(c.Context())
	if err != nil {
		return c.Status(fiber.StatusConflict).SendString(err.Error())
	}

	return c.JSON(acct)
}

// authError maps session and provider failures to HTTP statuses.
func (s *Service) authError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, session.ErrPendingApproval), errors.Is(err, session.ErrDenied):
		return c.Status(fiber.StatusForbidden).SendString(err.Error())
	case errors.Is(err, identity.ErrNoCurrentIdentity):
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	if provErr, ok := identity.AsProviderError(err); ok {
		switch provErr.Code {
		case identity.CodeUserNotFound, identity.CodeInvalidCredential:
			return c.SendStatus(fiber.StatusUnauthorized)
		case identity.CodeTooManyRequests:
			return c.SendStatus(fiber.StatusTooManyRequests)
		case identity.CodeCredentialCollision, identity.CodeOperationNotAllowed:
			return c.Status(fiber.StatusConflict).SendString(provErr.Message)
		}
	}

	log.Error().Err(err).Msg("authentication failed")

	return c.SendStatus(fiber.StatusInternalServerError)
}
