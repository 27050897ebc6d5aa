package web

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/guildhall-app/guildhall/internal/authz"
	"github.com/guildhall-app/guildhall/internal/config"
	"github.com/guildhall-app/guildhall/internal/db/models"
	"github.com/guildhall-app/guildhall/internal/identity"
	"github.com/guildhall-app/guildhall/internal/provision"
	"github.com/guildhall-app/guildhall/internal/session"
	"github.com/guildhall-app/guildhall/internal/store"
)

// setupTestService wires the full stack over an in-memory database.
func setupTestService(t *testing.T) (*Service, *identity.Directory) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err, "failed to create test database")

	err = db.AutoMigrate(
		&models.Account{},
		&models.LinkedIdentity{},
		&models.IdentityRecord{},
		&models.RedirectState{},
	)
	require.NoError(t, err, "failed to migrate test database")

	st, err := store.NewGorm(db)
	require.NoError(t, err)

	gateway, err := identity.NewGateway(context.Background(), config.Identity{})
	require.NoError(t, err)

	directory := identity.NewDirectory(db, gateway, st)

	provisioner, err := provision.NewProvisioner(st, directory)
	require.NoError(t, err)

	manager, err := session.NewManager(directory, provisioner, session.NewListenerHub(), 0)
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	gate, err := authz.NewGate(manager.Hub(), st)
	require.NoError(t, err)

	cfg := &config.Config{
		Title:     "guildhall-test",
		Webserver: config.Webserver{Port: 8080, ShutDownTime: 1},
	}

	return New(cfg, manager, gate, st, directory), directory
}

func TestHealthz(t *testing.T) {
	service, _ := setupTestService(t)

	resp, err := service.App.Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	service, _ := setupTestService(t)

	resp, err := service.App.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestPasswordSignInFlow(t *testing.T) {
	service, directory := setupTestService(t)

	_, err := directory.CreateUser(context.Background(), "owner@example.com", "s3cret!", "Owner")
	require.NoError(t, err)

	// the API is locked before sign-in
	resp, err := service.App.Test(httptest.NewRequest("GET", "/api/me", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	body := strings.NewReader(`{"email": "owner@example.com", "password": "s3cret!"}`)
	req := httptest.NewRequest("POST", "/api/auth/password", body)
	req.Header.Set("Content-Type", "application/json")

	resp, err = service.App.Test(req, 10000)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	// first sign-in became the owner, so the admin surface opens up
	resp, err = service.App.Test(httptest.NewRequest("GET", "/api/admin/accounts", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = service.App.Test(httptest.NewRequest("POST", "/api/auth/signout", nil))
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)

	resp, err = service.App.Test(httptest.NewRequest("GET", "/api/me", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestPasswordSignIn_WrongPassword(t *testing.T) {
	service, directory := setupTestService(t)

	_, err := directory.CreateUser(context.Background(), "owner@example.com", "s3cret!", "Owner")
	require.NoError(t, err)

	body := strings.NewReader(`{"email": "owner@example.com", "password": "wrong"}`)
	req := httptest.NewRequest("POST", "/api/auth/password", body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := service.App.Test(req, 10000)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestProviderSignIn_DisabledProvider(t *testing.T) {
	service, _ := setupTestService(t)

	resp, err := service.App.Test(httptest.NewRequest("POST", "/api/auth/provider/google", nil))
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)
}
