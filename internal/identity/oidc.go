package identity

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/guildhall-app/guildhall/internal/config"
)

// ExternalClaims are the claims extracted from a verified provider ID token.
type ExternalClaims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// oidcClient bundles the discovery result, verifier and OAuth2 settings
// for one configured provider tag.
type oidcClient struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth2   oauth2.Config
}

// Gateway wraps the configured OIDC providers and performs the wire-level
// part of external sign-in: auth-code URLs, code exchange and ID-token
// verification.
type Gateway struct {
	clients map[string]*oidcClient
}

// NewGateway builds a Gateway for every enabled provider in the config.
// Providers that are disabled are skipped, not errors.
func NewGateway(ctx context.Context, cfg config.Identity) (*Gateway, error) {
	gw := &Gateway{clients: make(map[string]*oidcClient)}

	for tag, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}

		provider, err := oidc.NewProvider(ctx, pc.IssuerURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create OIDC provider %q: %w", tag, err)
		}

		verifier := provider.Verifier(&oidc.Config{
			ClientID: pc.ClientID,
		})

		scopes := pc.Scopes
		if len(scopes) == 0 {
			scopes = []string{oidc.ScopeOpenID, "profile", "email"}
		}

		gw.clients[tag] = &oidcClient{
			provider: provider,
			verifier: verifier,
			oauth2: oauth2.Config{
				ClientID:     pc.ClientID,
				ClientSecret: pc.ClientSecret,
				RedirectURL:  pc.RedirectURL,
				Endpoint:     provider.Endpoint(),
				Scopes:       scopes,
			},
		}
	}

	return gw, nil
}

// Configured reports whether the provider tag has an enabled client.
func (g *Gateway) Configured(tag string) bool {
	if g == nil {
		return false
	}

	_, ok := g.clients[tag]

	return ok
}

// AuthCodeURL returns the provider's authorization URL for the handshake
// identified by state and nonce.
func (g *Gateway) AuthCodeURL(tag, state, nonce string) (string, error) {
	client, ok := g.clients[tag]
	if !ok {
		return "", NewProviderError(CodeOperationNotAllowed, fmt.Sprintf("provider %q is not enabled", tag))
	}

	return client.oauth2.AuthCodeURL(state, oidc.Nonce(nonce)), nil
}

// Exchange trades an authorization code for a verified set of identity
// claims. The nonce must match the one bound into the handshake.
func (g *Gateway) Exchange(ctx context.Context, tag, code, nonce string) (*ExternalClaims, error) {
	client, ok := g.clients[tag]
	if !ok {
		return nil, NewProviderError(CodeOperationNotAllowed, fmt.Sprintf("provider %q is not enabled", tag))
	}

	oauth2Token, err := client.oauth2.Exchange(ctx, code)
	if err != nil {
		if isNetworkError(err) {
			return nil, WrapProviderError(CodeNetworkRequestFailed, "token exchange failed", err)
		}

		return nil, WrapProviderError(CodeInvalidCredential, "token exchange rejected", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, ErrNoIDToken
	}

	idToken, err := client.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, WrapProviderError(CodeInvalidCredential, "id token verification failed", err)
	}

	if nonce != "" && idToken.Nonce != nonce {
		return nil, ErrNonceMismatch
	}

	var claims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}

	if err = idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	return &ExternalClaims{
		Subject:       claims.Sub,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

// isNetworkError reports whether the exchange failed before the provider
// could answer, which is worth retrying through the redirect path.
func isNetworkError(err error) bool {
	var netErr net.Error

	return errors.As(err, &netErr)
}
