// Package identity mediates all interaction with the identity provider.
//
// The Provider interface is the only surface the session core depends on:
// password sign-in, interactive and redirect external sign-in, redirect
// reconciliation, sign-out, provider link/unlink and identity-changed
// notification. Two concrete pieces implement it here:
//
//   - Directory is the gorm-backed identity directory holding identity
//     records (Argon2id password hashes, linked provider tags, custom
//     claims) and the process-wide current identity.
//   - Gateway wraps the configured OIDC providers (discovery, auth-code
//     URLs, code exchange and ID-token verification) via
//     github.com/coreos/go-oidc and golang.org/x/oauth2.
//
// Failures surface as *ProviderError carrying the raw provider code. Codes
// split into a recoverable class (popup blocked, user dismissed the
// window, a concurrent request cancelled it, transient network failure),
// which callers answer with the redirect fallback, and a terminal class
// (operation not allowed, credential collision, rate limited), which
// propagates to the user unmodified.
package identity
