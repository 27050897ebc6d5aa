// Package main provides the entry point for the Guildhall membership
// portal service. It runs a Fiber web server exposing the session and
// authorization API: password and social sign-in with redirect fallback,
// first-login account provisioning, role-based permission checks and
// administrative account management. Gorm handles persistence on MySQL
// or PostgreSQL.
package main
