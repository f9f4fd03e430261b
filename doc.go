// Package accounts implements a user-account and authentication backend:
// registration, sign-in, JWT issuance and refresh, email/password
// modification workflows, role/scope based authorization, blacklisting,
// and optional two-factor authentication with at-rest email encryption.
//
// The package exposes services and command handlers over bun-backed
// repositories and a framework-agnostic HTTP surface built on go-router.
// Outbound mail, configuration, and the HTTP adapter are collaborators
// supplied by the host application.
package accounts
