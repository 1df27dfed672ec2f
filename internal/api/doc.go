// Package api implements the docgate HTTP front end: the authentication
// gateway, the WebSocket upgrade guard, and the document endpoints it
// protects.
//
// This package provides:
//   - Login and token renewal on the login page and the authentication route
//   - A gate middleware that classifies every request as allowed,
//     disallowed, or protected, and verifies the bearer token on the latter
//   - An upgrade guard that rejects unauthenticated WebSocket handshakes
//     with a raw 401 before any connection is created
//   - A connection hub that relays document changes to WebSocket clients
//   - Per-collection document CRUD and static file serving behind the gate
//
// # Responses
//
// Authentication outcomes are negotiated from the Accept header. HTML
// clients are redirected (home page on success, login page with an error
// on failure); JSON clients receive {"token": ...} or {"error": ...}. A
// request that accepts neither gets a 500.
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
