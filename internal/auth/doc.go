// Package auth provides the authentication primitives behind the docgate
// gateway.
//
// The package covers:
//   - RouteClassifier: allow/disallow prefix rules, disallow wins
//   - TokenExtractor: cookie, Authorization header, WebSocket subprotocol
//     and query-string carriers, checked in that order
//   - TokenService: HMAC-signed JWTs with embedded absolute expiry
//   - PasswordHasher: "<salt>$<hexdigest>" HMAC password hashes
//   - UserDirectory: static (from config) and SQLite-backed user lookups
//   - Authenticator: the login and token-renewal decision
//
// Nothing here writes HTTP responses; the api package maps the sentinel
// errors to redirects, JSON errors, and status codes.
package auth
