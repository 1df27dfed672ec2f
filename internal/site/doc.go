// Package site serves the web pages that sit behind the gateway.
//
// Pages come from a directory on disk when one is configured and exists.
// Otherwise a minimal built-in set is served from the binary: a login form
// that posts to /login.html, a home page that follows document changes over
// the WebSocket, and a logout confirmation.
package site
