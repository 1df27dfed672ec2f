// Package logging builds docgate's structured logger on log/slog.
//
// Every entry carries service=docgate and the build version. Output is
// JSON (default) or text, to stdout (default) or stderr:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Attributes named password, password_hash, token, jwt, secret,
// authorization or cookie are written as [REDACTED], so a careless
// logger.Info("login", "token", tok) cannot leak a credential. Callers
// should still log usernames and decisions rather than request bodies.
package logging
