package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/nerrad567/docgate/internal/audit"
	"github.com/nerrad567/docgate/internal/auth"
)

// loginRequest is the login or renewal submission. Jwt is accepted as an
// alias of Token.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token"`
	JWT      string `json:"jwt"`
}

func (req loginRequest) credentials() auth.Credentials {
	token := req.Token
	if token == "" {
		token = req.JWT
	}
	return auth.Credentials{Username: req.Username, Password: req.Password, Token: token}
}

// handleLogin decides a login or renewal submission and issues a token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLoginRequest(r)
	if err != nil {
		s.logger.Debug("malformed login body", "error", err)
	}
	creds := req.credentials()
	renewal := creds.Token != ""

	username, err := s.authenticator.Authenticate(r.Context(), creds)
	if err != nil {
		s.logger.Info("authentication rejected",
			"username", creds.Username,
			"renewal", renewal,
			"reason", auth.PublicMessage(err),
		)
		s.auditLog(audit.ActionLoginFailed, creds.Username, "api", map[string]any{
			"reason":  auth.PublicMessage(err),
			"renewal": renewal,
		})
		s.writeAuthError(w, r, err, creds.Username)
		return
	}

	// Nothing is issued to a client that cannot take either answer.
	repr := negotiate(r)
	if repr == ReprUnsupported {
		writeText(w, http.StatusInternalServerError, auth.PublicMessage(auth.ErrUnsupportedRepresentation))
		return
	}

	token, err := s.authenticator.Issue(username)
	if err != nil {
		s.logger.Error("signing token failed", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	action := audit.ActionLogin
	if renewal {
		action = audit.ActionRenew
	}
	s.auditLog(action, username, "api", nil)
	s.logger.Debug("token issued", "username", username, "renewal", renewal)

	s.setTokenCookie(w, r, token)

	if repr == ReprHTML {
		http.Redirect(w, r, requestScheme(r)+"://"+r.Host+s.routes.HomePage, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// decodeLoginRequest reads a JSON or form-encoded body. A decode failure
// yields an empty request, which then fails authentication.
func decodeLoginRequest(r *http.Request) (loginRequest, error) {
	var req loginRequest
	if isJSONBody(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return loginRequest{}, err
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return loginRequest{}, err
	}
	req.Username = r.PostForm.Get("username")
	req.Password = r.PostForm.Get("password")
	req.Token = r.PostForm.Get("token")
	req.JWT = r.PostForm.Get("jwt")
	return req, nil
}

func isJSONBody(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// setTokenCookie sets the token cookie to expire with the token itself.
func (s *Server) setTokenCookie(w http.ResponseWriter, r *http.Request, token string) {
	expires, err := s.tokens.ExpiresAt(token)
	if err != nil {
		expires = time.Now().Add(s.tokens.Expiry())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.extractor.TokenName(),
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.cfg.TLS.Enabled || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// gateMiddleware applies the route classification and token check to every
// request in its group.
func (s *Server) gateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch s.classifier.ClassifyRequest(requestURI(r), r.URL.Path) {
		case auth.Disallowed:
			s.logger.Debug("request disallowed", "path", r.URL.Path)
			writeText(w, http.StatusForbidden, auth.PublicMessage(auth.ErrDisallowedRoute))
			return
		case auth.Allowed:
			next.ServeHTTP(w, r)
			return
		}

		token, carrier, _ := s.extractor.Extract(r)
		payload, err := s.tokens.Verify(token)
		if err != nil {
			s.logger.Debug("request rejected",
				"path", r.URL.Path,
				"carrier", string(carrier),
				"reason", auth.PublicMessage(err),
			)
			s.writeAuthError(w, r, err, r.URL.Query().Get("username"))
			return
		}

		username, _ := payload["username"].(string) //nolint:errcheck // missing username reads as empty
		next.ServeHTTP(w, r.WithContext(auth.WithUsername(r.Context(), username)))
	})
}

// logoutMiddleware expires the token cookie on the logout page and lets the
// request continue.
func (s *Server) logoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.routes.LogoutPage != "" && r.URL.Path == s.routes.LogoutPage {
			http.SetCookie(w, &http.Cookie{
				Name:     s.extractor.TokenName(),
				Value:    "",
				Path:     "/",
				Expires:  time.Unix(0, 0),
				MaxAge:   -1,
				HttpOnly: true,
				Secure:   s.cfg.TLS.Enabled || r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
			s.auditLog(audit.ActionLogout, s.tokenUsername(r), "api", nil)
		}
		next.ServeHTTP(w, r)
	})
}

// tokenUsername returns the username of a valid token on r, or "".
func (s *Server) tokenUsername(r *http.Request) string {
	token, _, _ := s.extractor.Extract(r)
	payload, err := s.tokens.Verify(token)
	if err != nil {
		return ""
	}
	username, _ := payload["username"].(string) //nolint:errcheck // missing username reads as empty
	return username
}

type hashRequest struct {
	Password string `json:"password"`
}

// handleHash returns the salted digest of a password, for seeding the
// user directory.
func (s *Server) handleHash(w http.ResponseWriter, r *http.Request) {
	var req hashRequest
	if isJSONBody(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.logger.Debug("malformed hash body", "error", err)
		}
	} else if err := r.ParseForm(); err == nil {
		req.Password = r.PostForm.Get("password")
	}

	if req.Password == "" {
		s.writeAuthError(w, r, auth.ErrInvalidPassword, "")
		return
	}

	hashed, err := s.hasher.Hash(req.Password, "")
	if err != nil {
		s.logger.Error("hashing password failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hash": hashed})
}

// writeAuthError renders err in the negotiated representation: a redirect
// to the login page for HTML, {"error": ...} for JSON, and a 500 when the
// client accepts neither.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error, username string) {
	msg := auth.PublicMessage(err)

	switch negotiate(r) {
	case ReprHTML:
		q := url.Values{}
		q.Set("error", msg)
		if username != "" {
			q.Set("username", username)
		}
		http.Redirect(w, r, s.routes.LoginPage+"?"+q.Encode(), http.StatusFound)
	case ReprJSON:
		writeJSON(w, authErrorStatus(err), errorBody{Error: msg})
	default:
		writeText(w, http.StatusInternalServerError, auth.PublicMessage(auth.ErrUnsupportedRepresentation))
	}
}

// authErrorStatus maps an authentication error to its JSON status code.
func authErrorStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidPassword):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrDisallowedRoute):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrNoToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// requestURI returns the raw path and query as sent by the client.
func requestURI(r *http.Request) string {
	if r.RequestURI != "" {
		return r.RequestURI
	}
	return r.URL.RequestURI()
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
