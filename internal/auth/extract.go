package auth

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Carrier identifies where in a request a token was found.
type Carrier string

// Token carriers in the order they are checked.
const (
	CarrierNone        Carrier = ""
	CarrierCookie      Carrier = "cookie"
	CarrierHeader      Carrier = "header"
	CarrierSubprotocol Carrier = "subprotocol"
	CarrierQuery       Carrier = "query"
)

// schemeValuePattern matches the two-token "scheme value" Authorization form.
var schemeValuePattern = regexp.MustCompile(`^\s*(\S+)\s+(\S+)`)

// TokenExtractor locates a candidate token in a request. It checks the
// cookie, then the Authorization header, then the WebSocket subprotocol
// header, then the query string, and stops at the first carrier that
// holds a value.
//
// Query-string tokens end up in proxy logs and Referer headers.
type TokenExtractor struct {
	tokenName   string
	subprotocol *regexp.Regexp
}

// NewTokenExtractor returns an extractor for the given cookie/field name.
func NewTokenExtractor(tokenName string) *TokenExtractor {
	return &TokenExtractor{
		tokenName:   tokenName,
		subprotocol: regexp.MustCompile(`(?:^|[\s,;])` + regexp.QuoteMeta(tokenName) + `_([^,;\s]*)`),
	}
}

// TokenName returns the configured cookie and field name.
func (e *TokenExtractor) TokenName() string {
	return e.tokenName
}

// Extract returns the token and the carrier it came from. ok is false when
// no carrier holds a token. A matched but empty subprotocol or query value
// is returned with ok true and an empty token, which verification rejects
// as ErrNoToken.
//
// An Authorization header with a non-bearer scheme ends the search with
// ok false; later carriers are not consulted.
func (e *TokenExtractor) Extract(r *http.Request) (token string, carrier Carrier, ok bool) {
	if c, err := r.Cookie(e.tokenName); err == nil && c.Value != "" {
		return c.Value, CarrierCookie, true
	}

	if header := r.Header.Get("Authorization"); header != "" {
		m := schemeValuePattern.FindStringSubmatch(header)
		if m == nil {
			return strings.TrimSpace(header), CarrierHeader, true
		}
		if !strings.EqualFold(m[1], "bearer") {
			return "", CarrierNone, false
		}
		return m[2], CarrierHeader, true
	}

	if protocols := r.Header.Values("Sec-WebSocket-Protocol"); len(protocols) > 0 {
		if m := e.subprotocol.FindStringSubmatch(strings.Join(protocols, ", ")); m != nil {
			return m[1], CarrierSubprotocol, true
		}
	}

	if value, found := queryParam(r.URL.RawQuery, e.tokenName); found {
		return value, CarrierQuery, true
	}

	return "", CarrierNone, false
}

// Subprotocol returns the full offered subprotocol that carries the token,
// e.g. "token_eyJ...". Browsers reject a handshake whose response does not
// echo one of the offered subprotocols.
func (e *TokenExtractor) Subprotocol(r *http.Request) (string, bool) {
	prefix := e.tokenName + "_"
	for _, header := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(header, ",") {
			if p = strings.TrimSpace(p); strings.HasPrefix(p, prefix) {
				return p, true
			}
		}
	}
	return "", false
}

// queryParam finds key in a raw query string. The value runs to the next
// '&' or the end of the string and is URL-decoded; an undecodable value is
// returned raw so verification fails on it rather than the lookup.
func queryParam(rawQuery, key string) (string, bool) {
	for _, pair := range strings.Split(rawQuery, "&") {
		k, v, _ := strings.Cut(pair, "=")
		if k != key {
			continue
		}
		if decoded, err := url.QueryUnescape(v); err == nil {
			return decoded, true
		}
		return v, true
	}
	return "", false
}
