package auth

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// PrefixRule is one compiled allow or disallow pattern.
type PrefixRule struct {
	Prefix string
	re     *regexp.Regexp
}

// Match reports whether path matches the rule.
func (r PrefixRule) Match(path string) bool {
	return r.re.MatchString(path)
}

// RouteClassifier sorts request paths into Allowed, Disallowed, or Protected.
// It is immutable after construction and safe for concurrent use.
type RouteClassifier struct {
	allow    []PrefixRule
	disallow []PrefixRule
}

// NewRouteClassifier compiles the allow and disallow prefix lists.
//
// Allow rules are anchored to the start of the path, so "/js" matches
// "/js/app.js" but not "/lib/js". Disallow rules match anywhere, so "/.."
// catches traversal fragments at any depth. The login page is always
// appended to the allow set. Empty patterns are skipped.
func NewRouteClassifier(allow, disallow []string, loginPage string) (*RouteClassifier, error) {
	c := &RouteClassifier{}

	for _, p := range disallow {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(regexp.QuoteMeta(p))
		if err != nil {
			return nil, fmt.Errorf("compiling disallow rule %q: %w", p, err)
		}
		c.disallow = append(c.disallow, PrefixRule{Prefix: p, re: re})
	}

	patterns := append(append([]string{}, allow...), loginPage)
	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile("^" + regexp.QuoteMeta(p))
		if err != nil {
			return nil, fmt.Errorf("compiling allow rule %q: %w", p, err)
		}
		c.allow = append(c.allow, PrefixRule{Prefix: p, re: re})
	}

	return c, nil
}

// Classify returns the classification for path. Disallow rules win over
// allow rules; a path matching neither is Protected.
func (c *RouteClassifier) Classify(path string) Classification {
	for _, r := range c.disallow {
		if r.Match(path) {
			return Disallowed
		}
	}
	for _, r := range c.allow {
		if r.Match(path) {
			return Allowed
		}
	}
	return Protected
}

// ClassifyRequest classifies a request from both its raw request URI and
// its decoded path. Disallow rules are checked against both forms, so an
// encoded "%2F.." cannot slip past them. Allow rules only see the decoded
// path, which is what the file server resolves. A decoded path that is not
// already clean, or that has a ".." segment, is Disallowed.
func (c *RouteClassifier) ClassifyRequest(rawURI, decodedPath string) Classification {
	if !isCleanPath(decodedPath) {
		return Disallowed
	}
	for _, r := range c.disallow {
		if r.Match(rawURI) || r.Match(decodedPath) {
			return Disallowed
		}
	}
	for _, r := range c.allow {
		if r.Match(decodedPath) {
			return Allowed
		}
	}
	return Protected
}

// isCleanPath reports whether p is rooted, free of ".." segments and
// unchanged by path.Clean apart from a trailing slash.
func isCleanPath(p string) bool {
	if !strings.HasPrefix(p, "/") {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return false
		}
	}
	clean := path.Clean(p)
	if strings.HasSuffix(p, "/") && clean != "/" {
		clean += "/"
	}
	return clean == p
}

// Rules returns copies of the compiled allow and disallow rules in order.
func (c *RouteClassifier) Rules() (allow, disallow []PrefixRule) {
	return append([]PrefixRule(nil), c.allow...), append([]PrefixRule(nil), c.disallow...)
}
