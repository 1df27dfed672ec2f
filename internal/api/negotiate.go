package api

import (
	"mime"
	"net/http"
	"strconv"
	"strings"
)

// Representation is the response form chosen for a request.
type Representation int

const (
	// ReprUnsupported means the client accepts neither HTML nor JSON.
	ReprUnsupported Representation = iota
	ReprHTML
	ReprJSON
)

// String returns the representation name.
func (r Representation) String() string {
	switch r {
	case ReprHTML:
		return "html"
	case ReprJSON:
		return "json"
	default:
		return "unsupported"
	}
}

// negotiate picks HTML or JSON from the Accept header. The highest quality
// wins; on a tie HTML is preferred, so "*/*" selects HTML. A request with
// no Accept header is unsupported.
func negotiate(r *http.Request) Representation {
	header := strings.Join(r.Header.Values("Accept"), ",")
	if strings.TrimSpace(header) == "" {
		return ReprUnsupported
	}

	var htmlQ, jsonQ float64
	for _, part := range strings.Split(header, ",") {
		mediaType, q, ok := parseAcceptRange(part)
		if !ok || q <= 0 {
			continue
		}
		if mediaRangeMatches(mediaType, "text", "html") && q > htmlQ {
			htmlQ = q
		}
		if mediaRangeMatches(mediaType, "application", "json") && q > jsonQ {
			jsonQ = q
		}
	}

	switch {
	case htmlQ == 0 && jsonQ == 0:
		return ReprUnsupported
	case htmlQ >= jsonQ:
		return ReprHTML
	default:
		return ReprJSON
	}
}

// parseAcceptRange parses one Accept element into its media range and
// quality. A missing or malformed q parameter counts as 1.
func parseAcceptRange(part string) (mediaType string, q float64, ok bool) {
	part = strings.TrimSpace(part)
	if part == "" {
		return "", 0, false
	}
	mediaType, params, err := mime.ParseMediaType(part)
	if err != nil {
		return "", 0, false
	}
	q = 1
	if v, found := params["q"]; found {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			q = parsed
		}
	}
	return mediaType, q, true
}

// mediaRangeMatches reports whether an Accept media range covers
// typ/subtype.
func mediaRangeMatches(mediaRange, typ, subtype string) bool {
	if mediaRange == "*/*" {
		return true
	}
	rangeType, rangeSub, found := strings.Cut(mediaRange, "/")
	if !found || rangeType != typ {
		return false
	}
	return rangeSub == "*" || rangeSub == subtype
}
