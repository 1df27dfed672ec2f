package site

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestHandler_BuiltInPages(t *testing.T) {
	handler := Handler("")

	tests := []struct {
		target string
		want   string
	}{
		{"/", "<!DOCTYPE html>"},
		{"/login.html", `action="/login.html"`},
		{"/logout.html", "Signed out"},
		{"/js/login.js", "URLSearchParams"},
		{"/js/changes.js", "WebSocket"},
		{"/css/docgate.css", "font-family"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := get(t, handler, tt.target)
			if w.Code != http.StatusOK {
				t.Fatalf("GET %s: status %d, want 200", tt.target, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("GET %s: body missing %q", tt.target, tt.want)
			}
			if cc := w.Header().Get("Cache-Control"); cc != "no-cache, must-revalidate" {
				t.Errorf("Cache-Control = %q", cc)
			}
		})
	}
}

func TestHandler_MissingFileIsNotFound(t *testing.T) {
	w := get(t, Handler(""), "/some/deep/route")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandler_Directory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<p>from disk</p>"), 0o600); err != nil {
		t.Fatal(err)
	}

	handler := Handler(dir)

	if w := get(t, handler, "/"); !strings.Contains(w.Body.String(), "from disk") {
		t.Errorf("GET /: body = %q, want directory content", w.Body.String())
	}
	// The directory replaces the built-in set entirely.
	if w := get(t, handler, "/login.html"); w.Code != http.StatusNotFound {
		t.Errorf("GET /login.html: status %d, want 404", w.Code)
	}
}

func TestOnDisk(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		dir  string
		want bool
	}{
		{"empty", "", false},
		{"missing", "/nonexistent/dir/that/does/not/exist", false},
		{"regular file", file, false},
		{"directory", t.TempDir(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OnDisk(tt.dir); got != tt.want {
				t.Errorf("OnDisk(%q) = %v, want %v", tt.dir, got, tt.want)
			}
		})
	}
}
