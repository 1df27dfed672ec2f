package site

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
)

//go:embed web
var content embed.FS

// Handler returns a file server for dir, falling back to the built-in pages
// when dir is empty or not a directory. Missing files are 404s; there is no
// index fallback.
//
// Panics if the built-in pages cannot be loaded (build error).
func Handler(dir string) http.Handler {
	fileServer := http.FileServer(FileSystem(dir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Pages change with deployments and are only reachable with a token.
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")
		fileServer.ServeHTTP(w, r)
	})
}

// FileSystem returns the filesystem Handler serves.
func FileSystem(dir string) http.FileSystem {
	if OnDisk(dir) {
		return http.Dir(dir)
	}

	webFS, err := fs.Sub(content, "web")
	if err != nil {
		panic(fmt.Sprintf("site: failed to load built-in pages: %v", err))
	}
	return http.FS(webFS)
}

// OnDisk reports whether dir will be served instead of the built-in pages.
func OnDisk(dir string) bool {
	if dir == "" {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
