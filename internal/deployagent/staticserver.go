package deployagent

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// staticAssetCacheableExt get long-lived Cache-Control headers; everything
// else (notably index.html and any SPA fallback) is served with no-cache so
// clients always revalidate after an activation (spec §4.3 step 5, "Static
// file serving").
var staticAssetCacheableExt = map[string]bool{
	".js": true, ".css": true, ".woff": true, ".woff2": true, ".ttf": true,
	".eot": true, ".svg": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".ico": true, ".webp": true, ".avif": true, ".mp4": true,
	".webm": true,
}

func (a *Agent) staticServerKey(projectRoot string) string { return projectRoot }

func (a *Agent) registerStaticServer(projectRoot string, srv *http.Server) {
	a.staticMu.Lock()
	defer a.staticMu.Unlock()
	if a.staticServers == nil {
		a.staticServers = make(map[string]*http.Server)
	}
	a.staticServers[a.staticServerKey(projectRoot)] = srv
}

func (a *Agent) takeStaticServer(projectRoot string) (*http.Server, bool) {
	a.staticMu.Lock()
	defer a.staticMu.Unlock()
	srv, ok := a.staticServers[a.staticServerKey(projectRoot)]
	if ok {
		delete(a.staticServers, a.staticServerKey(projectRoot))
	}
	return srv, ok
}

// launchStaticServer roots an http.Server at runtime.StaticRoot under
// buildDir and serves it on req.Port, with SPA fallback to index.html for
// any path that isn't an existing file (spec §4.3 step 5).
func (a *Agent) launchStaticServer(ctx context.Context, paths *ProjectPaths, buildDir string, runtime *Runtime, req ActivationRequest) error {
	root := buildDir
	if runtime.StaticRoot != "" {
		root = filepath.Join(buildDir, runtime.StaticRoot)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", staticHandler(root))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", req.Port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("start static server: %w", err)
		}
	default:
	}

	a.registerStaticServer(paths.Root(), srv)
	return nil
}

// staticHandler serves files under root: a directory request returns
// <dir>/index.html, a missing file falls back to <root>/index.html for SPA
// client-side routing, and recognized asset extensions get a long-lived
// Cache-Control (spec §4.3 step 5).
func staticHandler(root string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clean := filepath.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		path := filepath.Join(root, clean)

		if info, err := os.Stat(path); err == nil {
			if info.IsDir() {
				path = filepath.Join(path, "index.html")
			}
			if _, err := os.Stat(path); err == nil {
				setCacheControl(w, path)
				http.ServeFile(w, r, path)
				return
			}
		}

		fallback := filepath.Join(root, "index.html")
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, fallback)
	}
}

func setCacheControl(w http.ResponseWriter, path string) {
	ext := filepath.Ext(path)
	if staticAssetCacheableExt[ext] {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
