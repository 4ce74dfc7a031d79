package api

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed ui/*
var embeddedUI embed.FS

// uiAssets serves the polling page and its script and stylesheet. Only files
// that exist in the embedded tree are served; everything else is a JSON 404.
type uiAssets struct {
	files fs.FS
	fs    http.Handler
}

func newUIAssets() *uiAssets {
	sub, err := fs.Sub(embeddedUI, "ui")
	if err != nil {
		sub = embeddedUI
	}
	return &uiAssets{files: sub, fs: http.FileServer(http.FS(sub))}
}

func (u *uiAssets) serveRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil, false)
		return
	}
	u.serveIndex(w, r)
}

func (u *uiAssets) serveUI(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/ui" {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/ui/")
	if name == "" || name == "index.html" {
		u.serveIndex(w, r)
		return
	}
	name = path.Clean(name)
	if strings.HasPrefix(name, "..") || !fs.ValidPath(name) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil, false)
		return
	}
	if _, err := fs.Stat(u.files, name); err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil, false)
		return
	}
	u.serveFile(w, r, "/"+name)
}

func (u *uiAssets) serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	u.serveFile(w, r, "/")
}

func (u *uiAssets) serveFile(w http.ResponseWriter, r *http.Request, name string) {
	cp := r.Clone(r.Context())
	cp.URL.Path = name
	cp.URL.RawPath = ""
	u.fs.ServeHTTP(w, cp)
}
