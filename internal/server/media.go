package server

import (
	"errors"
	"net/http"
	"os"
	pathpkg "path"
	"path/filepath"
	"strings"
)

func (h *serverHandler) handleMedia(w http.ResponseWriter, r *http.Request) {
	resolved, ok := h.resolveMedia(strings.TrimPrefix(r.URL.Path, "/media/"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Printf("failed to stat media file %s: %v", resolved, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if info.IsDir() {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if ct := mimeTypeForFilename(resolved); ct != "application/octet-stream" {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeFile(w, r, resolved)
}

// resolveMedia maps a catalog file key to an absolute path inside the media root.
func (h *serverHandler) resolveMedia(rel string) (string, bool) {
	rel = strings.TrimPrefix(pathpkg.Clean("/"+rel), "/")
	if rel == "" || rel == "." {
		return "", false
	}

	resolved, err := filepath.Abs(filepath.Join(h.mediaRoot, filepath.FromSlash(rel)))
	if err != nil {
		return "", false
	}
	if !pathWithinRoot(h.mediaRoot, resolved) {
		return "", false
	}
	return resolved, true
}

func pathWithinRoot(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel != ".." && !strings.HasPrefix(rel, "../")
}
