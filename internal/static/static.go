package static

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
)

// ErrNoFallback means the static root has no fallback document, which is a
// broken deployment rather than a missing route.
var ErrNoFallback = errors.New("fallback document not found")

// Handler serves files from a read-only asset tree and answers every path
// without a matching file with the fallback document.
type Handler struct {
	root     string
	fsys     fs.FS
	fallback string
	logger   *slog.Logger
}

// New serves the directory root. fallback is a file name relative to root.
func New(root, fallback string, logger *slog.Logger) *Handler {
	return NewFS(os.DirFS(root), root, fallback, logger)
}

// NewFS serves fsys; root is only used in log lines.
func NewFS(fsys fs.FS, root, fallback string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		root:     root,
		fsys:     fsys,
		fallback: fallback,
		logger:   logger,
	}
}

func (h *Handler) Root() string {
	return h.root
}

// Lookup maps a URL path to a regular file inside the asset tree. Paths are
// cleaned before lookup, so ".." can never climb out of the root. Dotfiles and
// directories are never matched.
func (h *Handler) Lookup(urlPath string) (string, bool) {
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if name == "" || !fs.ValidPath(name) {
		return "", false
	}

	for _, segment := range strings.Split(name, "/") {
		if strings.HasPrefix(segment, ".") {
			return "", false
		}
	}

	info, err := fs.Stat(h.fsys, name)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}

	return name, true
}

// ServeFile writes the named file with a content type inferred from its
// extension.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request, name string) error {
	f, err := h.fsys.Open(name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}

	content, ok := f.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		content = bytes.NewReader(data)
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), content)
	return nil
}

// ServeFallback writes the fallback document. The client-side router takes
// over from there, so it must not be cached as if it were the route's content.
func (h *Handler) ServeFallback(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Cache-Control", "no-cache")

	if err := h.ServeFile(w, r, h.fallback); err != nil {
		w.Header().Del("Cache-Control")
		h.logger.Error("fallback document unavailable",
			slog.String("root", h.root),
			slog.String("file", h.fallback),
			slog.Any("err", err))
		http.NotFound(w, r)
		return fmt.Errorf("%w: %v", ErrNoFallback, err)
	}

	return nil
}
