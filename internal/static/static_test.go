package static_test

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing/fstest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fundamentos/dashboard-edge/internal/static"
)

var (
	indexHTML = []byte("<!doctype html><div id=\"root\"></div>")
	logoPNG   = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	appJS     = []byte("console.log('dashboard')")
)

func writeFile(root, name string, data []byte) {
	path := filepath.Join(root, filepath.FromSlash(name))
	Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
	Expect(os.WriteFile(path, data, 0o644)).To(Succeed())
}

// serve resolves a request the way the edge handler does for GET.
func serve(h *static.Handler, w http.ResponseWriter, r *http.Request) {
	if name, ok := h.Lookup(r.URL.Path); ok {
		Expect(h.ServeFile(w, r, name)).To(Succeed())
		return
	}
	_ = h.ServeFallback(w, r)
}

var _ = Describe("Static", func() {
	var (
		root string
		h    *static.Handler
		log  *slog.Logger
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		root = GinkgoT().TempDir()

		writeFile(root, "index.html", indexHTML)
		writeFile(root, "assets/logo.png", logoPNG)
		writeFile(root, "assets/index-3f9a.js", appJS)
		writeFile(root, ".env", []byte("BRAPI_TOKEN=secret"))
		writeFile(root, "assets/.cache/blob", []byte("blob"))

		h = static.New(root, "index.html", log)
	})

	Describe("Lookup", func() {
		It("should find regular files", func() {
			name, ok := h.Lookup("/assets/logo.png")
			Expect(ok).To(BeTrue())
			Expect(name).To(Equal("assets/logo.png"))
		})

		It("should not match directories", func() {
			_, ok := h.Lookup("/assets")
			Expect(ok).To(BeFalse())
			_, ok = h.Lookup("/")
			Expect(ok).To(BeFalse())
		})

		It("should not match missing files", func() {
			_, ok := h.Lookup("/dashboard/abc123")
			Expect(ok).To(BeFalse())
		})

		It("should not match dotfiles", func() {
			_, ok := h.Lookup("/.env")
			Expect(ok).To(BeFalse())
			_, ok = h.Lookup("/assets/.cache/blob")
			Expect(ok).To(BeFalse())
		})

		It("should keep traversal inside the root", func() {
			outside := filepath.Join(filepath.Dir(root), "outside.txt")
			Expect(os.WriteFile(outside, []byte("nope"), 0o644)).To(Succeed())
			DeferCleanup(os.Remove, outside)

			_, ok := h.Lookup("/../outside.txt")
			Expect(ok).To(BeFalse())

			name, ok := h.Lookup("/assets/../index.html")
			Expect(ok).To(BeTrue())
			Expect(name).To(Equal("index.html"))
		})
	})

	Describe("serving", func() {
		It("should serve an existing asset with its content type", func() {
			req := httptest.NewRequest(http.MethodGet, "/assets/logo.png", nil)
			w := httptest.NewRecorder()

			serve(h, w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.Bytes()).To(Equal(logoPNG))
			Expect(w.Header().Get("Content-Type")).To(Equal("image/png"))
			Expect(w.Header().Get("Cache-Control")).To(BeEmpty())
		})

		It("should serve javascript bundles", func() {
			req := httptest.NewRequest(http.MethodGet, "/assets/index-3f9a.js", nil)
			w := httptest.NewRecorder()

			serve(h, w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.Bytes()).To(Equal(appJS))
			Expect(w.Header().Get("Content-Type")).To(ContainSubstring("javascript"))
		})

		It("should serve the fallback for client-side routes", func() {
			req := httptest.NewRequest(http.MethodGet, "/dashboard/abc123", nil)
			w := httptest.NewRecorder()

			serve(h, w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.Bytes()).To(Equal(indexHTML))
			Expect(w.Header().Get("Content-Type")).To(HavePrefix("text/html"))
			Expect(w.Header().Get("Cache-Control")).To(Equal("no-cache"))
		})

		It("should serve the fallback for the root path", func() {
			w := httptest.NewRecorder()
			serve(h, w, httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.Bytes()).To(Equal(indexHTML))
		})

		It("should return identical content for arbitrary unmatched paths", func() {
			paths := []string{"/a", "/signals/selic", "/what-changed?day=2024-05-02", "/assets/missing.png", "/.env"}
			for _, p := range paths {
				w := httptest.NewRecorder()
				serve(h, w, httptest.NewRequest(http.MethodGet, p, nil))
				Expect(w.Code).To(Equal(http.StatusOK), p)
				Expect(w.Body.Bytes()).To(Equal(indexHTML), p)
			}
		})

		It("should serve the fallback document when asked for it directly", func() {
			w := httptest.NewRecorder()
			serve(h, w, httptest.NewRequest(http.MethodGet, "/index.html", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.Bytes()).To(Equal(indexHTML))
		})

		It("should answer HEAD without a body", func() {
			w := httptest.NewRecorder()
			serve(h, w, httptest.NewRequest(http.MethodHead, "/assets/logo.png", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.Len()).To(Equal(0))
		})
	})

	Describe("ServeFallback", func() {
		It("should answer 404 and report a missing fallback", func() {
			Expect(os.Remove(filepath.Join(root, "index.html"))).To(Succeed())

			w := httptest.NewRecorder()
			err := h.ServeFallback(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

			Expect(errors.Is(err, static.ErrNoFallback)).To(BeTrue())
			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(w.Header().Get("Cache-Control")).To(BeEmpty())
		})
	})

	Describe("NewFS", func() {
		It("should serve from any fs.FS", func() {
			fsys := fstest.MapFS{
				"index.html":    {Data: indexHTML},
				"robots.txt":    {Data: []byte("User-agent: *")},
				"assets/app.js": {Data: appJS},
			}
			h = static.NewFS(fsys, "embedded", "index.html", log)

			w := httptest.NewRecorder()
			serve(h, w, httptest.NewRequest(http.MethodGet, "/robots.txt", nil))
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(Equal("User-agent: *"))
			Expect(w.Header().Get("Content-Type")).To(HavePrefix("text/plain"))

			w = httptest.NewRecorder()
			serve(h, w, httptest.NewRequest(http.MethodGet, "/history", nil))
			Expect(w.Body.Bytes()).To(Equal(indexHTML))
			Expect(h.Root()).To(Equal("embedded"))
		})
	})
})
