package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fundamentos/dashboard-edge/pkg/logger"
)

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("should create logger with info level", func() {
			log := logger.New("info", false, "dev")
			Expect(log).NotTo(BeNil())
		})

		It("should create logger with debug level", func() {
			log := logger.New("debug", false, "dev")
			Expect(log).NotTo(BeNil())
		})

		It("should create logger with warn level", func() {
			log := logger.New("warn", false, "dev")
			Expect(log).NotTo(BeNil())
		})

		It("should create logger with error level", func() {
			log := logger.New("error", false, "dev")
			Expect(log).NotTo(BeNil())
		})

		It("should default to info for invalid level", func() {
			log := logger.New("invalid", false, "dev")
			Expect(log).NotTo(BeNil())
		})

		It("should create prod logger", func() {
			log := logger.New("info", false, "prod")
			Expect(log).NotTo(BeNil())
		})

		It("should support addSource option", func() {
			log := logger.New("info", true, "dev")
			Expect(log).NotTo(BeNil())
		})

		It("should include environment attribute", func() {
			log := logger.New("info", false, "dev")
			Expect(log).NotTo(BeNil())

			// Logger should have default level behavior
			Expect(log.Enabled(context.Background(), slog.LevelInfo)).To(BeTrue())
			Expect(log.Enabled(context.Background(), slog.LevelDebug)).To(BeFalse())
		})

		It("should respect debug level", func() {
			log := logger.New("debug", false, "dev")

			Expect(log.Enabled(context.Background(), slog.LevelDebug)).To(BeTrue())
			Expect(log.Enabled(context.Background(), slog.LevelInfo)).To(BeTrue())
		})

		It("should respect warn level", func() {
			log := logger.New("warn", false, "dev")

			Expect(log.Enabled(context.Background(), slog.LevelInfo)).To(BeFalse())
			Expect(log.Enabled(context.Background(), slog.LevelWarn)).To(BeTrue())
		})

		It("should respect error level", func() {
			log := logger.New("error", false, "dev")

			Expect(log.Enabled(context.Background(), slog.LevelWarn)).To(BeFalse())
			Expect(log.Enabled(context.Background(), slog.LevelError)).To(BeTrue())
		})
	})

	Describe("NewWithOutput", func() {
		It("should write JSON in prod", func() {
			var buf bytes.Buffer
			log := logger.NewWithOutput("info", false, "prod", &buf)
			log.Info("proxy enabled", slog.String("upstream", "http://backend:8000"))

			var line map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &line)).To(Succeed())
			Expect(line["msg"]).To(Equal("proxy enabled"))
			Expect(line["upstream"]).To(Equal("http://backend:8000"))
			Expect(line["environment"]).To(Equal("prod"))
		})

		It("should write text outside prod", func() {
			var buf bytes.Buffer
			log := logger.NewWithOutput("info", false, "dev", &buf)
			log.Info("serving static files")
			Expect(buf.String()).To(ContainSubstring(`msg="serving static files"`))
			Expect(buf.String()).To(ContainSubstring("environment=dev"))
		})
	})

	Describe("NewWithFile", func() {
		It("should return a usable closer without a file", func() {
			log, closer := logger.NewWithFile("info", false, "dev", logger.FileOptions{})
			Expect(log).NotTo(BeNil())
			Expect(closer.Close()).To(Succeed())
		})

		It("should write to the rotated file", func() {
			dir := GinkgoT().TempDir()
			path := filepath.Join(dir, "edge.log")

			log, closer := logger.NewWithFile("info", false, "prod", logger.FileOptions{Path: path, MaxSizeMB: 1})
			log.Info("written to file")
			Expect(closer.Close()).To(Succeed())

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("written to file"))
		})
	})
})
