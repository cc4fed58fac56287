// Package web exposes a small HTTP API with the gateway's operational state:
// registered versions, their manifests, and recent patch activity. It is meant
// for operators and dashboards, not for game clients.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/patchgate/patchgate/internal/core"
	"github.com/patchgate/patchgate/internal/journal"
	"github.com/patchgate/patchgate/internal/registry"
)

const recentRequestLimit = 100

// Server hosts the operator status API.
type Server struct {
	Config   *core.Config
	Logger   *logrus.Logger
	Registry *registry.Registry
	// Optional; the request history endpoints 404 without it.
	Journal *journal.Journal

	httpServer *http.Server
}

type versionSummary struct {
	Version   int    `json:"version"`
	Port      int    `json:"port"`
	FileCount int    `json:"file_count"`
	Directory string `json:"directory"`
}

type manifestEntry struct {
	Path     string `json:"path"`
	Size     uint32 `json:"size"`
	Checksum string `json:"checksum"`
}

type requestSummary struct {
	RemoteAddr      string    `json:"remote_addr"`
	ReportedVersion int       `json:"reported_version"`
	TargetVersion   int       `json:"target_version"`
	ChangeCount     int       `json:"change_count"`
	UpToDate        bool      `json:"up_to_date"`
	CreatedAt       time.Time `json:"created_at"`
}

// Start binds the API on the configured port and serves until the context is
// canceled.
func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Config.Web.HTTPPort),
		Handler: s.routes(),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	go func() {
		s.Logger.Printf("[WEB] serving status API on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Errorf("[WEB] server exited: %v", err)
		}
	}()

	return nil
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleHealth)
	router.GET("/versions", s.handleVersions)
	router.GET("/versions/:id/manifest", s.handleManifest)
	router.GET("/requests", s.handleRequests)
	router.GET("/requests/counts", s.handleRequestCounts)

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"versions":    len(s.Registry.Versions()),
		"file_server": s.Config.FileServerAddress(),
	})
}

func (s *Server) handleVersions(c *gin.Context) {
	summaries := make([]versionSummary, 0)
	for _, version := range s.Registry.Versions() {
		summaries = append(summaries, versionSummary{
			Version:   version.ID,
			Port:      version.Port(),
			FileCount: len(version.Manifest),
			Directory: version.Dir,
		})
	}
	c.JSON(http.StatusOK, summaries)
}

func (s *Server) handleManifest(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version must be numeric"})
		return
	}

	version := s.Registry.Lookup(id)
	if version == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "version is not registered"})
		return
	}

	entries := make([]manifestEntry, 0, len(version.Manifest))
	for _, path := range version.Manifest.Paths() {
		file := version.Manifest[path]
		entries = append(entries, manifestEntry{
			Path:     file.Path,
			Size:     file.Size,
			Checksum: fmt.Sprintf("%08x", file.Checksum),
		})
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleRequests(c *gin.Context) {
	if s.Journal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "request journal is disabled"})
		return
	}

	records, err := s.Journal.RecentRequests(recentRequestLimit)
	if err != nil {
		s.Logger.Errorf("[WEB] failed to read journal: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read journal"})
		return
	}

	summaries := make([]requestSummary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, requestSummary{
			RemoteAddr:      record.RemoteAddr,
			ReportedVersion: record.ReportedVersion,
			TargetVersion:   record.TargetVersion,
			ChangeCount:     record.ChangeCount,
			UpToDate:        record.UpToDate,
			CreatedAt:       record.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, summaries)
}

func (s *Server) handleRequestCounts(c *gin.Context) {
	if s.Journal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "request journal is disabled"})
		return
	}

	counts, err := s.Journal.CountByTargetVersion()
	if err != nil {
		s.Logger.Errorf("[WEB] failed to read journal: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read journal"})
		return
	}
	c.JSON(http.StatusOK, counts)
}
