package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"stickervault/internal/blobstore"
	"stickervault/internal/catalog"
	"stickervault/internal/metrics"
	"stickervault/internal/models"
	"stickervault/internal/storage"
)

type Server struct {
	cfg      *models.Config
	router   *gin.Engine
	srv      *http.Server
	db       *storage.Storage
	blobs    blobstore.Store
	ingester *catalog.Ingester
	curator  *catalog.Curator
	voter    *catalog.Voter
	log      zerolog.Logger
}

func NewServer(cfg *models.Config, db *storage.Storage, blobs blobstore.Store, ingester *catalog.Ingester,
	curator *catalog.Curator, voter *catalog.Voter, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	s := &Server{
		cfg:      cfg,
		router:   r,
		db:       db,
		blobs:    blobs,
		ingester: ingester,
		curator:  curator,
		voter:    voter,
		log:      log.With().Str("component", "http").Logger(),
	}
	r.Use(gin.Recovery(), s.requestLogger(), requestMetrics())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")

	v1.POST("/media", s.handleUpload)
	v1.GET("/media", s.handleListMedia)
	v1.GET("/media/:id", s.handleGetMedia)
	v1.GET("/media/:id/file", s.handleGetFile)
	v1.PUT("/media/:id/description", s.handleSetDescription)
	v1.PUT("/media/:id/text", s.handleSetExtractedText)
	v1.PUT("/media/:id/nsfw", s.handleSetNSFW)
	v1.POST("/media/:id/tags", s.handleTag)
	v1.DELETE("/media/:id/tags", s.handleUntag)
	v1.POST("/media/:id/votes", s.handleVote)
	v1.GET("/media/:id/votes", s.handleGetVotes)
	v1.DELETE("/media/:id/votes", s.handleDismissVotes)
	v1.GET("/random", s.handleRandom)
	v1.GET("/tags/top", s.handleTopTags)

	v1.POST("/packs", s.handleCreatePack)
	v1.GET("/packs", s.handleListPacks)
	v1.GET("/packs/:id", s.handleGetPack)
	v1.DELETE("/packs/:id", s.handleDeletePack)
	v1.POST("/packs/:id/stickers", s.handleAddSticker)
	v1.DELETE("/packs/:id/stickers/:media_id", s.handleRemoveSticker)
	v1.POST("/pack-series/:name/stickers", s.handleAddToSeries)
	v1.GET("/pack-series/:name/suggestion", s.handleSuggestPackName)

	v1.GET("/moderation/pending", s.handlePending)
	v1.GET("/stats/processing", s.handleProcessingStats)

	s.srv = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start blocks until the server stops. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.ServerAddr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.db.DB().PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database: " + err.Error()})
		return
	}
	if err := s.blobs.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "blob storage: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := s.log.Debug()
		if status >= 500 {
			event = s.log.Error()
		} else if status >= 400 {
			event = s.log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg(c.Errors.ByType(gin.ErrorTypePrivate).String())
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RequestsTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, op string, err error) {
	var (
		dup  *models.DuplicateError
		near *models.NearDuplicateError
	)
	switch {
	case errors.As(err, &dup):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "existing_id": dup.ExistingID})
	case errors.As(err, &near):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "existing_id": near.ExistingID, "distance": near.Distance})
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrCapacityExceeded):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrConstraint):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case storage.IsTransient(err):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage busy, retry"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: internal error", op)})
	}
}

func (s *Server) badRequest(c *gin.Context, op string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
}

func parseMediaID(c *gin.Context, param string) (uuid.UUID, error) {
	return uuid.Parse(c.Param(param))
}

func parsePackID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func pageFromQuery(c *gin.Context) models.Page {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return models.Page{Limit: limit, Offset: offset}.Normalize()
}
