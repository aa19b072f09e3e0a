// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the papers store over HTTP: the storage API the
// pipeline writes to, a read-only file API for the dataset service, and a
// webhook that turns object-created events into pipeline runs.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/pdiddy/paperflow/internal/papers"
	"github.com/pdiddy/paperflow/pkg/types"
)

// Submitter starts a pipeline run for a source URL without waiting for it.
type Submitter interface {
	Submit(url string) error
}

// Server holds the HTTP handler and its dependencies.
type Server struct {
	cfg       types.ServerConfig
	store     *papers.Store
	submitter Submitter
	log       *logrus.Entry
	now       func() time.Time

	handler http.Handler
}

// Option customises a Server.
type Option func(*Server)

// WithSubmitter enables the object-event webhook.
func WithSubmitter(sub Submitter) Option {
	return func(s *Server) { s.submitter = sub }
}

// WithLogger sets the access and error log.
func WithLogger(l *logrus.Entry) Option {
	return func(s *Server) { s.log = l }
}

// New builds the server and its routes.
func New(cfg types.ServerConfig, store *papers.Store, opts ...Option) *Server {
	s := &Server{
		cfg:   cfg,
		store: store,
		log:   logrus.NewEntry(logrus.StandardLogger()),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(RequestID())
	router.Use(Recovery(s.log))
	router.Use(RequestLogger(s.log))
	router.MaxMultipartMemory = 32 << 20

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": s.now().Format(time.RFC3339)})
	})

	api := router.Group("/api")
	{
		api.GET("/papers", s.listPapers)
		api.POST("/papers", s.createPaper)

		api.POST("/fastgpt/v1/file/list", s.listFiles)
		api.GET("/fastgpt/v1/file/content", s.fileContent)
		api.GET("/fastgpt/v1/file/detail", s.fileDetail)
		api.GET("/fastgpt/pdf/:id", s.serveOrigin)

		api.POST("/events/objects", s.objectEvent)
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
	})
	s.handler = c.Handler(router)
	return s
}

// Handler returns the root handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on cfg.Addr until ctx is cancelled, then drains
// in-flight requests for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       120 * time.Second,
		WriteTimeout:      120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.Addr).Info("papers API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving on %s: %w", s.cfg.Addr, err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down papers API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func errorJSON(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg, "request_id": GetRequestID(c)})
}
