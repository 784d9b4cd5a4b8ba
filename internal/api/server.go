// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api hosts the local management HTTP server.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/atlasbridge/atlasbridge/internal/api/handlers/management"
	"github.com/atlasbridge/atlasbridge/internal/config"
	"github.com/atlasbridge/atlasbridge/internal/util"
)

// managementKeyHeader carries the shared secret for mutating endpoints.
const managementKeyHeader = "X-Management-Key"

// Server is the management API server.
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	http   *http.Server
}

// NewServer builds the router. The management surface is guarded twice:
// only direct loopback connections are accepted, and every request must
// present the configured management key.
func NewServer(cfg *config.Config, handler *management.Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	group := engine.Group("/api/v1")
	group.Use(localhostOnly(), requireManagementKey(cfg))
	handler.Register(group)

	return &Server{
		cfg:    cfg,
		engine: engine,
		http: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	log.WithField("addr", s.http.Addr).Info("management API listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("management API server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func localhostOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !util.IsLocalhostDirect(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "management API is localhost only"})
			return
		}
		c.Next()
	}
}

func requireManagementKey(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.CheckManagementKey(c.GetHeader(managementKeyHeader)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid management key"})
			return
		}
		c.Next()
	}
}
