package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tanq16/mediarelay/internal/pipeline"
	"github.com/tanq16/mediarelay/internal/utils"
)

const shutdownGrace = 10 * time.Second

type Config struct {
	MaxBodyBytes int64
}

type Server struct {
	svc    *pipeline.Service
	cfg    Config
	router *gin.Engine
}

func New(svc *pipeline.Service, cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = utils.DefaultMaxBodyBytes
	}
	s := &Server{svc: svc, cfg: cfg}
	s.router = s.buildRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware())
	router.Use(gin.CustomRecovery(recoveryHandler))
	router.GET("/healthz", s.health)
	api := router.Group("/api")
	api.POST("/get", s.get)
	return router
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. Write timeouts are left unset because relayed downloads can run
// for as long as the media takes to transfer.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := utils.GetLogger("server")
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("op", "server/serve").Str("address", ln.Addr().String()).Msg("HTTP server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	log.Debug().Str("op", "server/serve").Msg("Received shutdown signal, initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info().Str("op", "server/serve").Msg("HTTP server stopped")
	return nil
}
