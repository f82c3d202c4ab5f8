package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/mediarelay/internal/relay"
	"github.com/tanq16/mediarelay/internal/resolver"
	"github.com/tanq16/mediarelay/internal/store"
)

const (
	ActionGetURL   = "get-url"
	ActionDownload = "download"
)

// User-facing error strings. Nothing else about a failure reaches the client.
const (
	msgInvalidURL     = "invalid url"
	msgInvalidScheme  = "invalid scheme"
	msgUnknownAction  = "unknown action"
	msgExtractFailed  = "failed to extract"
	msgDownloadFailed = "download failed"
	msgNoFile         = "no file produced"
	msgTimeout        = "resolution timed out"
	msgServerError    = "server error"
)

// getRequest keeps both fields loosely typed so a non-string url is reported
// as an invalid url rather than a decode failure.
type getRequest struct {
	URL    any `json:"url"`
	Action any `json:"action"`
}

type getURLResponse struct {
	DirectURL string `json:"directUrl"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "active": s.svc.Store().Active()})
}

func (s *Server) get(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)
	var req getRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: msgInvalidURL})
		return
	}
	sourceURL, ok := req.URL.(string)
	if !ok || sourceURL == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: msgInvalidURL})
		return
	}
	if _, err := resolver.ValidateSourceURL(sourceURL); err != nil {
		s.fail(c, "", err)
		return
	}
	action, _ := req.Action.(string)
	switch action {
	case ActionGetURL:
		s.getURL(c, sourceURL)
	case ActionDownload:
		s.download(c, sourceURL)
	default:
		c.JSON(http.StatusBadRequest, errorResponse{Error: msgUnknownAction})
	}
}

func (s *Server) getURL(c *gin.Context, sourceURL string) {
	direct, err := s.svc.ResolveDirectURL(c.Request.Context(), sourceURL)
	if err != nil {
		s.fail(c, ActionGetURL, err)
		return
	}
	c.JSON(http.StatusOK, getURLResponse{DirectURL: direct})
}

func (s *Server) download(c *gin.Context, sourceURL string) {
	ws, f, err := s.svc.Materialize(c.Request.Context(), sourceURL)
	if err != nil {
		s.fail(c, ActionDownload, err)
		return
	}
	written, err := relay.Send(c.Writer, ws, f)
	if err != nil {
		if !c.Writer.Written() {
			s.fail(c, ActionDownload, err)
			return
		}
		// headers and part of the body are already out; the short body is the signal
		log.Error().Str("op", "server/download").Str("request_id", c.GetString(requestIDKey)).Int64("written", written).Int64("size", f.SizeBytes).Err(err).Msg("Relay aborted mid-transfer")
		c.Abort()
	}
}

// fail logs err with full detail and answers with a fixed message.
func (s *Server) fail(c *gin.Context, action string, err error) {
	status, msg := classify(action, err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Str("op", "server/fail").Str("request_id", c.GetString(requestIDKey)).Str("action", action).Err(err).Msg(msg)
	c.JSON(status, errorResponse{Error: msg})
}

func classify(action string, err error) (int, string) {
	switch {
	case errors.Is(err, resolver.ErrInvalidScheme):
		return http.StatusBadRequest, msgInvalidScheme
	case errors.Is(err, resolver.ErrInvalidInput):
		return http.StatusBadRequest, msgInvalidURL
	case errors.Is(err, resolver.ErrTimeout):
		return http.StatusInternalServerError, msgTimeout
	case errors.Is(err, store.ErrNoOutputProduced):
		return http.StatusInternalServerError, msgNoFile
	case errors.Is(err, relay.ErrIO):
		return http.StatusInternalServerError, msgDownloadFailed
	case errors.Is(err, resolver.ErrExternalTool):
		if action == ActionGetURL {
			return http.StatusInternalServerError, msgExtractFailed
		}
		return http.StatusInternalServerError, msgDownloadFailed
	}
	return http.StatusInternalServerError, msgServerError
}
