package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/mediarelay/internal/resolver"
	"github.com/tanq16/mediarelay/internal/store"
)

// Service runs the two resolution modes against a pluggable resolver.
// Requests share nothing but the transient root, and each one works in its
// own workspace below it.
type Service struct {
	resolver resolver.Resolver
	store    *store.Store
}

func NewService(r resolver.Resolver, s *store.Store) *Service {
	return &Service{resolver: r, store: s}
}

func (s *Service) Store() *store.Store {
	return s.store
}

// ResolveDirectURL validates sourceURL and asks the resolver for a direct
// media URL. Failures are not retried.
func (s *Service) ResolveDirectURL(ctx context.Context, sourceURL string) (string, error) {
	u, err := resolver.ValidateSourceURL(sourceURL)
	if err != nil {
		return "", err
	}
	start := time.Now()
	out, err := s.resolver.ResolveURL(ctx, u.String())
	if err != nil {
		return "", err
	}
	direct, err := resolver.ExtractDirectURL(out)
	if err != nil {
		return "", err
	}
	log.Info().Str("op", "pipeline/resolve").Str("url", u.String()).Dur("took", time.Since(start)).Msg("Direct URL resolved")
	return direct, nil
}

// Materialize validates sourceURL, has the resolver write the media into a
// fresh workspace and returns that workspace with the discovered file. The
// caller owns the workspace and must Release it. On error nothing is left
// behind.
func (s *Service) Materialize(ctx context.Context, sourceURL string) (*store.Workspace, *store.File, error) {
	u, err := resolver.ValidateSourceURL(sourceURL)
	if err != nil {
		return nil, nil, err
	}
	ws, err := s.store.Create()
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()
	if err := s.resolver.Materialize(ctx, u.String(), ws.Dir); err != nil {
		ws.Release()
		return nil, nil, err
	}
	f, err := ws.Discover()
	if err != nil {
		ws.Release()
		log.Error().Str("op", "pipeline/materialize").Str("workspace", ws.ID).Err(err).Msg("Resolver reported success but produced no file")
		return nil, nil, fmt.Errorf("materializing %s: %w", u.Redacted(), err)
	}
	log.Info().Str("op", "pipeline/materialize").Str("workspace", ws.ID).Str("file", f.Name).Int64("bytes", f.SizeBytes).Dur("took", time.Since(start)).Msg("Media materialized")
	return ws, f, nil
}
