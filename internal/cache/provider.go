package cache

import (
	"context"

	"go.uber.org/zap"

	"github.com/raaihank/report-sentinel/internal/rewrite"
)

// CachedProvider is a read-through decorator over a rewrite provider.
// Identical requests get the identical candidate, so a resubmission with an
// override is checked against the text the reviewer saw. Redis failures
// fall back to the provider.
type CachedProvider struct {
	next   rewrite.Provider
	cache  *CandidateCache
	logger *zap.Logger
}

// NewCachedProvider wraps next with the cache
func NewCachedProvider(next rewrite.Provider, cache *CandidateCache, logger *zap.Logger) *CachedProvider {
	return &CachedProvider{next: next, cache: cache, logger: logger}
}

func (p *CachedProvider) Name() string { return p.next.Name() }

func (p *CachedProvider) Rewrite(ctx context.Context, redactedText string, in rewrite.Instructions) (string, error) {
	key := p.cache.Key(p.next.Name(), in.System, redactedText)

	cached, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.Warn("Candidate cache unavailable", zap.Error(err))
	}
	if cached != nil {
		return cached.Candidate, nil
	}

	candidate, err := p.next.Rewrite(ctx, redactedText, in)
	if err != nil {
		return "", err
	}

	if err := p.cache.Store(ctx, key, &CachedCandidate{Candidate: candidate, Provider: p.next.Name()}); err != nil {
		p.logger.Warn("Failed to cache candidate", zap.Error(err))
	}
	return candidate, nil
}
