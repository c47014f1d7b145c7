package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/flakefi/flake-backend/internal/exchange"
	"github.com/flakefi/flake-backend/internal/store"
)

// CacheSink forwards engine events onto the live event channel the WebSocket
// hub and SSE handler subscribe to. Publishing is best-effort; a failed
// publish never fails the settlement that produced the event.
type CacheSink struct {
	cache  *store.Cache
	logger *zap.SugaredLogger
}

func NewCacheSink(cache *store.Cache, logger *zap.SugaredLogger) *CacheSink {
	return &CacheSink{cache: cache, logger: logger}
}

func (s *CacheSink) Publish(evt exchange.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.cache.Publish(ctx, store.ChannelEvents, evt); err != nil {
		s.logger.Warnw("Failed to publish engine event", "type", evt.Type, "pair", evt.Pair, "error", err)
	}
}
