package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/flakefi/flake-backend/internal/store"
)

// SSEHandler streams engine events over Server-Sent Events for clients that
// cannot hold a WebSocket.
type SSEHandler struct {
	cache  *store.Cache
	logger *zap.SugaredLogger
}

func NewSSEHandler(cache *store.Cache, logger *zap.SugaredLogger) *SSEHandler {
	return &SSEHandler{
		cache:  cache,
		logger: logger,
	}
}

// sseFilter is the per-connection event filter parsed from the query string:
// ?pair=3 limits the stream to one pair, ?type=swap.executed to one event
// type. Both default to everything.
type sseFilter struct {
	pair    *uint64
	evtType string
}

func parseFilter(r *http.Request) sseFilter {
	var f sseFilter
	if raw := r.URL.Query().Get("pair"); raw != "" {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			f.pair = &n
		}
	}
	f.evtType = r.URL.Query().Get("type")
	return f
}

func (f sseFilter) matches(payload string) (eventType string, ok bool) {
	var evt struct {
		Type string `json:"type"`
		Pair uint64 `json:"pair"`
	}
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return "update", true
	}
	if f.pair != nil && evt.Pair != *f.pair {
		return "", false
	}
	if f.evtType != "" && evt.Type != f.evtType {
		return "", false
	}
	if evt.Type == "" {
		return "update", true
	}
	return evt.Type, true
}

func (h *SSEHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Set configurable CORS origins - in production, this should be from config
	origin := r.Header.Get("Origin")
	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite dev server
		"https://app.flake.fi",
	}

	corsOrigin := ""
	for _, allowed := range allowedOrigins {
		if origin == allowed {
			corsOrigin = allowed
			break
		}
	}

	if corsOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", corsOrigin)
	}
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	filter := parseFilter(r)
	h.logger.Debugw("SSE connection established", "pair", r.URL.Query().Get("pair"), "type", filter.evtType)

	// Create context that cancels when client disconnects
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	channels := []string{store.ChannelEvents}

	// Try Redis pubsub first
	pubsub := h.cache.Subscribe(ctx, channels...)
	if pubsub != nil {
		defer pubsub.Close()
		h.handleRedisPubSub(ctx, w, pubsub, filter)
		return
	}

	// Fall back to in-memory pubsub if available
	if h.cache.IsInMemoryMode() {
		localPubsub := h.cache.SubscribeInMemory(ctx, channels...)
		if localPubsub != nil {
			defer localPubsub.Close()
			h.logger.Debugw("Using in-memory PubSub for SSE", "channels", channels)
			h.handleLocalPubSub(ctx, w, localPubsub, filter)
			return
		}
	}

	h.logger.Warnw("No PubSub available; SSE updates disabled for this connection")
	h.sendEvent(w, "connected", "SSE connection established (no pubsub)", nil)
}

func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType, id string, data interface{}) {
	if data != nil {
		dataBytes, err := json.Marshal(data)
		if err != nil {
			h.logger.Errorw("Failed to marshal SSE data", "error", err)
			return
		}
		fmt.Fprintf(w, "event: %s\n", eventType)
		fmt.Fprintf(w, "id: %s\n", id)
		fmt.Fprintf(w, "data: %s\n\n", dataBytes)
	} else {
		fmt.Fprintf(w, "event: %s\n", eventType)
		fmt.Fprintf(w, "id: %s\n", id)
		fmt.Fprintf(w, "data: {}\n\n")
	}

	// Flush the data to the client
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (h *SSEHandler) forward(w http.ResponseWriter, payload string, filter sseFilter) {
	eventType, ok := filter.matches(payload)
	if !ok {
		return
	}

	var data interface{}
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		h.logger.Warnw("Failed to parse message payload", "error", err)
		return
	}
	h.sendEvent(w, eventType, store.ChannelEvents, data)
}

// handleRedisPubSub handles Redis pubsub messages for SSE
func (h *SSEHandler) handleRedisPubSub(ctx context.Context, w http.ResponseWriter, pubsub *redis.PubSub, filter sseFilter) {
	// Send initial heartbeat
	h.sendEvent(w, "connected", "SSE connection established", nil)

	// Start heartbeat routine
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	// Listen for messages
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debugw("SSE client disconnected")
			return

		case <-heartbeat.C:
			h.sendEvent(w, "heartbeat", "ping", map[string]interface{}{
				"timestamp": time.Now().Unix(),
			})

		case msg := <-ch:
			if msg == nil {
				continue
			}
			h.logger.Debugw("Sending SSE message", "channel", msg.Channel)
			h.forward(w, msg.Payload, filter)
		}
	}
}

// handleLocalPubSub handles in-memory pubsub messages for SSE
func (h *SSEHandler) handleLocalPubSub(ctx context.Context, w http.ResponseWriter, localPubsub *store.LocalPubSub, filter sseFilter) {
	// Send initial heartbeat
	h.sendEvent(w, "connected", "SSE connection established (in-memory)", nil)

	// Start heartbeat routine
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	// Listen for messages
	ch := localPubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debugw("SSE client disconnected")
			return

		case <-heartbeat.C:
			h.sendEvent(w, "heartbeat", "ping", map[string]interface{}{
				"timestamp": time.Now().Unix(),
			})

		case msg := <-ch:
			if msg == nil {
				continue
			}
			h.logger.Debugw("Sending SSE message", "channel", msg.Channel)
			h.forward(w, msg.Payload, filter)
		}
	}
}
