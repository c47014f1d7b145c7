package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
)

// newMemoryCache creates a cache in in-memory mode by pointing it at an
// unreachable Redis address.
func newMemoryCache(t *testing.T) *Cache {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	cache, err := NewCache("invalid:6379", logger.Sugar(), nil)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	if !cache.IsInMemoryMode() {
		t.Fatal("Expected cache to be in in-memory mode")
	}
	return cache
}

func TestInMemoryCacheRoundTrip(t *testing.T) {
	cache := newMemoryCache(t)
	ctx := context.Background()

	type pairView struct {
		CreationNumber uint64 `json:"creation_number"`
		Ticker         string `json:"ticker"`
	}
	want := pairView{CreationNumber: 3, Ticker: "FLK"}

	if err := cache.SetPair(ctx, 3, want); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}

	var got pairView
	if err := cache.GetPair(ctx, 3, &got); err != nil {
		t.Fatalf("Failed to get value: %v", err)
	}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	if err := cache.InvalidatePair(ctx, 3); err != nil {
		t.Fatalf("Failed to invalidate: %v", err)
	}
	if err := cache.GetPair(ctx, 3, &got); err != ErrCacheMiss {
		t.Errorf("Expected cache miss after invalidation, got %v", err)
	}
}

func TestInMemoryCacheMiss(t *testing.T) {
	cache := newMemoryCache(t)

	var dest map[string]interface{}
	if err := cache.Get(context.Background(), "flake:absent", &dest); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestInMemoryPubSub(t *testing.T) {
	cache := newMemoryCache(t)
	ctx := context.Background()

	message := map[string]string{
		"type": "swap.executed",
		"pair": "0",
	}

	sub := cache.SubscribeInMemory(ctx, ChannelEvents)
	if sub == nil {
		t.Fatal("Expected local pubsub to be available")
	}
	defer sub.Close()

	if err := cache.Publish(ctx, ChannelEvents, message); err != nil {
		t.Fatalf("Failed to publish message: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		if msg == nil {
			t.Fatal("Received nil message")
		}
		if msg.Channel != ChannelEvents {
			t.Errorf("Expected channel %s, got %s", ChannelEvents, msg.Channel)
		}

		var received map[string]string
		if err := json.Unmarshal([]byte(msg.Payload), &received); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		if received["type"] != message["type"] {
			t.Errorf("Expected type %s, got %s", message["type"], received["type"])
		}

	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for pubsub message")
	}
}
