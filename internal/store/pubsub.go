package store

import (
	"context"
	"sync"
)

// Message mirrors redis.Message for the in-memory pubsub path.
type Message struct {
	Channel string
	Payload string
}

// LocalPubSub is the in-memory stand-in for redis.PubSub, used when the
// cache runs without a Redis backend.
type LocalPubSub struct {
	channels map[string]bool
	msgChan  chan *Message
	closeCh  chan struct{}
	closed   bool
	mu       sync.RWMutex
}

func newLocalPubSub(channels []string) *LocalPubSub {
	channelMap := make(map[string]bool, len(channels))
	for _, ch := range channels {
		channelMap[ch] = true
	}

	return &LocalPubSub{
		channels: channelMap,
		msgChan:  make(chan *Message, 100),
		closeCh:  make(chan struct{}),
	}
}

// Channel returns the message channel.
func (p *LocalPubSub) Channel() <-chan *Message {
	return p.msgChan
}

// Close closes the subscription.
func (p *LocalPubSub) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		p.closed = true
		close(p.closeCh)
		close(p.msgChan)
	}
	return nil
}

func (p *LocalPubSub) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// deliver forwards a message without ever blocking the publisher; a full
// subscriber buffer drops the message.
func (p *LocalPubSub) deliver(msg *Message) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || !p.channels[msg.Channel] {
		return
	}

	select {
	case p.msgChan <- msg:
	default:
	}
}

// PubSubHub fans published messages out to every local subscription.
type PubSubHub struct {
	subscribers map[string][]*LocalPubSub
	mu          sync.RWMutex
}

func NewPubSubHub() *PubSubHub {
	return &PubSubHub{
		subscribers: make(map[string][]*LocalPubSub),
	}
}

// Subscribe registers a new subscription for the given channels. The
// subscription is torn down when ctx finishes or Close is called.
func (h *PubSubHub) Subscribe(ctx context.Context, channels ...string) *LocalPubSub {
	pubsub := newLocalPubSub(channels)

	h.mu.Lock()
	for _, channel := range channels {
		h.subscribers[channel] = append(h.subscribers[channel], pubsub)
	}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			pubsub.Close()
		case <-pubsub.closeCh:
		}

		h.mu.Lock()
		defer h.mu.Unlock()

		for _, channel := range channels {
			subscribers := h.subscribers[channel]
			for i, sub := range subscribers {
				if sub == pubsub {
					h.subscribers[channel] = append(subscribers[:i], subscribers[i+1:]...)
					break
				}
			}
			if len(h.subscribers[channel]) == 0 {
				delete(h.subscribers, channel)
			}
		}
	}()

	return pubsub
}

// Publish sends a message to every subscriber of the channel.
func (h *PubSubHub) Publish(channel, payload string) {
	h.mu.RLock()
	subscribers := make([]*LocalPubSub, len(h.subscribers[channel]))
	copy(subscribers, h.subscribers[channel])
	h.mu.RUnlock()

	if len(subscribers) == 0 {
		return
	}

	msg := &Message{
		Channel: channel,
		Payload: payload,
	}

	for _, sub := range subscribers {
		if !sub.isClosed() {
			sub.deliver(msg)
		}
	}
}
