package events

import (
	"context"
	"sync"
)

// MemoryBroker is an in-process Broker for single-node deployments and
// tests. Delivery order per subscriber matches publish order.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[string]map[int]*memorySub
	next int
}

type memorySub struct {
	ch     chan Event
	ctx    context.Context
	cancel context.CancelFunc
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[int]*memorySub)}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[channel] {
		select {
		case sub.ch <- event:
		case <-sub.ctx.Done():
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string, handler Handler) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &memorySub{ch: make(chan Event, 64), ctx: subCtx, cancel: cancel}

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]*memorySub)
	}
	id := b.next
	b.next++
	b.subs[channel][id] = sub
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.subs[channel], id)
			b.mu.Unlock()
		}()
		for {
			select {
			case <-subCtx.Done():
				return
			case event := <-sub.ch:
				_ = handler(subCtx, event)
			}
		}
	}()

	return &Subscription{cancel: cancel}, nil
}
