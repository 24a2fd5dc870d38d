package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventLikeChanged  = "like-change"
	RealtimeEventClickChanged = "click-change"
	realtimeEventHeartbeat    = "heartbeat"
	realtimeSourceBackend     = "yolinkify-api"
)

// RealtimeMessage carries freshly computed aggregate counts for one link.
// It never names the viewer that caused the change.
type RealtimeMessage struct {
	LinkID     string
	EventType  string
	LikesCount int64
	Clicks     int64
	Timestamp  time.Time
}

// RealtimeDispatcher fans engagement changes out to the stream subscribers of
// each link. Slow subscribers drop messages rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, linkID string) (<-chan RealtimeMessage, func()) {
	if linkID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(linkID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(linkID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.LinkID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.LinkID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports how many streams currently follow the link.
func (d *RealtimeDispatcher) SubscriberCount(linkID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[linkID])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(linkID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[linkID]; !ok {
		d.subscribers[linkID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[linkID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(linkID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[linkID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, linkID)
		}
	}
	d.mu.Unlock()
}
