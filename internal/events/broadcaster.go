package events

import "sync"

const defaultSubscriptionBuffer = 8

// Broadcaster fan-outs values to subscribed receivers. Slow receivers drop values rather than
// blocking publishers.
type Broadcaster[T any] struct {
	mutex        sync.Mutex
	nextID       int64
	subscribers  map[int64]chan T
	closed       bool
	bufferLength int
}

// NewBroadcaster constructs a broadcaster with the default per-subscriber buffer.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		subscribers:  make(map[int64]chan T),
		bufferLength: defaultSubscriptionBuffer,
	}
}

// Subscribe registers a receiver. It returns nil once the broadcaster is closed.
func (broadcaster *Broadcaster[T]) Subscribe() *Subscription[T] {
	if broadcaster == nil {
		return nil
	}
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	if broadcaster.closed {
		return nil
	}
	subscriptionID := broadcaster.nextID
	broadcaster.nextID++
	channel := make(chan T, broadcaster.bufferLength)
	broadcaster.subscribers[subscriptionID] = channel
	return &Subscription[T]{
		broadcaster: broadcaster,
		identifier:  subscriptionID,
		values:      channel,
	}
}

// Broadcast delivers value to every active subscriber.
func (broadcaster *Broadcaster[T]) Broadcast(value T) {
	if broadcaster == nil {
		return
	}
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	if broadcaster.closed {
		return
	}
	for _, channel := range broadcaster.subscribers {
		select {
		case channel <- value:
		default:
		}
	}
}

// SubscriberCount reports the number of active subscriptions.
func (broadcaster *Broadcaster[T]) SubscriberCount() int {
	if broadcaster == nil {
		return 0
	}
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	return len(broadcaster.subscribers)
}

// Close stops the broadcaster and closes all subscriber channels.
func (broadcaster *Broadcaster[T]) Close() {
	if broadcaster == nil {
		return
	}
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	if broadcaster.closed {
		return
	}
	broadcaster.closed = true
	for identifier, channel := range broadcaster.subscribers {
		close(channel)
		delete(broadcaster.subscribers, identifier)
	}
}

func (broadcaster *Broadcaster[T]) remove(identifier int64) {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	channel, exists := broadcaster.subscribers[identifier]
	if !exists {
		return
	}
	delete(broadcaster.subscribers, identifier)
	close(channel)
}

// Subscription is the unsubscribe handle returned by Subscribe.
type Subscription[T any] struct {
	broadcaster *Broadcaster[T]
	identifier  int64
	values      chan T
	once        sync.Once
}

// Events exposes the receive-only value channel.
func (subscription *Subscription[T]) Events() <-chan T {
	if subscription == nil {
		return nil
	}
	return subscription.values
}

// Close unregisters the subscription and closes its channel.
func (subscription *Subscription[T]) Close() {
	if subscription == nil {
		return
	}
	subscription.once.Do(func() {
		if subscription.broadcaster != nil {
			subscription.broadcaster.remove(subscription.identifier)
		}
	})
}
