package events

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NoticeType is the severity shown with a notice.
type NoticeType string

const (
	NoticeTypeError   NoticeType = "error"
	NoticeTypeSuccess NoticeType = "success"
	NoticeTypeInfo    NoticeType = "info"
	NoticeTypeWarning NoticeType = "warning"

	// DefaultNoticeLifetime is how long a notice stays active after publication.
	DefaultNoticeLifetime = 5 * time.Second
)

// Notice is a short-lived operator-facing message, such as an upstream API failure.
type Notice struct {
	ID        string     `json:"id"`
	Message   string     `json:"message"`
	Type      NoticeType `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
}

// NoticeBus publishes notices to subscribers and keeps the currently active ones.
// Subscribers receive the full active list after every change.
type NoticeBus struct {
	mutex       sync.Mutex
	active      []Notice
	lifetime    time.Duration
	now         func() time.Time
	afterFunc   func(time.Duration, func()) *time.Timer
	broadcaster *Broadcaster[[]Notice]
}

// NewNoticeBus constructs a bus whose notices expire after DefaultNoticeLifetime.
func NewNoticeBus() *NoticeBus {
	return &NoticeBus{
		lifetime:    DefaultNoticeLifetime,
		now:         time.Now,
		afterFunc:   time.AfterFunc,
		broadcaster: NewBroadcaster[[]Notice](),
	}
}

// WithLifetime overrides the expiry applied to newly published notices.
func (bus *NoticeBus) WithLifetime(lifetime time.Duration) *NoticeBus {
	if lifetime > 0 {
		bus.lifetime = lifetime
	}
	return bus
}

// Publish records a notice and schedules its removal. Empty messages are ignored.
func (bus *NoticeBus) Publish(message string, noticeType NoticeType) (Notice, bool) {
	if bus == nil {
		return Notice{}, false
	}
	trimmedMessage := strings.TrimSpace(message)
	if trimmedMessage == "" {
		return Notice{}, false
	}
	if noticeType == "" {
		noticeType = NoticeTypeError
	}
	notice := Notice{
		ID:        uuid.NewString(),
		Message:   trimmedMessage,
		Type:      noticeType,
		Timestamp: bus.now().UTC(),
	}

	bus.mutex.Lock()
	bus.active = append(bus.active, notice)
	snapshot := bus.snapshotLocked()
	bus.mutex.Unlock()

	bus.broadcaster.Broadcast(snapshot)
	bus.afterFunc(bus.lifetime, func() {
		bus.Dismiss(notice.ID)
	})
	return notice, true
}

// Dismiss removes a notice by id. Unknown ids are ignored.
func (bus *NoticeBus) Dismiss(noticeID string) {
	if bus == nil {
		return
	}
	bus.mutex.Lock()
	removed := false
	remaining := bus.active[:0]
	for _, notice := range bus.active {
		if notice.ID == noticeID {
			removed = true
			continue
		}
		remaining = append(remaining, notice)
	}
	bus.active = remaining
	snapshot := bus.snapshotLocked()
	bus.mutex.Unlock()

	if removed {
		bus.broadcaster.Broadcast(snapshot)
	}
}

// Active returns a copy of the notices that have not expired yet.
func (bus *NoticeBus) Active() []Notice {
	if bus == nil {
		return nil
	}
	bus.mutex.Lock()
	defer bus.mutex.Unlock()
	return bus.snapshotLocked()
}

// Subscribe returns a handle streaming the active notice list after every change.
func (bus *NoticeBus) Subscribe() *Subscription[[]Notice] {
	if bus == nil {
		return nil
	}
	return bus.broadcaster.Subscribe()
}

// Close releases all subscribers.
func (bus *NoticeBus) Close() {
	if bus == nil {
		return
	}
	bus.broadcaster.Close()
}

func (bus *NoticeBus) snapshotLocked() []Notice {
	snapshot := make([]Notice, len(bus.active))
	copy(snapshot, bus.active)
	return snapshot
}
