// Пакет notice хранит уведомления пользователя, которые можно закрыть и которые истекают сами.
//
// Основные возможности:
//   - Push создаёт уведомление с уровнем и текстом и возвращает его идентификатор.
//   - Уведомление исчезает после TTL или после Dismiss.
//   - Подписчики получают текущий список после каждого изменения.
package notice

import (
	"slices"
	"sync"
	"time"
)

const DefaultTTL = 5 * time.Second

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type ID uint64

type Notice struct {
	ID        ID
	Level     Level
	Message   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type Center struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	nextID    ID
	notices   []Notice
	timers    map[ID]*time.Timer
	listeners []func([]Notice)
}

// NewCenter создаёт центр уведомлений. ttl <= 0 означает DefaultTTL.
func NewCenter(ttl time.Duration) *Center {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Center{ttl: ttl, now: time.Now, timers: map[ID]*time.Timer{}}
}

// OnChange подписывает f на изменения списка. f вызывается вне блокировки.
func (c *Center) OnChange(f func([]Notice)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, f)
}

func (c *Center) Push(level Level, message string) ID {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	now := c.now()
	c.notices = append(c.notices, Notice{ID: id, Level: level, Message: message, CreatedAt: now, ExpiresAt: now.Add(c.ttl)})
	c.timers[id] = time.AfterFunc(c.ttl, func() { c.Dismiss(id) })
	snapshot, listeners := c.snapshotLocked()
	c.mu.Unlock()

	notify(listeners, snapshot)
	return id
}

// Dismiss закрывает уведомление. Повторное закрытие ничего не делает.
func (c *Center) Dismiss(id ID) {
	c.mu.Lock()
	i := slices.IndexFunc(c.notices, func(n Notice) bool { return n.ID == id })
	if i < 0 {
		c.mu.Unlock()
		return
	}
	c.notices = slices.Delete(c.notices, i, i+1)
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	snapshot, listeners := c.snapshotLocked()
	c.mu.Unlock()

	notify(listeners, snapshot)
}

// Active уведомления, срок которых ещё не истёк, в порядке создания.
func (c *Center) Active() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	active := make([]Notice, 0, len(c.notices))
	for _, n := range c.notices {
		if now.Before(n.ExpiresAt) {
			active = append(active, n)
		}
	}
	return active
}

// Close останавливает таймеры истечения.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *Center) snapshotLocked() ([]Notice, []func([]Notice)) {
	return slices.Clone(c.notices), slices.Clone(c.listeners)
}

func notify(listeners []func([]Notice), snapshot []Notice) {
	for _, f := range listeners {
		f(snapshot)
	}
}
