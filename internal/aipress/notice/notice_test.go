package notice

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushDismiss(t *testing.T) {
	c := NewCenter(time.Minute)
	defer c.Close()
	var changes atomic.Int32
	c.OnChange(func([]Notice) { changes.Add(1) })

	a := c.Push(LevelError, "Не удалось загрузить файл")
	b := c.Push(LevelInfo, "Сохранено")
	active := c.Active()
	require.Len(t, active, 2)
	assert.Equal(t, a, active[0].ID)
	assert.Equal(t, LevelError, active[0].Level)

	c.Dismiss(a)
	c.Dismiss(a)
	active = c.Active()
	require.Len(t, active, 1)
	assert.Equal(t, b, active[0].ID)
	assert.EqualValues(t, 3, changes.Load())
}

func TestExpiry(t *testing.T) {
	c := NewCenter(20 * time.Millisecond)
	defer c.Close()
	c.Push(LevelWarning, "Слишком много запросов")
	assert.Len(t, c.Active(), 1)
	assert.Eventually(t, func() bool { return len(c.Active()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestActiveHidesExpired(t *testing.T) {
	c := NewCenter(time.Hour)
	defer c.Close()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.Push(LevelInfo, "x")
	now = now.Add(2 * time.Hour)
	assert.Empty(t, c.Active())
}

func TestDefaultTTL(t *testing.T) {
	c := NewCenter(0)
	defer c.Close()
	assert.Equal(t, DefaultTTL, c.ttl)
}
