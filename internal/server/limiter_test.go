package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func TestLimiterSetDisabled(t *testing.T) {
	var s *limiterSet = newLimiterSet(0, 5)
	assert.Nil(t, s)
	assert.True(t, s.allow("a@example.com"))
}

func TestLimiterSetEvictsIdleIdentities(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newLimiterSet(1, 2)
	s.now = func() time.Time { return clock }
	assert.Equal(t, minLimiterIdle, s.idle)

	for i := 0; i < 100; i++ {
		s.allow(fmt.Sprintf("user%d@example.com", i))
	}
	assert.Equal(t, 100, s.size())

	clock = clock.Add(30 * time.Second)
	assert.True(t, s.allow("active@example.com"))
	assert.Equal(t, 101, s.size())

	clock = clock.Add(45 * time.Second)
	assert.True(t, s.allow("active@example.com"))
	assert.Equal(t, 1, s.size(), "only the identity seen within the idle window survives")
}

func TestLimiterSetKeepsBudgetOfActiveIdentity(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newLimiterSet(1, 2)
	s.now = func() time.Time { return clock }

	assert.True(t, s.allow("a@example.com"))
	assert.True(t, s.allow("a@example.com"))
	assert.False(t, s.allow("a@example.com"))

	clock = clock.Add(time.Second)
	assert.True(t, s.allow("a@example.com"))
	assert.False(t, s.allow("a@example.com"))
}
