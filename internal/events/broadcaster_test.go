package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster[int](4)

	first, unsubFirst := b.Subscribe()
	second, unsubSecond := b.Subscribe()
	defer unsubSecond()

	b.Publish(1)
	assert.Equal(t, 1, <-first)
	assert.Equal(t, 1, <-second)

	unsubFirst()
	unsubFirst()
	_, ok := <-first
	assert.False(t, ok)
	assert.Equal(t, 1, b.Len())
}

func TestBroadcaster_DropsForSlowReader(t *testing.T) {
	b := NewBroadcaster[int](1)
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Publish(1)
	b.Publish(2)

	require.Len(t, ch, 1)
	assert.Equal(t, 1, <-ch)
}
