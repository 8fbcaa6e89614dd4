package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("job:1")
	other := b.Subscribe("job:2")

	b.Publish("job:1", "started")
	assert.Equal(t, "started", <-ch)
	assert.Empty(t, other)

	b.Unsubscribe("job:1", ch)
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.Subscribers("job:1"))
	assert.Equal(t, 1, b.Subscribers("job:2"))
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("job:1")

	for i := 0; i < 100; i++ {
		b.Publish("job:1", i)
	}
	assert.Equal(t, 0, <-ch)
	assert.Len(t, ch, 15)

	b.Publish("nobody-listens", "x")
}
