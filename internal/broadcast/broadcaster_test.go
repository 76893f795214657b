package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-buy-monitor/internal/domain"
)

func TestBroadcasterDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster(4, nil)

	id1, ch1 := b.Register()
	id2, ch2 := b.Register()
	defer b.Deregister(id1)
	defer b.Deregister(id2)

	event := domain.BuyEvent{Wallet: "W", Signature: "sig-1", SolSpent: 1.5}
	b.Publish(event)

	assert.Equal(t, "sig-1", (<-ch1).Signature)
	assert.Equal(t, "sig-1", (<-ch2).Signature)
}

func TestBroadcasterDropsSlowSubscriber(t *testing.T) {
	b := NewBroadcaster(1, nil)

	_, slow := b.Register()
	idFast, fast := b.Register()
	defer b.Deregister(idFast)

	// Fill the slow subscriber's buffer, keep the fast one drained.
	b.Publish(domain.BuyEvent{Signature: "sig-1"})
	assert.Equal(t, "sig-1", (<-fast).Signature)

	b.Publish(domain.BuyEvent{Signature: "sig-2"})
	assert.Equal(t, "sig-2", (<-fast).Signature)

	assert.Equal(t, 1, b.Len())

	// The slow channel holds the first event and was then closed.
	ev, ok := <-slow
	require.True(t, ok)
	assert.Equal(t, "sig-1", ev.Signature)
	_, ok = <-slow
	assert.False(t, ok)
}

func TestBroadcasterDeregisterClosesChannel(t *testing.T) {
	b := NewBroadcaster(4, nil)

	id, ch := b.Register()
	b.Deregister(id)

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len())

	// Deregistering again is a no-op.
	b.Deregister(id)
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster(4, nil)
	_, ch1 := b.Register()
	_, ch2 := b.Register()

	b.Close()

	_, ok := <-ch1
	assert.False(t, ok)
	_, ok = <-ch2
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len())
}
