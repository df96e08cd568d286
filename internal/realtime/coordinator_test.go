package realtime

import (
	"context"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// testCoordinator uses a client pointed at a closed port: Subscribe still
// hands back a PubSub, and nothing in these tests reads from it.
func testCoordinator() *Coordinator {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	return NewCoordinator(NewRegistry(), nil, rdb, zerolog.Nop())
}

func TestCoordinatorUnsubscribeKeepsRepopulatedRoom(t *testing.T) {
	c := testCoordinator()
	room := "room:group:a"
	leaver := testSession()
	joiner := testSession()

	c.reg.Add(room, leaver)
	c.subs[room] = c.rdb.Subscribe(context.Background(), room)

	// Last member leaves, but a joiner lands before the close runs. The
	// joiner's path sees the open subscription and keeps it.
	assert.True(t, c.reg.Remove(room, leaver))
	c.reg.Add(room, joiner)

	c.unsubscribe(room)

	c.mu.Lock()
	_, alive := c.subs[room]
	c.mu.Unlock()
	assert.True(t, alive, "room with a live member must keep its subscription")
}

func TestCoordinatorUnsubscribeClosesEmptyRoom(t *testing.T) {
	c := testCoordinator()
	room := "room:group:a"
	s := testSession()

	c.reg.Add(room, s)
	c.subs[room] = c.rdb.Subscribe(context.Background(), room)

	assert.True(t, c.reg.Remove(room, s))
	c.unsubscribe(room)

	c.mu.Lock()
	_, alive := c.subs[room]
	c.mu.Unlock()
	assert.False(t, alive, "empty room must drop its subscription")
}

func TestCoordinatorJoinLeaveChurn(t *testing.T) {
	c := testCoordinator()
	ctx := context.Background()
	room := "room:group:a"

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				s := testSession()
				c.join(ctx, s, room)
				if c.reg.Remove(room, s) {
					c.unsubscribe(room)
				}
			}
		}()
	}
	wg.Wait()

	// A fresh member must always end up with a live subscription, no matter
	// how the churn interleaved.
	c.join(ctx, testSession(), room)
	c.mu.Lock()
	_, alive := c.subs[room]
	c.mu.Unlock()
	assert.True(t, alive)
}
