package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func testSession() *Session {
	return &Session{ID: uuid.New(), UserID: uuid.New()}
}

func TestRegistryAddRemove(t *testing.T) {
	reg := NewRegistry()
	s1 := testSession()
	s2 := testSession()

	assert.True(t, reg.Add("room:group:a", s1), "first member should trigger subscribe")
	assert.False(t, reg.Add("room:group:a", s2), "second member should not")

	assert.True(t, reg.InRoom("room:group:a", s1))
	assert.True(t, reg.InRoom("room:group:a", s2))
	assert.Len(t, reg.Members("room:group:a"), 2)

	assert.False(t, reg.Remove("room:group:a", s1), "room still has a member")
	assert.True(t, reg.Remove("room:group:a", s2), "last member should trigger unsubscribe")
	assert.False(t, reg.InRoom("room:group:a", s2))
	assert.Empty(t, reg.Members("room:group:a"))
}

func TestRegistryAddIsIdempotentPerSession(t *testing.T) {
	reg := NewRegistry()
	s := testSession()

	assert.True(t, reg.Add("room:group:a", s))
	assert.False(t, reg.Add("room:group:a", s))
	assert.Len(t, reg.Members("room:group:a"), 1)

	assert.True(t, reg.Remove("room:group:a", s))
}

func TestRegistryRemoveUnknownRoom(t *testing.T) {
	reg := NewRegistry()
	assert.False(t, reg.Remove("room:group:missing", testSession()))
}

func TestRegistryRemoveAll(t *testing.T) {
	reg := NewRegistry()
	s := testSession()
	other := testSession()

	reg.Add("room:user:x", s)
	reg.Add("room:group:a", s)
	reg.Add("room:group:b", s)
	reg.Add("room:group:b", other)

	emptied := reg.RemoveAll(s)

	// the shared room still has a member, so only two rooms drained
	assert.ElementsMatch(t, []string{"room:user:x", "room:group:a"}, emptied)
	assert.Empty(t, reg.Rooms(s))
	assert.True(t, reg.InRoom("room:group:b", other))
}

func TestRegistryRoomsSnapshot(t *testing.T) {
	reg := NewRegistry()
	s := testSession()

	reg.Add("room:user:x", s)
	reg.Add("room:group:a", s)

	assert.ElementsMatch(t, []string{"room:user:x", "room:group:a"}, reg.Rooms(s))
}

func TestRegistryConcurrentChurn(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := testSession()
			room := fmt.Sprintf("room:group:%d", i%4)
			reg.Add(room, s)
			reg.InRoom(room, s)
			reg.Members(room)
			reg.RemoveAll(s)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		assert.Empty(t, reg.Members(fmt.Sprintf("room:group:%d", i)))
	}
}
