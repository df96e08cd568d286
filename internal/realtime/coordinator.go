package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/studycircle/studycircle-backend/internal/config"
	"github.com/studycircle/studycircle-backend/internal/repository"
	ws "github.com/studycircle/studycircle-backend/internal/websocket"
)

// Coordinator connects local WebSocket sessions to the room channels on
// Redis pub/sub. Each room holds one upstream subscription per process,
// opened when the first local session joins and closed when the last one
// leaves. Published events relay verbatim to every local room member, so
// fan-out order follows publish order.
type Coordinator struct {
	reg       *Registry
	groupRepo *repository.GroupRepository
	rdb       *redis.Client
	log       zerolog.Logger

	mu   sync.Mutex
	subs map[string]*redis.PubSub
}

const presenceTTL = 12 * time.Hour

// NewCoordinator creates a new Coordinator.
func NewCoordinator(reg *Registry, groupRepo *repository.GroupRepository, rdb *redis.Client, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		reg:       reg,
		groupRepo: groupRepo,
		rdb:       rdb,
		log:       log.With().Str("component", "realtime_coordinator").Logger(),
		subs:      make(map[string]*redis.PubSub),
	}
}

// Connect registers a session and joins it to its private room plus the
// rooms of every group the user actively belongs to. Room membership is
// re-derived from storage, never trusted from the client.
func (c *Coordinator) Connect(ctx context.Context, s *Session) error {
	c.join(ctx, s, config.CacheKey.UserRoomChannel(s.UserID.String()))

	groupIDs, err := c.groupRepo.ActiveGroupIDsForUser(ctx, s.UserID)
	if err != nil {
		return err
	}
	for _, id := range groupIDs {
		c.join(ctx, s, config.CacheKey.GroupRoomChannel(id.String()))
	}

	// Presence marker expires on its own if the process dies mid-session.
	if err := c.rdb.Set(ctx, config.CacheKey.UserPresenceKey(s.UserID.String()), "1", presenceTTL).Err(); err != nil {
		c.log.Warn().Err(err).Str("user_id", s.UserID.String()).Msg("failed to set presence")
	}

	c.log.Debug().
		Str("session_id", s.ID.String()).
		Str("user_id", s.UserID.String()).
		Int("group_rooms", len(groupIDs)).
		Msg("session connected")
	return nil
}

// JoinGroup subscribes the session to a group room after re-checking
// membership. A non-member gets an error event instead of a subscription.
func (c *Coordinator) JoinGroup(ctx context.Context, s *Session, groupID uuid.UUID) error {
	ok, err := c.groupRepo.IsActiveMember(ctx, groupID, s.UserID)
	if err != nil {
		return err
	}
	if !ok {
		s.WriteError("not a member of this group")
		return nil
	}

	c.join(ctx, s, config.CacheKey.GroupRoomChannel(groupID.String()))
	s.WriteTyped(ws.JoinedGroupResponse{Event: ws.EventJoinedGroup, GroupID: groupID})
	return nil
}

// LeaveGroup unsubscribes the session from a group room.
func (c *Coordinator) LeaveGroup(_ context.Context, s *Session, groupID uuid.UUID) {
	room := config.CacheKey.GroupRoomChannel(groupID.String())
	if c.reg.Remove(room, s) {
		c.unsubscribe(room)
	}
	s.WriteTyped(ws.LeftGroupResponse{Event: ws.EventLeftGroup, GroupID: groupID})
}

// Disconnect drops the session from every room and closes subscriptions
// that no longer have local members. Presence is cleared only when the user
// has no other session on this node.
func (c *Coordinator) Disconnect(s *Session) {
	for _, room := range c.reg.RemoveAll(s) {
		c.unsubscribe(room)
	}
	private := config.CacheKey.UserRoomChannel(s.UserID.String())
	if len(c.reg.Members(private)) == 0 {
		ctx := context.Background()
		if err := c.rdb.Del(ctx, config.CacheKey.UserPresenceKey(s.UserID.String())).Err(); err != nil {
			c.log.Warn().Err(err).Str("user_id", s.UserID.String()).Msg("failed to clear presence")
		}
	}
	c.log.Debug().Str("session_id", s.ID.String()).Msg("session disconnected")
}

// GroupRoomIDs returns the ids of the group rooms the session is in.
func (c *Coordinator) GroupRoomIDs(s *Session) []uuid.UUID {
	prefix := config.CacheKey.GroupRoomChannel("")
	var ids []uuid.UUID
	for _, room := range c.reg.Rooms(s) {
		if !strings.HasPrefix(room, prefix) {
			continue
		}
		if id, err := uuid.Parse(strings.TrimPrefix(room, prefix)); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// InGroupRoom reports whether the session is subscribed to the group room.
func (c *Coordinator) InGroupRoom(s *Session, groupID uuid.UUID) bool {
	return c.reg.InRoom(config.CacheKey.GroupRoomChannel(groupID.String()), s)
}

// Publish marshals an event onto a room channel. Local members receive it
// through the relay like everyone else, keeping ordering uniform.
func (c *Coordinator) Publish(ctx context.Context, channel string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.log.Error().Err(err).Str("channel", channel).Msg("failed to marshal event")
		return
	}
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		c.log.Warn().Err(err).Str("channel", channel).Msg("failed to publish event")
	}
}

// PublishToGroup publishes an event to a group room channel.
func (c *Coordinator) PublishToGroup(ctx context.Context, groupID uuid.UUID, v interface{}) {
	c.Publish(ctx, config.CacheKey.GroupRoomChannel(groupID.String()), v)
}

// PublishToUser publishes an event to a user's private room channel.
func (c *Coordinator) PublishToUser(ctx context.Context, userID uuid.UUID, v interface{}) {
	c.Publish(ctx, config.CacheKey.UserRoomChannel(userID.String()), v)
}

func (c *Coordinator) join(ctx context.Context, s *Session, room string) {
	first := c.reg.Add(room, s)
	if !first {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.subs[room]; exists {
		return
	}
	sub := c.rdb.Subscribe(ctx, room)
	c.subs[room] = sub
	go c.relay(room, sub)
}

func (c *Coordinator) unsubscribe(room string) {
	c.mu.Lock()
	// The registry removal that triggered this call ran outside c.mu, so a
	// joiner may have repopulated the room since. Their join saw the open
	// subscription and kept it; closing now would strand them.
	if len(c.reg.Members(room)) > 0 {
		c.mu.Unlock()
		return
	}
	sub, ok := c.subs[room]
	if ok {
		delete(c.subs, room)
	}
	c.mu.Unlock()
	if ok {
		if err := sub.Close(); err != nil {
			c.log.Warn().Err(err).Str("room", room).Msg("failed to close subscription")
		}
	}
}

// relay copies published payloads to every local member of the room. It
// exits when the subscription is closed. A member whose write fails is left
// for its own read loop to reap.
func (c *Coordinator) relay(room string, sub *redis.PubSub) {
	for msg := range sub.Channel() {
		data := []byte(msg.Payload)
		for _, s := range c.reg.Members(room) {
			if err := s.Write(data); err != nil {
				c.log.Debug().Err(err).
					Str("room", room).
					Str("session_id", s.ID.String()).
					Msg("dropped event for session")
			}
		}
	}
}

// Close tears down every upstream subscription. Called on shutdown.
func (c *Coordinator) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*redis.PubSub)
	c.mu.Unlock()

	for room, sub := range subs {
		if err := sub.Close(); err != nil && !strings.Contains(err.Error(), "closed") {
			c.log.Warn().Err(err).Str("room", room).Msg("failed to close subscription")
		}
	}
}
