package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// GroupRoomChannel returns the Redis PubSub channel for a group room.
func (r *CacheKeyStruct) GroupRoomChannel(groupID string) string {
	return fmt.Sprintf("room:group:%s", groupID)
}

// UserRoomChannel returns the Redis PubSub channel for a user's private room.
func (r *CacheKeyStruct) UserRoomChannel(userID string) string {
	return fmt.Sprintf("room:user:%s", userID)
}

// UserPresenceKey returns the cache key marking a user as connected.
func (r *CacheKeyStruct) UserPresenceKey(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

var CacheKey = NewCacheKeyStruct()
