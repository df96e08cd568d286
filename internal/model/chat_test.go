package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestUnreadFor(t *testing.T) {
	reader := uuid.New()
	sender := uuid.New()
	cursor := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	messages := []Message{
		{ID: uuid.New(), SenderID: sender, CreatedAt: cursor.Add(-time.Hour)},      // already seen
		{ID: uuid.New(), SenderID: sender, CreatedAt: cursor.Add(time.Minute)},     // unread
		{ID: uuid.New(), SenderID: reader, CreatedAt: cursor.Add(2 * time.Minute)}, // own message
		{ID: uuid.New(), SenderID: sender, CreatedAt: cursor.Add(3 * time.Minute)}, // unread
		{ID: uuid.New(), SenderID: sender, CreatedAt: cursor},                      // exactly at cursor
	}

	p := &ChatParticipant{UserID: reader, LastSeen: cursor}
	unread := UnreadFor(messages, p)

	assert.Len(t, unread, 2)
	assert.Equal(t, messages[1].ID, unread[0].ID)
	assert.Equal(t, messages[3].ID, unread[1].ID)
}

func TestUnreadForNilParticipant(t *testing.T) {
	assert.Nil(t, UnreadFor([]Message{{ID: uuid.New()}}, nil))
}

func TestUnreadForEmptyLog(t *testing.T) {
	p := &ChatParticipant{UserID: uuid.New()}
	assert.Empty(t, UnreadFor(nil, p))
}
