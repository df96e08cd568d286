package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NotificationType enumerates notification kinds.
type NotificationType string

const (
	NotifyGroupInvite    NotificationType = "group_invite"
	NotifyChallengeStart NotificationType = "challenge_start"
	NotifyExamTime       NotificationType = "exam_time"
	NotifyMarksPublished NotificationType = "marks_published"
	NotifyGroupMessage   NotificationType = "group_message"
	NotifySystem         NotificationType = "system_announcement"
)

// NotificationPriority enumerates delivery priorities.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// ActionType hints what the client should offer for a notification.
type ActionType string

const (
	ActionAccept    ActionType = "accept"
	ActionView      ActionType = "view"
	ActionStartExam ActionType = "start_exam"
	ActionNone      ActionType = "none"
)

// NotificationData carries type-specific references.
type NotificationData struct {
	GroupID    *uuid.UUID `json:"group_id,omitempty"`
	ChatID     *uuid.UUID `json:"chat_id,omitempty"`
	ActionType ActionType `json:"action_type,omitempty"`
}

// Notification is the record handed to the notification sink. Delivery is
// fire-and-forget: a failed enqueue never rolls back the triggering mutation.
type Notification struct {
	ID        uuid.UUID            `json:"id"`
	Recipient uuid.UUID            `json:"recipient"`
	Sender    *uuid.UUID           `json:"sender,omitempty"`
	Type      NotificationType     `json:"type"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Data      NotificationData     `json:"data"`
	Priority  NotificationPriority `json:"priority"`
	IsRead    bool                 `json:"is_read"`
	ReadAt    *time.Time           `json:"read_at,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// ─── Typed constructors ─────────────────────────────────────────────

// NewGroupInvite builds the notification sent when a user is invited.
func NewGroupInvite(recipient, sender, groupID uuid.UUID, groupName string) Notification {
	return Notification{
		Recipient: recipient,
		Sender:    &sender,
		Type:      NotifyGroupInvite,
		Title:     "Group Invitation",
		Message:   fmt.Sprintf("You've been invited to join %q study group", groupName),
		Data:      NotificationData{GroupID: &groupID, ActionType: ActionAccept},
		Priority:  PriorityHigh,
	}
}

// NewChallengeStart builds the notification sent when a challenge begins.
func NewChallengeStart(recipient, groupID uuid.UUID, groupName string) Notification {
	return Notification{
		Recipient: recipient,
		Type:      NotifyChallengeStart,
		Title:     "Challenge Started!",
		Message:   fmt.Sprintf("The study challenge for %q has begun", groupName),
		Data:      NotificationData{GroupID: &groupID, ActionType: ActionView},
		Priority:  PriorityHigh,
	}
}

// NewExamTime builds the notification sent when the exam opens.
func NewExamTime(recipient, groupID uuid.UUID, groupName string) Notification {
	return Notification{
		Recipient: recipient,
		Type:      NotifyExamTime,
		Title:     "Exam Time!",
		Message:   fmt.Sprintf("The exam for %q is now available", groupName),
		Data:      NotificationData{GroupID: &groupID, ActionType: ActionStartExam},
		Priority:  PriorityUrgent,
	}
}

// NewMarksPublished builds the notification sent after grading.
func NewMarksPublished(recipient, groupID uuid.UUID, groupName string, marks float64) Notification {
	return Notification{
		Recipient: recipient,
		Type:      NotifyMarksPublished,
		Title:     "Results Published!",
		Message:   fmt.Sprintf("Your exam results for %q are now available. You scored %g marks!", groupName, marks),
		Data:      NotificationData{GroupID: &groupID, ActionType: ActionView},
		Priority:  PriorityHigh,
	}
}

// MarkNotificationsReadRequest names notifications to mark as read.
// Empty means all of the caller's notifications.
type MarkNotificationsReadRequest struct {
	NotificationIDs []uuid.UUID `json:"notification_ids" binding:"omitempty,dive,required"`
}
