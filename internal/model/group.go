package model

import (
	"time"

	"github.com/google/uuid"
)

// Subject enumerates the subjects a study group can be created for.
type Subject string

const (
	SubjectMathematics     Subject = "Mathematics"
	SubjectPhysics         Subject = "Physics"
	SubjectChemistry       Subject = "Chemistry"
	SubjectBiology         Subject = "Biology"
	SubjectComputerScience Subject = "Computer Science"
	SubjectEnglish         Subject = "English"
	SubjectHistory         Subject = "History"
	SubjectGeography       Subject = "Geography"
	SubjectEconomics       Subject = "Economics"
	SubjectBusinessStudies Subject = "Business Studies"
	SubjectAccounting      Subject = "Accounting"
	SubjectOther           Subject = "Other"
)

// MemberRole enumerates roles a group member can hold.
type MemberRole string

const (
	RoleCreator MemberRole = "creator"
	RoleMember  MemberRole = "member"
)

// MemberStatus enumerates membership states.
type MemberStatus string

const (
	MemberActive  MemberStatus = "active"
	MemberLeft    MemberStatus = "left"
	MemberRemoved MemberStatus = "removed"
)

// InviteStatus enumerates invitation states.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteDeclined InviteStatus = "declined"
	InviteExpired  InviteStatus = "expired"
)

// ChallengeStatus enumerates the challenge state machine.
type ChallengeStatus string

const (
	ChallengePending   ChallengeStatus = "pending"
	ChallengeActive    ChallengeStatus = "active"
	ChallengeCompleted ChallengeStatus = "completed"
	ChallengeCancelled ChallengeStatus = "cancelled"
)

// GroupMember is one entry in a group's ordered member list.
type GroupMember struct {
	UserID      uuid.UUID    `json:"user_id"`
	DisplayName string       `json:"display_name,omitempty"`
	Role        MemberRole   `json:"role"`
	Status      MemberStatus `json:"status"`
	JoinedAt    time.Time    `json:"joined_at"`
}

// Invitation is a pending (or resolved) invite into a group.
type Invitation struct {
	ID        uuid.UUID    `json:"id"`
	GroupID   uuid.UUID    `json:"group_id"`
	InviteeID uuid.UUID    `json:"invitee_id"`
	InviterID uuid.UUID    `json:"inviter_id"`
	Status    InviteStatus `json:"status"`
	InvitedAt time.Time    `json:"invited_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Challenge is the timed study period owned by a group.
// EndTime is computed exactly once at activation: StartTime + Duration days.
type Challenge struct {
	DurationDays int             `json:"duration_days"`
	Status       ChallengeStatus `json:"status"`
	StartTime    *time.Time      `json:"start_time,omitempty"`
	EndTime      *time.Time      `json:"end_time,omitempty"`
	ExamStarted  bool            `json:"exam_started"`
}

// ExamInfo holds the exam paper metadata set by the group creator.
type ExamInfo struct {
	PaperURL        string     `json:"paper_url,omitempty"`
	PaperUploadedAt *time.Time `json:"paper_uploaded_at,omitempty"`
	MaxMarks        float64    `json:"max_marks"`
	DurationMinutes int        `json:"duration_minutes"`
	Instructions    string     `json:"instructions,omitempty"`
}

// Submission is one member's exam submission. Marks transitions nil → value
// exactly once; re-grading is rejected.
type Submission struct {
	ID           uuid.UUID  `json:"id"`
	GroupID      uuid.UUID  `json:"group_id"`
	UserID       uuid.UUID  `json:"user_id"`
	AnswerSheets []string   `json:"answer_sheets"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	Marks        *float64   `json:"marks"`
	Feedback     string     `json:"feedback,omitempty"`
	GradedAt     *time.Time `json:"graded_at,omitempty"`
	GradedBy     *uuid.UUID `json:"graded_by,omitempty"`
}

// GroupStats is derived from the submission set, never mutated independently.
type GroupStats struct {
	TotalSubmissions int     `json:"total_submissions"`
	AverageMarks     float64 `json:"average_marks"`
	HighestMarks     float64 `json:"highest_marks"`
	CompletionRate   float64 `json:"completion_rate"`
}

// GroupSettings carries per-group policy knobs.
type GroupSettings struct {
	IsPrivate            bool `json:"is_private"`
	AllowLateSubmissions bool `json:"allow_late_submissions"`
	ShowLeaderboard      bool `json:"show_leaderboard"`
	MaxMembers           int  `json:"max_members"`
}

// Group is the study-group aggregate root.
type Group struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Subject     Subject       `json:"subject"`
	Chapter     string        `json:"chapter"`
	CreatorID   uuid.UUID     `json:"creator_id"`
	ChatID      *uuid.UUID    `json:"chat_id,omitempty"`
	Members     []GroupMember `json:"members,omitempty"`
	Challenge   Challenge     `json:"challenge"`
	Exam        ExamInfo      `json:"exam"`
	Settings    GroupSettings `json:"settings"`
	Stats       GroupStats    `json:"stats"`
	IsActive    bool          `json:"is_active"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ActiveMemberCount returns how many members are currently active.
func (g *Group) ActiveMemberCount() int {
	n := 0
	for _, m := range g.Members {
		if m.Status == MemberActive {
			n++
		}
	}
	return n
}

// TimeRemaining returns the remaining challenge window at the given instant,
// zero if the challenge has not started or is already over.
func (c *Challenge) TimeRemaining(now time.Time) time.Duration {
	if c.StartTime == nil || c.EndTime == nil || c.Status == ChallengeCompleted {
		return 0
	}
	remaining := c.EndTime.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Progress returns the elapsed fraction of the challenge window as a
// percentage, clamped to [0, 100].
func (c *Challenge) Progress(now time.Time) float64 {
	if c.StartTime == nil || c.EndTime == nil {
		return 0
	}
	total := c.EndTime.Sub(*c.StartTime)
	if total <= 0 {
		return 0
	}
	pct := float64(now.Sub(*c.StartTime)) / float64(total) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// ComputeEndTime derives the challenge end from a start instant.
func (c *Challenge) ComputeEndTime(start time.Time) time.Time {
	return start.Add(time.Duration(c.DurationDays) * 24 * time.Hour)
}

// ComputeStats recomputes the derived group statistics from the full
// submission set. Deterministic and idempotent: rerunning on the same inputs
// yields the same result.
func ComputeStats(submissions []Submission, activeMembers int) GroupStats {
	stats := GroupStats{TotalSubmissions: len(submissions)}

	graded := 0
	var sum float64
	for _, s := range submissions {
		if s.Marks == nil {
			continue
		}
		graded++
		sum += *s.Marks
		if *s.Marks > stats.HighestMarks {
			stats.HighestMarks = *s.Marks
		}
	}
	if graded > 0 {
		stats.AverageMarks = sum / float64(graded)
	}
	if activeMembers > 0 {
		stats.CompletionRate = float64(len(submissions)) / float64(activeMembers) * 100
	}
	return stats
}

// ─── Request payloads ───────────────────────────────────────────────

// CreateGroupRequest is the payload for creating a new group.
type CreateGroupRequest struct {
	Name         string  `json:"name" binding:"required,min=2,max=100"`
	Description  string  `json:"description" binding:"omitempty,max=500"`
	Subject      Subject `json:"subject" binding:"required,oneof=Mathematics Physics Chemistry Biology 'Computer Science' English History Geography Economics 'Business Studies' Accounting Other"`
	Chapter      string  `json:"chapter" binding:"required,min=2,max=200"`
	DurationDays int     `json:"duration_days" binding:"required,min=2,max=6"`
	MaxMembers   int     `json:"max_members" binding:"omitempty,min=2,max=20"`
}

// InviteRequest is the payload for bulk-inviting users into a group.
type InviteRequest struct {
	UserIDs []uuid.UUID `json:"user_ids" binding:"required,min=1,dive,required"`
}

// InviteOutcome reports the per-invitee result of a bulk invite.
type InviteOutcome struct {
	UserID uuid.UUID `json:"user_id"`
	OK     bool      `json:"ok"`
	Reason string    `json:"reason,omitempty"`
}

// UpdateExamRequest is the payload for the creator setting exam metadata.
type UpdateExamRequest struct {
	PaperURL        string  `json:"paper_url" binding:"required,url"`
	MaxMarks        float64 `json:"max_marks" binding:"omitempty,gt=0"`
	DurationMinutes int     `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	Instructions    string  `json:"instructions" binding:"omitempty,max=2000"`
}

// SubmitExamRequest carries answer-sheet object-store URLs for a submission.
type SubmitExamRequest struct {
	AnswerSheets []string `json:"answer_sheets" binding:"required,min=1,max=10,dive,url"`
}

// GradeRequest is the payload for grading one member's submission.
type GradeRequest struct {
	Marks    float64 `json:"marks" binding:"min=0"`
	Feedback string  `json:"feedback" binding:"omitempty,max=2000"`
}

// RemoveMemberRequest names the member to remove.
type RemoveMemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}
