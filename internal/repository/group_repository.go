package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/studycircle/studycircle-backend/internal/model"
)

// Storage-detected invariant violations. These are expected, recoverable
// conditions, reported to the caller as typed reasons.
var (
	ErrGroupFull           = errors.New("group has reached maximum member limit")
	ErrDuplicateInvite     = errors.New("pending invitation already exists")
	ErrDuplicateSubmission = errors.New("user has already submitted")
	ErrAlreadyGraded       = errors.New("submission already graded")
	ErrChallengeStarted    = errors.New("challenge already started")
)

// GroupRepository handles the group aggregate's data access. Every method
// that reads-then-writes group state runs inside a transaction holding a row
// lock on the group, so writes to one aggregate instance are serialized.
type GroupRepository struct {
	pool *pgxpool.Pool
}

// NewGroupRepository creates a new GroupRepository.
func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

const groupColumns = `
	g.id, g.name, g.description, g.subject, g.chapter, g.creator_id,
	g.challenge_duration, g.challenge_status, g.challenge_start, g.challenge_end, g.exam_started,
	g.exam_paper_url, g.exam_paper_uploaded_at, g.exam_max_marks, g.exam_duration_minutes, g.exam_instructions,
	g.is_private, g.allow_late_submissions, g.show_leaderboard, g.max_members,
	g.is_active, g.created_at, g.updated_at, c.id`

func scanGroup(row pgx.Row) (*model.Group, error) {
	g := &model.Group{}
	var chatID *uuid.UUID
	err := row.Scan(
		&g.ID, &g.Name, &g.Description, &g.Subject, &g.Chapter, &g.CreatorID,
		&g.Challenge.DurationDays, &g.Challenge.Status, &g.Challenge.StartTime, &g.Challenge.EndTime, &g.Challenge.ExamStarted,
		&g.Exam.PaperURL, &g.Exam.PaperUploadedAt, &g.Exam.MaxMarks, &g.Exam.DurationMinutes, &g.Exam.Instructions,
		&g.Settings.IsPrivate, &g.Settings.AllowLateSubmissions, &g.Settings.ShowLeaderboard, &g.Settings.MaxMembers,
		&g.IsActive, &g.CreatedAt, &g.UpdatedAt, &chatID,
	)
	if err != nil {
		return nil, err
	}
	g.ChatID = chatID
	return g, nil
}

// Create inserts a group with its creator membership and its chat in one
// transaction. The creator is the sole active member with role=creator.
func (r *GroupRepository) Create(ctx context.Context, g *model.Group) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO groups (name, description, subject, chapter, creator_id,
		                     challenge_duration, max_members)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, challenge_status, exam_max_marks, exam_duration_minutes,
		           is_private, allow_late_submissions, show_leaderboard,
		           is_active, created_at, updated_at`,
		g.Name, g.Description, g.Subject, g.Chapter, g.CreatorID,
		g.Challenge.DurationDays, g.Settings.MaxMembers,
	).Scan(&g.ID, &g.Challenge.Status, &g.Exam.MaxMarks, &g.Exam.DurationMinutes,
		&g.Settings.IsPrivate, &g.Settings.AllowLateSubmissions, &g.Settings.ShowLeaderboard,
		&g.IsActive, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id, role, status)
		 VALUES ($1, $2, 'creator', 'active')`,
		g.ID, g.CreatorID); err != nil {
		return err
	}

	var chatID uuid.UUID
	if err := tx.QueryRow(ctx,
		`INSERT INTO chats (group_id) VALUES ($1) RETURNING id`,
		g.ID).Scan(&chatID); err != nil {
		return err
	}
	g.ChatID = &chatID

	if _, err := tx.Exec(ctx,
		`INSERT INTO chat_participants (chat_id, user_id, role)
		 VALUES ($1, $2, 'admin')`,
		chatID, g.CreatorID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetByID retrieves a group with its member list.
func (r *GroupRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Group, error) {
	g, err := scanGroup(r.pool.QueryRow(ctx,
		`SELECT `+groupColumns+`
		 FROM groups g
		 LEFT JOIN chats c ON c.group_id = g.id
		 WHERE g.id = $1 AND g.is_active`, id))
	if err != nil {
		return nil, err
	}

	g.Members, err = r.listMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r *GroupRepository) listMembers(ctx context.Context, groupID uuid.UUID) ([]model.GroupMember, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.user_id, u.display_name, m.role, m.status, m.joined_at
		 FROM group_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.group_id = $1
		 ORDER BY m.joined_at`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []model.GroupMember
	for rows.Next() {
		var m model.GroupMember
		if err := rows.Scan(&m.UserID, &m.DisplayName, &m.Role, &m.Status, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListForUser retrieves the groups where the user is an active member.
func (r *GroupRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.Group, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+groupColumns+`
		 FROM groups g
		 JOIN group_members m ON m.group_id = g.id
		 LEFT JOIN chats c ON c.group_id = g.id
		 WHERE m.user_id = $1 AND m.status = 'active' AND g.is_active
		 ORDER BY g.updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []model.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// ActiveGroupIDsForUser returns the ids of groups the user actively belongs
// to. Used by the realtime coordinator to derive room membership on connect.
func (r *GroupRepository) ActiveGroupIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.group_id
		 FROM group_members m
		 JOIN groups g ON g.id = m.group_id
		 WHERE m.user_id = $1 AND m.status = 'active' AND g.is_active`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsActiveMember reports whether the user is an active member of the group.
func (r *GroupRepository) IsActiveMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM group_members
		    WHERE group_id = $1 AND user_id = $2 AND status = 'active')`,
		groupID, userID).Scan(&ok)
	return ok, err
}

// ─── Invitations ────────────────────────────────────────────────────

// InsertInvitation appends a pending invitation. The partial unique index on
// (group_id, invitee_id) WHERE pending makes the no-duplicate-pending
// invariant hold under concurrent invites; a conflict returns
// ErrDuplicateInvite.
func (r *GroupRepository) InsertInvitation(ctx context.Context, inv *model.Invitation) error {
	// A stale pending row would hold the partial unique index forever if the
	// invitee never attempted to join; expire it so the re-invite lands.
	if _, err := r.pool.Exec(ctx,
		`UPDATE group_invitations SET status = 'expired'
		 WHERE group_id = $1 AND invitee_id = $2 AND status = 'pending'
		   AND expires_at < NOW()`,
		inv.GroupID, inv.InviteeID); err != nil {
		return err
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO group_invitations (group_id, invitee_id, inviter_id, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (group_id, invitee_id) WHERE status = 'pending' DO NOTHING
		 RETURNING id, status, invited_at`,
		inv.GroupID, inv.InviteeID, inv.InviterID, inv.ExpiresAt,
	).Scan(&inv.ID, &inv.Status, &inv.InvitedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateInvite
	}
	return err
}

// GetPendingInvitation retrieves the pending invitation for (group, invitee).
func (r *GroupRepository) GetPendingInvitation(ctx context.Context, groupID, inviteeID uuid.UUID) (*model.Invitation, error) {
	inv := &model.Invitation{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, group_id, invitee_id, inviter_id, status, invited_at, expires_at
		 FROM group_invitations
		 WHERE group_id = $1 AND invitee_id = $2 AND status = 'pending'`,
		groupID, inviteeID,
	).Scan(&inv.ID, &inv.GroupID, &inv.InviteeID, &inv.InviterID, &inv.Status, &inv.InvitedAt, &inv.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ExpireInvitation lazily flips a pending invitation to expired, observed as
// a side effect of a join attempt. Expiry is monotonic: only pending flips.
func (r *GroupRepository) ExpireInvitation(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE group_invitations SET status = 'expired'
		 WHERE id = $1 AND status = 'pending'`, id)
	return err
}

// ListInvitations retrieves all invitations for a group.
func (r *GroupRepository) ListInvitations(ctx context.Context, groupID uuid.UUID) ([]model.Invitation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, group_id, invitee_id, inviter_id, status, invited_at, expires_at
		 FROM group_invitations
		 WHERE group_id = $1
		 ORDER BY invited_at DESC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invs []model.Invitation
	for rows.Next() {
		var inv model.Invitation
		if err := rows.Scan(&inv.ID, &inv.GroupID, &inv.InviteeID, &inv.InviterID,
			&inv.Status, &inv.InvitedAt, &inv.ExpiresAt); err != nil {
			return nil, err
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

// DeclineInvitation resolves a pending invitation as declined.
func (r *GroupRepository) DeclineInvitation(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE group_invitations SET status = 'declined'
		 WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// AcceptInvitationAndJoin accepts the invitation and activates membership in
// one transaction. The group row is locked FOR UPDATE before the active
// member count is checked, so two concurrent joins racing for the last slot
// serialize: exactly one succeeds, the other gets ErrGroupFull.
func (r *GroupRepository) AcceptInvitationAndJoin(ctx context.Context, groupID, userID, invitationID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var maxMembers int
	var chatID uuid.UUID
	if err := tx.QueryRow(ctx,
		`SELECT g.max_members, c.id
		 FROM groups g
		 JOIN chats c ON c.group_id = g.id
		 WHERE g.id = $1 AND g.is_active
		 FOR UPDATE OF g`, groupID).Scan(&maxMembers, &chatID); err != nil {
		return err
	}

	var active int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM group_members
		 WHERE group_id = $1 AND status = 'active'`, groupID).Scan(&active); err != nil {
		return err
	}

	// Rejoining members do not consume a new slot.
	var alreadyActive bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM group_members
		    WHERE group_id = $1 AND user_id = $2 AND status = 'active')`,
		groupID, userID).Scan(&alreadyActive); err != nil {
		return err
	}
	if !alreadyActive && active >= maxMembers {
		return ErrGroupFull
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id, role, status)
		 VALUES ($1, $2, 'member', 'active')
		 ON CONFLICT (group_id, user_id)
		 DO UPDATE SET status = 'active', joined_at = NOW()`,
		groupID, userID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE group_invitations SET status = 'accepted'
		 WHERE id = $1 AND status = 'pending'`, invitationID); err != nil {
		return err
	}

	// Mirror into the chat participant list.
	if _, err := tx.Exec(ctx,
		`INSERT INTO chat_participants (chat_id, user_id, role)
		 VALUES ($1, $2, 'member')
		 ON CONFLICT (chat_id, user_id)
		 DO UPDATE SET is_active = TRUE, joined_at = NOW()`,
		chatID, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ─── Challenge lifecycle ────────────────────────────────────────────

// StartChallenge activates the challenge. The conditional update makes the
// transition happen at most once; a second start returns ErrChallengeStarted.
func (r *GroupRepository) StartChallenge(ctx context.Context, groupID uuid.UUID, start, end time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE groups
		 SET challenge_status = 'active', challenge_start = $1, challenge_end = $2,
		     updated_at = NOW()
		 WHERE id = $3 AND challenge_status = 'pending' AND challenge_start IS NULL`,
		start, end, groupID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrChallengeStarted
	}
	return nil
}

// StartExam flips the exam-started gate. Only meaningful while the challenge
// is active.
func (r *GroupRepository) StartExam(ctx context.Context, groupID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE groups
		 SET exam_started = TRUE, updated_at = NOW()
		 WHERE id = $1 AND challenge_status = 'active' AND NOT exam_started`,
		groupID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteOverdue closes active challenges whose end time has passed and
// returns their ids. Used by the background sweep.
func (r *GroupRepository) CompleteOverdue(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE groups
		 SET challenge_status = 'completed', updated_at = NOW()
		 WHERE challenge_status = 'active' AND challenge_end <= $1
		 RETURNING id`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetExamInfo records the exam paper metadata.
func (r *GroupRepository) SetExamInfo(ctx context.Context, groupID uuid.UUID, exam model.ExamInfo) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE groups
		 SET exam_paper_url = $1, exam_paper_uploaded_at = NOW(),
		     exam_max_marks = $2, exam_duration_minutes = $3, exam_instructions = $4,
		     updated_at = NOW()
		 WHERE id = $5`,
		exam.PaperURL, exam.MaxMarks, exam.DurationMinutes, exam.Instructions, groupID)
	return err
}

// ─── Membership mutation ────────────────────────────────────────────

// SetMemberStatus marks an active membership as left or removed. The chat
// participant is soft-deactivated in the same transaction; message history is
// untouched.
func (r *GroupRepository) SetMemberStatus(ctx context.Context, groupID, userID uuid.UUID, status model.MemberStatus) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE group_members SET status = $1
		 WHERE group_id = $2 AND user_id = $3 AND status = 'active' AND role <> 'creator'`,
		status, groupID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	if _, err := tx.Exec(ctx,
		`UPDATE chat_participants p SET is_active = FALSE
		 FROM chats c
		 WHERE c.id = p.chat_id AND c.group_id = $1 AND p.user_id = $2`,
		groupID, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SoftDelete deactivates the group and cancels any unfinished challenge.
// Chat and notification history survive.
func (r *GroupRepository) SoftDelete(ctx context.Context, groupID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE groups
		 SET is_active = FALSE,
		     challenge_status = CASE
		         WHEN challenge_status IN ('pending', 'active') THEN 'cancelled'
		         ELSE challenge_status
		     END,
		     updated_at = NOW()
		 WHERE id = $1 AND is_active`, groupID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ─── Submissions ────────────────────────────────────────────────────

// InsertSubmission appends a submission. The UNIQUE (group_id, user_id)
// constraint plus ON CONFLICT DO NOTHING makes this an atomic
// check-then-append: a concurrent duplicate returns ErrDuplicateSubmission.
func (r *GroupRepository) InsertSubmission(ctx context.Context, s *model.Submission) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO group_submissions (group_id, user_id, answer_sheets)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (group_id, user_id) DO NOTHING
		 RETURNING id, submitted_at`,
		s.GroupID, s.UserID, s.AnswerSheets,
	).Scan(&s.ID, &s.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateSubmission
	}
	return err
}

// GetSubmission retrieves one member's submission.
func (r *GroupRepository) GetSubmission(ctx context.Context, groupID, userID uuid.UUID) (*model.Submission, error) {
	s := &model.Submission{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, group_id, user_id, answer_sheets, submitted_at, marks, feedback, graded_at, graded_by
		 FROM group_submissions
		 WHERE group_id = $1 AND user_id = $2`, groupID, userID,
	).Scan(&s.ID, &s.GroupID, &s.UserID, &s.AnswerSheets, &s.SubmittedAt,
		&s.Marks, &s.Feedback, &s.GradedAt, &s.GradedBy)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListSubmissions retrieves all submissions for a group in submission order.
func (r *GroupRepository) ListSubmissions(ctx context.Context, groupID uuid.UUID) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, group_id, user_id, answer_sheets, submitted_at, marks, feedback, graded_at, graded_by
		 FROM group_submissions
		 WHERE group_id = $1
		 ORDER BY submitted_at`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		var s model.Submission
		if err := rows.Scan(&s.ID, &s.GroupID, &s.UserID, &s.AnswerSheets, &s.SubmittedAt,
			&s.Marks, &s.Feedback, &s.GradedAt, &s.GradedBy); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// GradeSubmission sets marks on an ungraded submission. The marks IS NULL
// guard makes the nil→value transition happen exactly once; a second grade
// returns ErrAlreadyGraded, a missing submission pgx.ErrNoRows.
func (r *GroupRepository) GradeSubmission(ctx context.Context, groupID, userID uuid.UUID, marks float64, feedback string, gradedBy uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE group_submissions
		 SET marks = $1, feedback = $2, graded_at = NOW(), graded_by = $3
		 WHERE group_id = $4 AND user_id = $5 AND marks IS NULL`,
		marks, feedback, gradedBy, groupID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (
			    SELECT 1 FROM group_submissions WHERE group_id = $1 AND user_id = $2)`,
			groupID, userID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrAlreadyGraded
		}
		return pgx.ErrNoRows
	}
	return nil
}
