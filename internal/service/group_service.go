package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/studycircle/studycircle-backend/internal/config"
	"github.com/studycircle/studycircle-backend/internal/model"
	"github.com/studycircle/studycircle-backend/internal/repository"
	ws "github.com/studycircle/studycircle-backend/internal/websocket"
)

// Domain Errors
var (
	ErrNotMember        = errors.New("user is not an active member of this group")
	ErrCreatorOnly      = errors.New("only the group creator may perform this action")
	ErrCreatorLocked    = errors.New("the creator cannot leave their own group")
	ErrChallengeStarted = errors.New("challenge has already started")
	ErrChallengeClosed  = errors.New("challenge is not active")
	ErrExamNotStarted   = errors.New("exam has not been started yet")
	ErrAlreadySubmitted = errors.New("submission already recorded for this user")
	ErrAlreadyGraded    = errors.New("submission has already been graded")
	ErrNoSubmission     = errors.New("no submission found for this user")
	ErrResultsNotReady  = errors.New("results are not available yet")
	ErrNoInvitation     = errors.New("no pending invitation for this user")
	ErrInviteExpired    = errors.New("invitation has expired")
	ErrGroupFull        = errors.New("group has reached its member limit")
)

// GroupService owns the study-group lifecycle: creation, invitations and
// membership, the challenge state machine, submissions and grading. Realtime
// fan-out goes through Redis pub/sub room channels; the coordinator relays
// published events to connected members.
type GroupService struct {
	groupRepo *repository.GroupRepository
	chatRepo  *repository.ChatRepository
	userRepo  *repository.UserRepository
	notif     *NotificationService
	rdb       *redis.Client
	cfg       *config.Config
	log       zerolog.Logger
}

// NewGroupService creates a new GroupService.
func NewGroupService(
	groupRepo *repository.GroupRepository,
	chatRepo *repository.ChatRepository,
	userRepo *repository.UserRepository,
	notif *NotificationService,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *GroupService {
	return &GroupService{
		groupRepo: groupRepo,
		chatRepo:  chatRepo,
		userRepo:  userRepo,
		notif:     notif,
		rdb:       rdb,
		cfg:       cfg,
		log:       log.With().Str("component", "group_service").Logger(),
	}
}

// publish marshals an event and publishes it to a room channel. Fan-out is
// best effort and never fails the mutation that triggered it.
func (s *GroupService) publish(ctx context.Context, channel string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Str("channel", channel).Msg("failed to marshal event")
		return
	}
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("channel", channel).Msg("failed to publish event")
	}
}

// systemMessage appends a system entry to the group chat and fans it out.
// The acting user is recorded as the sender.
func (s *GroupService) systemMessage(ctx context.Context, groupID, chatID, actorID uuid.UUID, content string) {
	msg := &model.Message{
		ChatID:   chatID,
		SenderID: actorID,
		Content:  content,
		Type:     model.MessageSystem,
	}
	if err := s.chatRepo.InsertMessage(ctx, msg); err != nil {
		s.log.Warn().Err(err).Str("group_id", groupID.String()).Msg("failed to append system message")
		return
	}
	s.publish(ctx, config.CacheKey.GroupRoomChannel(groupID.String()), ws.NewMessageEvent{
		Event:   ws.EventNewMessage,
		GroupID: groupID,
		Message: msg,
	})
}

// ─── Group lifecycle ────────────────────────────────────────────────

// Create creates a group with the caller as creator. The group chat and the
// creator's membership come into existence in the same transaction.
func (s *GroupService) Create(ctx context.Context, creatorID uuid.UUID, req *model.CreateGroupRequest) (*model.Group, error) {
	maxMembers := req.MaxMembers
	if maxMembers == 0 {
		maxMembers = 10
	}
	g := &model.Group{
		Name:        req.Name,
		Description: req.Description,
		Subject:     req.Subject,
		Chapter:     req.Chapter,
		CreatorID:   creatorID,
		Challenge:   model.Challenge{DurationDays: req.DurationDays},
		Settings:    model.GroupSettings{MaxMembers: maxMembers},
	}
	if err := s.groupRepo.Create(ctx, g); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("group_id", g.ID.String()).
		Str("creator_id", creatorID.String()).
		Str("subject", string(g.Subject)).
		Msg("group created")
	return s.groupRepo.GetByID(ctx, g.ID)
}

// Get retrieves a group. Only active members may see it.
func (s *GroupService) Get(ctx context.Context, groupID, userID uuid.UUID) (*model.Group, error) {
	g, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !s.isActiveMember(g, userID) {
		return nil, ErrNotMember
	}
	return g, nil
}

// ListForUser retrieves the caller's groups.
func (s *GroupService) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.Group, error) {
	groups, err := s.groupRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []model.Group{}
	}
	return groups, nil
}

// Delete soft-deletes a group and cancels its challenge. Creator only.
func (s *GroupService) Delete(ctx context.Context, groupID, userID uuid.UUID) error {
	g, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g.CreatorID != userID {
		return ErrCreatorOnly
	}
	if err := s.groupRepo.SoftDelete(ctx, groupID); err != nil {
		return err
	}
	s.publish(ctx, config.CacheKey.GroupRoomChannel(groupID.String()), ws.TimerUpdateEvent{
		Event:   ws.EventTimerUpdate,
		GroupID: groupID,
		Status:  model.ChallengeCancelled,
	})
	s.log.Info().Str("group_id", groupID.String()).Msg("group deleted")
	return nil
}

// ─── Invitations and membership ─────────────────────────────────────

// Invite sends invitations to a batch of users. Creator only, and only while
// the challenge is still pending. The call reports a per-invitee outcome
// instead of failing the whole batch.
func (s *GroupService) Invite(ctx context.Context, groupID, inviterID uuid.UUID, req *model.InviteRequest) ([]model.InviteOutcome, error) {
	g, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.CreatorID != inviterID {
		return nil, ErrCreatorOnly
	}
	if g.Challenge.Status != model.ChallengePending {
		return nil, ErrChallengeStarted
	}

	outcomes := make([]model.InviteOutcome, 0, len(req.UserIDs))
	for _, inviteeID := range req.UserIDs {
		outcomes = append(outcomes, s.inviteOne(ctx, g, inviterID, inviteeID))
	}
	return outcomes, nil
}

func (s *GroupService) inviteOne(ctx context.Context, g *model.Group, inviterID, inviteeID uuid.UUID) model.InviteOutcome {
	out := model.InviteOutcome{UserID: inviteeID}

	invitee, err := s.userRepo.Lookup(ctx, inviteeID)
	if err != nil {
		out.Reason = "user_not_found"
		return out
	}
	if !invitee.IsActive {
		out.Reason = "user_inactive"
		return out
	}
	if s.isActiveMember(g, inviteeID) {
		out.Reason = "already_member"
		return out
	}

	inv := &model.Invitation{
		GroupID:   g.ID,
		InviteeID: inviteeID,
		InviterID: inviterID,
		ExpiresAt: time.Now().Add(s.cfg.InviteTTL),
	}
	if err := s.groupRepo.InsertInvitation(ctx, inv); err != nil {
		if errors.Is(err, repository.ErrDuplicateInvite) {
			out.Reason = "already_invited"
		} else {
			s.log.Error().Err(err).Str("invitee", inviteeID.String()).Msg("failed to insert invitation")
			out.Reason = "internal_error"
		}
		return out
	}

	s.notif.Enqueue(ctx, model.NewGroupInvite(inviteeID, inviterID, g.ID, g.Name))

	out.OK = true
	return out
}

// ListInvitations retrieves a group's invitations. Creator only.
func (s *GroupService) ListInvitations(ctx context.Context, groupID, userID uuid.UUID) ([]model.Invitation, error) {
	g, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.CreatorID != userID {
		return nil, ErrCreatorOnly
	}
	invs, err := s.groupRepo.ListInvitations(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if invs == nil {
		invs = []model.Invitation{}
	}
	return invs, nil
}

// AcceptInvite joins the caller to the group through their pending
// invitation. Joining races for the last slot are serialized in storage.
func (s *GroupService) AcceptInvite(ctx context.Context, groupID, userID uuid.UUID) (*model.Group, error) {
	inv, err := s.groupRepo.GetPendingInvitation(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoInvitation
		}
		return nil, err
	}

	// Expiry is checked lazily at acceptance time.
	if time.Now().After(inv.ExpiresAt) {
		if err := s.groupRepo.ExpireInvitation(ctx, inv.ID); err != nil {
			s.log.Warn().Err(err).Str("invitation_id", inv.ID.String()).Msg("failed to expire invitation")
		}
		return nil, ErrInviteExpired
	}

	if err := s.groupRepo.AcceptInvitationAndJoin(ctx, groupID, userID, inv.ID); err != nil {
		if errors.Is(err, repository.ErrGroupFull) {
			return nil, ErrGroupFull
		}
		return nil, err
	}

	g, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if g.ChatID != nil {
		if user, err := s.userRepo.Lookup(ctx, userID); err == nil {
			s.systemMessage(ctx, groupID, *g.ChatID, userID, user.DisplayName+" joined the group")
		}
	}
	return g, nil
}

// DeclineInvite resolves the caller's pending invitation as declined.
func (s *GroupService) DeclineInvite(ctx context.Context, groupID, userID uuid.UUID) error {
	inv, err := s.groupRepo.GetPendingInvitation(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNoInvitation
		}
		return err
	}
	return s.groupRepo.DeclineInvitation(ctx, inv.ID)
}

// Leave withdraws the caller's membership. The creator cannot leave.
func (s *GroupService) Leave(ctx context.Context, groupID, userID uuid.UUID) error {
	g, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g.CreatorID == userID {
		return ErrCreatorLocked
	}
	if !s.isActiveMember(g, userID) {
		return ErrNotMember
	}
	if err := s.groupRepo.SetMemberStatus(ctx, groupID, userID, model.MemberLeft); err != nil {
		return err
	}

	if g.ChatID != nil {
		if user, err := s.userRepo.Lookup(ctx, userID); err == nil {
			s.systemMessage(ctx, groupID, *g.ChatID, userID, user.DisplayName+" left the group")
		}
	}
	return nil
}

// RemoveMember expels a member. Creator only; the creator cannot remove
// themselves.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, callerID, memberID uuid.UUID) error {
	g, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g.CreatorID != callerID {
		return ErrCreatorOnly
	}
	if memberID == callerID {
		return ErrCreatorLocked
	}
	if !s.isActiveMember(g, memberID) {
		return ErrNotMember
	}
	if err := s.groupRepo.SetMemberStatus(ctx, groupID, memberID, model.MemberRemoved); err != nil {
		return err
	}

	if g.ChatID != nil {
		if user, err := s.userRepo.Lookup(ctx, memberID); err == nil {
			s.systemMessage(ctx, groupID, *g.ChatID, memberID, user.DisplayName+" was removed from the group")
		}
	}
	return nil
}

// ─── Challenge state machine ────────────────────────────────────────

// StartChallenge moves the challenge from pending to active. Creator only.
// The window end is derived from the configured duration at start time.
func (s *GroupService) StartChallenge(ctx context.Context, groupID, userID uuid.UUID) (*model.Group, error) {
	g, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.CreatorID != userID {
		return nil, ErrCreatorOnly
	}

	start := time.Now()
	end := g.Challenge.ComputeEndTime(start)
	if err := s.groupRepo.StartChallenge(ctx, groupID, start, end); err != nil {
		if errors.Is(err, repository.ErrChallengeStarted) {
			return nil, ErrChallengeStarted
		}
		return nil, err
	}
	s.log.Info().
		Str("group_id", groupID.String()).
		Time("challenge_end", end).
		Msg("challenge started")

	for _, m := range g.Members {
		if m.Status != model.MemberActive || m.UserID == userID {
			continue
		}
		s.notif.Enqueue(ctx, model.NewChallengeStart(m.UserID, groupID, g.Name))
	}

	g, err = s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	s.broadcastTimer(ctx, g)
	return g, nil
}

// StartExam opens the exam gate while the challenge is active. Creator only.
func (s *GroupService) StartExam(ctx context.Context, groupID, userID uuid.UUID) (*model.Group, error) {
	g, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.CreatorID != userID {
		return nil, ErrCreatorOnly
	}
	if g.Challenge.Status != model.ChallengeActive {
		return nil, ErrChallengeClosed
	}

	started, err := s.groupRepo.StartExam(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if started {
		for _, m := range g.Members {
			if m.Status != model.MemberActive || m.UserID == userID {
				continue
			}
			s.notif.Enqueue(ctx, model.NewExamTime(m.UserID, groupID, g.Name))
		}
	}
	return s.groupRepo.GetByID(ctx, groupID)
}

// SetExamInfo records the exam paper metadata. Creator only.
func (s *GroupService) SetExamInfo(ctx context.Context, groupID, userID uuid.UUID, req *model.UpdateExamRequest) (*model.Group, error) {
	g, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.CreatorID != userID {
		return nil, ErrCreatorOnly
	}
	if g.Challenge.Status == model.ChallengeCompleted || g.Challenge.Status == model.ChallengeCancelled {
		return nil, ErrChallengeClosed
	}

	exam := model.ExamInfo{
		PaperURL:        req.PaperURL,
		MaxMarks:        req.MaxMarks,
		DurationMinutes: req.DurationMinutes,
		Instructions:    req.Instructions,
	}
	if exam.MaxMarks == 0 {
		exam.MaxMarks = g.Exam.MaxMarks
	}
	if exam.DurationMinutes == 0 {
		exam.DurationMinutes = g.Exam.DurationMinutes
	}
	if err := s.groupRepo.SetExamInfo(ctx, groupID, exam); err != nil {
		return nil, err
	}
	return s.groupRepo.GetByID(ctx, groupID)
}

// CompleteOverdueChallenges closes every active challenge whose window has
// passed and fans out the final timer state. Called by the background sweep.
func (s *GroupService) CompleteOverdueChallenges(ctx context.Context) (int, error) {
	ids, err := s.groupRepo.CompleteOverdue(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.publish(ctx, config.CacheKey.GroupRoomChannel(id.String()), ws.TimerUpdateEvent{
			Event:   ws.EventTimerUpdate,
			GroupID: id,
			Status:  model.ChallengeCompleted,
		})
	}
	return len(ids), nil
}

// TimerState computes the current countdown for a group. Used for the
// on-demand timer refresh over the stream.
func (s *GroupService) TimerState(ctx context.Context, groupID uuid.UUID) (*ws.TimerUpdateEvent, error) {
	g, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &ws.TimerUpdateEvent{
		Event:            ws.EventTimerUpdate,
		GroupID:          groupID,
		Status:           g.Challenge.Status,
		TimeRemainingSec: int64(g.Challenge.TimeRemaining(now).Seconds()),
		ProgressPercent:  g.Challenge.Progress(now),
	}, nil
}

func (s *GroupService) broadcastTimer(ctx context.Context, g *model.Group) {
	now := time.Now()
	s.publish(ctx, config.CacheKey.GroupRoomChannel(g.ID.String()), ws.TimerUpdateEvent{
		Event:            ws.EventTimerUpdate,
		GroupID:          g.ID,
		Status:           g.Challenge.Status,
		TimeRemainingSec: int64(g.Challenge.TimeRemaining(now).Seconds()),
		ProgressPercent:  g.Challenge.Progress(now),
	})
}

// ─── Submissions and grading ────────────────────────────────────────

// Submit records a member's exam submission. At most one per member; the
// duplicate check and the append are a single atomic storage operation.
func (s *GroupService) Submit(ctx context.Context, groupID, userID uuid.UUID, req *model.SubmitExamRequest) (*model.Submission, error) {
	g, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !s.isActiveMember(g, userID) {
		return nil, ErrNotMember
	}
	if !g.Challenge.ExamStarted {
		return nil, ErrExamNotStarted
	}
	switch g.Challenge.Status {
	case model.ChallengeActive:
		// The sweep may not have flipped an elapsed window yet; an active
		// challenge past its end is already closed for submissions.
		if g.Challenge.TimeRemaining(time.Now()) <= 0 && !g.Settings.AllowLateSubmissions {
			return nil, ErrChallengeClosed
		}
	case model.ChallengeCompleted:
		if !g.Settings.AllowLateSubmissions {
			return nil, ErrChallengeClosed
		}
	default:
		return nil, ErrChallengeClosed
	}

	sub := &model.Submission{
		GroupID:      groupID,
		UserID:       userID,
		AnswerSheets: req.AnswerSheets,
	}
	if err := s.groupRepo.InsertSubmission(ctx, sub); err != nil {
		if errors.Is(err, repository.ErrDuplicateSubmission) {
			return nil, ErrAlreadySubmitted
		}
		return nil, err
	}
	s.log.Info().
		Str("group_id", groupID.String()).
		Str("user_id", userID.String()).
		Int("sheets", len(sub.AnswerSheets)).
		Msg("submission recorded")
	return sub, nil
}

// GetSubmission retrieves the caller's own submission.
func (s *GroupService) GetSubmission(ctx context.Context, groupID, userID uuid.UUID) (*model.Submission, error) {
	sub, err := s.groupRepo.GetSubmission(ctx, groupID, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSubmission
	}
	return sub, err
}

// Grade sets marks on a member's submission. Creator only; marks transition
// nil to value exactly once.
func (s *GroupService) Grade(ctx context.Context, groupID, callerID, memberID uuid.UUID, req *model.GradeRequest) (*model.Submission, error) {
	g, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.CreatorID != callerID {
		return nil, ErrCreatorOnly
	}

	err = s.groupRepo.GradeSubmission(ctx, groupID, memberID, req.Marks, req.Feedback, callerID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyGraded):
			return nil, ErrAlreadyGraded
		case errors.Is(err, pgx.ErrNoRows):
			return nil, ErrNoSubmission
		}
		return nil, err
	}

	// The marks-IS-NULL guard above fired exactly once, so the running
	// totals are folded in at most once per submission.
	if err := s.userRepo.RecordExamResult(ctx, memberID, req.Marks); err != nil {
		s.log.Warn().Err(err).
			Str("user_id", memberID.String()).
			Msg("failed to update user exam totals")
	}

	s.notif.Enqueue(ctx, model.NewMarksPublished(memberID, groupID, g.Name, req.Marks))
	return s.groupRepo.GetSubmission(ctx, groupID, memberID)
}

// Results returns the graded view of a group. The creator sees every
// submission; members see only their own, and only once it is graded. Group
// statistics are recomputed from the submission set on every read.
func (s *GroupService) Results(ctx context.Context, groupID, userID uuid.UUID) ([]model.Submission, model.GroupStats, error) {
	g, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, model.GroupStats{}, err
	}
	if !s.isActiveMember(g, userID) {
		return nil, model.GroupStats{}, ErrNotMember
	}

	subs, err := s.groupRepo.ListSubmissions(ctx, groupID)
	if err != nil {
		return nil, model.GroupStats{}, err
	}
	stats := model.ComputeStats(subs, g.ActiveMemberCount())

	if g.CreatorID == userID {
		return subs, stats, nil
	}

	for _, sub := range subs {
		if sub.UserID == userID {
			if sub.Marks == nil {
				return nil, model.GroupStats{}, ErrResultsNotReady
			}
			return []model.Submission{sub}, stats, nil
		}
	}
	return []model.Submission{}, stats, nil
}

func (s *GroupService) isActiveMember(g *model.Group, userID uuid.UUID) bool {
	for _, m := range g.Members {
		if m.UserID == userID && m.Status == model.MemberActive {
			return true
		}
	}
	return false
}
