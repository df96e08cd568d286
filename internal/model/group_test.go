package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptrFloat(v float64) *float64 { return &v }

func TestChallengeComputeEndTime(t *testing.T) {
	c := Challenge{DurationDays: 3}
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	end := c.ComputeEndTime(start)
	assert.Equal(t, start.Add(72*time.Hour), end)
}

func TestChallengeTimeRemaining(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)

	t.Run("not started", func(t *testing.T) {
		c := Challenge{Status: ChallengePending}
		assert.Zero(t, c.TimeRemaining(start))
	})

	t.Run("mid window", func(t *testing.T) {
		c := Challenge{Status: ChallengeActive, StartTime: &start, EndTime: &end}
		assert.Equal(t, 36*time.Hour, c.TimeRemaining(start.Add(12*time.Hour)))
	})

	t.Run("past end clamps to zero", func(t *testing.T) {
		c := Challenge{Status: ChallengeActive, StartTime: &start, EndTime: &end}
		assert.Zero(t, c.TimeRemaining(end.Add(time.Minute)))
	})

	t.Run("completed reports zero even inside window", func(t *testing.T) {
		c := Challenge{Status: ChallengeCompleted, StartTime: &start, EndTime: &end}
		assert.Zero(t, c.TimeRemaining(start.Add(time.Hour)))
	})
}

func TestChallengeProgress(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(4 * 24 * time.Hour)
	c := Challenge{Status: ChallengeActive, StartTime: &start, EndTime: &end}

	assert.Zero(t, c.Progress(start.Add(-time.Hour)))
	assert.InDelta(t, 25.0, c.Progress(start.Add(24*time.Hour)), 0.001)
	assert.InDelta(t, 100.0, c.Progress(end.Add(time.Hour)), 0.001)

	unstarted := Challenge{Status: ChallengePending}
	assert.Zero(t, unstarted.Progress(start))
}

func TestComputeStats(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		stats := ComputeStats(nil, 5)
		assert.Equal(t, GroupStats{}, stats)
	})

	t.Run("ungraded submissions count only toward completion", func(t *testing.T) {
		subs := []Submission{{}, {}}
		stats := ComputeStats(subs, 4)

		assert.Equal(t, 2, stats.TotalSubmissions)
		assert.Zero(t, stats.AverageMarks)
		assert.Zero(t, stats.HighestMarks)
		assert.InDelta(t, 50.0, stats.CompletionRate, 0.001)
	})

	t.Run("average and highest use graded marks only", func(t *testing.T) {
		subs := []Submission{
			{Marks: ptrFloat(80)},
			{Marks: ptrFloat(60)},
			{}, // awaiting grade
		}
		stats := ComputeStats(subs, 3)

		assert.Equal(t, 3, stats.TotalSubmissions)
		assert.InDelta(t, 70.0, stats.AverageMarks, 0.001)
		assert.InDelta(t, 80.0, stats.HighestMarks, 0.001)
		assert.InDelta(t, 100.0, stats.CompletionRate, 0.001)
	})

	t.Run("no active members leaves completion at zero", func(t *testing.T) {
		stats := ComputeStats([]Submission{{Marks: ptrFloat(10)}}, 0)
		assert.Zero(t, stats.CompletionRate)
	})

	t.Run("idempotent", func(t *testing.T) {
		subs := []Submission{{Marks: ptrFloat(42)}, {}}
		first := ComputeStats(subs, 2)
		second := ComputeStats(subs, 2)
		assert.Equal(t, first, second)
	})
}

func TestGroupActiveMemberCount(t *testing.T) {
	g := Group{Members: []GroupMember{
		{Status: MemberActive},
		{Status: MemberLeft},
		{Status: MemberActive},
		{Status: MemberRemoved},
	}}
	assert.Equal(t, 2, g.ActiveMemberCount())
}
