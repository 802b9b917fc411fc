package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestNextFollowsLifecycleTable(t *testing.T) {
	tests := []struct {
		name   string
		from   SessionStatus
		action Action
		want   SessionStatus
	}{
		{"start from none", "", ActionStart, SessionActive},
		{"pause active", SessionActive, ActionPause, SessionPaused},
		{"resume paused", SessionPaused, ActionResume, SessionActive},
		{"complete active", SessionActive, ActionComplete, SessionCompleted},
		{"complete paused", SessionPaused, ActionComplete, SessionCompleted},
		{"cancel active", SessionActive, ActionCancel, SessionCancelled},
		{"cancel paused", SessionPaused, ActionCancel, SessionCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.from, tt.action)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNextRejectsInvalidTransitions(t *testing.T) {
	tests := []struct {
		from   SessionStatus
		action Action
	}{
		{"", ActionPause},
		{"", ActionResume},
		{"", ActionComplete},
		{"", ActionCancel},
		{SessionActive, ActionResume},
		{SessionPaused, ActionPause},
		{SessionCompleted, ActionPause},
		{SessionCompleted, ActionResume},
		{SessionCompleted, ActionCancel},
		{SessionCancelled, ActionComplete},
		{SessionCancelled, ActionStart},
	}
	for _, tt := range tests {
		got, err := Next(tt.from, tt.action)
		require.ErrorIs(t, err, ErrPrecondition, "%s from %q", tt.action, tt.from)
		require.Equal(t, tt.from, got, "state must be unchanged")
	}
}

func TestNextStartWhileOpenIsConflict(t *testing.T) {
	for _, from := range []SessionStatus{SessionActive, SessionPaused} {
		_, err := Next(from, ActionStart)
		require.ErrorIs(t, err, ErrConflict)
		require.False(t, errors.Is(err, ErrPrecondition))
	}
}

func TestNextNeverLeavesTerminalStates(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	actions := []Action{ActionStart, ActionPause, ActionResume, ActionComplete, ActionCancel}

	properties.Property("random action sequences stay on the lifecycle table", prop.ForAll(
		func(seq []int) bool {
			var status SessionStatus
			for _, i := range seq {
				action := actions[i]
				next, err := Next(status, action)
				if status.IsTerminal() && err == nil {
					return false
				}
				if err != nil {
					if next != status {
						return false
					}
					continue
				}
				if _, ok := transitions[status][action]; !ok {
					return false
				}
				status = next
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(actions)-1)),
	))

	properties.TestingRun(t)
}

func TestActionFor(t *testing.T) {
	action, ok := ActionFor(SessionPaused, SessionActive)
	require.True(t, ok)
	require.Equal(t, ActionResume, action)

	_, ok = ActionFor(SessionCompleted, SessionActive)
	require.False(t, ok)
}

func TestElapsedAtAccumulatesAcrossPauses(t *testing.T) {
	start := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	since := start
	s := &Session{Status: SessionActive, StartTime: start, ActiveSince: &since}

	require.Equal(t, int64(90), s.ElapsedAt(start.Add(90*time.Second+400*time.Millisecond)))

	// pause at 90s, resume ten minutes later
	s.DurationSeconds = 90
	s.Status = SessionPaused
	s.ActiveSince = nil
	require.Equal(t, int64(90), s.ElapsedAt(start.Add(time.Hour)))

	resumed := start.Add(10 * time.Minute)
	s.Status = SessionActive
	s.ActiveSince = &resumed
	require.Equal(t, int64(120), s.ElapsedAt(resumed.Add(30*time.Second)))
}

func TestSplitElapsedKeepsSubSecondRest(t *testing.T) {
	start := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	s := &Session{Status: SessionActive, DurationSeconds: 3, ActiveSince: &start}
	elapsed, rest := s.SplitElapsed(start.Add(1500 * time.Millisecond))
	require.Equal(t, int64(4), elapsed)
	require.Equal(t, 500*time.Millisecond, rest)

	s.Status = SessionPaused
	elapsed, rest = s.SplitElapsed(start.Add(time.Hour))
	require.Equal(t, int64(3), elapsed)
	require.Zero(t, rest)
}

func TestValidate(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	valid := func() *Session {
		return &Session{ID: "s1", Status: SessionActive, OwnerID: "o1", StartTime: now, ActiveSince: &now, Difficulty: 3}
	}

	require.NoError(t, valid().Validate())

	s := valid()
	s.EndTime = &now
	require.ErrorIs(t, s.Validate(), ErrInvalidSession, "endTime on an open session")

	s = valid()
	s.Status = SessionCompleted
	s.ActiveSince = nil
	require.ErrorIs(t, s.Validate(), ErrInvalidSession, "terminal without endTime")
	s.EndTime = &now
	require.NoError(t, s.Validate())

	s = valid()
	s.Difficulty = 6
	require.ErrorIs(t, s.Validate(), ErrInvalidSession)

	s = valid()
	s.OwnerID = ""
	require.ErrorIs(t, s.Validate(), ErrInvalidSession)
}

func TestNormalizeDefaults(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	s := &Session{Difficulty: 9}
	s.Normalize(now)
	require.Equal(t, "Workout Session 2026-10-18", s.Title)
	require.Equal(t, MaxDifficulty, s.Difficulty)
	require.NotNil(t, s.Exercises)

	s = &Session{}
	s.Normalize(now)
	require.Equal(t, DefaultDifficulty, s.Difficulty)
}

func TestSessionPayloadRoundTrip(t *testing.T) {
	start := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)
	in := &Session{
		ID:              "652f1c",
		Title:           "Leg day",
		Status:          SessionCompleted,
		StartTime:       start,
		EndTime:         &end,
		DurationSeconds: 2700,
		Difficulty:      4,
		OwnerID:         "owner",
		Exercises: []ExerciseEntry{{
			ID:   "ex1",
			Name: "Back Squat",
			Sets: []SetLog{
				{ID: "set1", Reps: 5, Weight: 100, Tempo: "3-1-1-0", RPE: 8, Completed: true},
				{ID: "set2", Reps: 5, Weight: 105, RPE: 9},
			},
			Completed: true,
		}},
	}

	raw, err := json.Marshal(in)
	require.NoError(t, err)
	var out Session
	require.NoError(t, json.Unmarshal(raw, &out))

	require.Equal(t, in.Status, out.Status)
	require.Equal(t, in.DurationSeconds, out.DurationSeconds)
	require.Equal(t, in.Exercises, out.Exercises)
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	s := &Session{ActiveSince: &now, Exercises: []ExerciseEntry{{ID: "e", Sets: []SetLog{{ID: "s", Reps: 1}}}}}
	c := s.Clone()
	c.Exercises[0].Sets[0].Reps = 10
	*c.ActiveSince = now.Add(time.Hour)
	require.Equal(t, 1, s.Exercises[0].Sets[0].Reps)
	require.Equal(t, now, *s.ActiveSince)
}

func TestApplyPatch(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	s := &Session{Status: SessionActive, ActiveSince: &now}
	paused := *s
	paused.Status = SessionPaused
	paused.ActiveSince = nil
	paused.DurationSeconds = 42

	s.Apply(PatchFrom(&paused))
	require.Equal(t, SessionPaused, s.Status)
	require.Nil(t, s.ActiveSince)
	require.Equal(t, int64(42), s.DurationSeconds)
}
