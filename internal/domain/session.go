package domain

import (
	"errors"
	"fmt"
	"time"
)

// SessionStatus tracks where a training session is in its lifecycle.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed" // terminal
	SessionCancelled SessionStatus = "cancelled" // terminal
)

// IsTerminal reports whether no further transitions are accepted.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// IsOpen reports whether the status makes the session "current" for its owner.
func (s SessionStatus) IsOpen() bool {
	return s == SessionActive || s == SessionPaused
}

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionPaused, SessionCompleted, SessionCancelled:
		return true
	}
	return false
}

// Action is a lifecycle operation that moves a session between statuses.
type Action string

const (
	ActionStart    Action = "start"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
)

// Lifecycle errors shared by the server and the client controller.
var (
	ErrPrecondition    = errors.New("operation not valid in the current session state")
	ErrConflict        = errors.New("finish or cancel your current session first")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidSession  = errors.New("invalid session")
)

// transitions is the lifecycle table. The empty status stands for "no current session".
var transitions = map[SessionStatus]map[Action]SessionStatus{
	"": {
		ActionStart: SessionActive,
	},
	SessionActive: {
		ActionPause:    SessionPaused,
		ActionComplete: SessionCompleted,
		ActionCancel:   SessionCancelled,
	},
	SessionPaused: {
		ActionResume:   SessionActive,
		ActionComplete: SessionCompleted,
		ActionCancel:   SessionCancelled,
	},
}

// Next returns the status reached by applying action to from.
// Pass "" as from when there is no current session.
func Next(from SessionStatus, action Action) (SessionStatus, error) {
	if action == ActionStart && from.IsOpen() {
		return from, ErrConflict
	}
	to, ok := transitions[from][action]
	if !ok {
		state := string(from)
		if state == "" {
			state = "none"
		}
		return from, fmt.Errorf("%w: cannot %s from %s", ErrPrecondition, action, state)
	}
	return to, nil
}

// ActionFor returns the action that moves a session from one status to another.
func ActionFor(from, to SessionStatus) (Action, bool) {
	for action, target := range transitions[from] {
		if target == to {
			return action, true
		}
	}
	return "", false
}

// SetLog records one performed set of an exercise.
type SetLog struct {
	ID        string  `bson:"id" json:"id"`
	Reps      int     `bson:"reps" json:"reps"`
	Weight    float64 `bson:"weight,omitempty" json:"weight,omitempty"`
	Tempo     string  `bson:"tempo,omitempty" json:"tempo,omitempty"` // e.g. "3-1-1-0"
	RPE       float64 `bson:"rpe,omitempty" json:"rpe,omitempty"`
	Completed bool    `bson:"completed" json:"completed"`
}

// ExerciseEntry is one exercise performed within a session, in order.
type ExerciseEntry struct {
	ID          string   `bson:"id" json:"id"`
	ExerciseID  string   `bson:"exerciseId,omitempty" json:"exerciseId,omitempty"`
	Name        string   `bson:"name" json:"name"`
	Sets        []SetLog `bson:"sets" json:"sets"`
	RestSeconds int      `bson:"restSeconds,omitempty" json:"restSeconds,omitempty"`
	Notes       string   `bson:"notes,omitempty" json:"notes,omitempty"`
	Completed   bool     `bson:"completed" json:"completed"`
}

// Session represents one training session instance.
type Session struct {
	ID              string          `bson:"_id,omitempty" json:"id"`
	Title           string          `bson:"title" json:"title"`
	Status          SessionStatus   `bson:"status" json:"status"`
	StartTime       time.Time       `bson:"startTime" json:"startTime"`
	EndTime         *time.Time      `bson:"endTime,omitempty" json:"endTime,omitempty"`
	DurationSeconds int64           `bson:"durationSeconds" json:"durationSeconds"`     // frozen at the last pause/terminal point
	ActiveSince     *time.Time      `bson:"activeSince,omitempty" json:"activeSince,omitempty"` // start of the running interval, nil unless active
	Exercises       []ExerciseEntry `bson:"exercises" json:"exercises"`
	Difficulty      int             `bson:"difficulty" json:"difficulty"` // 1-5
	OwnerID         string          `bson:"ownerId" json:"ownerId"`
	OwnerRole       Role            `bson:"ownerRole,omitempty" json:"ownerRole,omitempty"`
	TrainerID       string          `bson:"trainerId,omitempty" json:"trainerId,omitempty"`
	Notes           string          `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt       time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time       `bson:"updatedAt" json:"updatedAt"`
}

const (
	DefaultDifficulty = 3
	MinDifficulty     = 1
	MaxDifficulty     = 5
)

// DefaultTitle is used when a session is started without a title.
func DefaultTitle(now time.Time) string {
	return "Workout Session " + now.Format("2006-01-02")
}

// ElapsedAt returns the authoritative elapsed seconds as of now: the frozen
// duration plus the running interval when active.
func (s *Session) ElapsedAt(now time.Time) int64 {
	elapsed, _ := s.SplitElapsed(now)
	return elapsed
}

// SplitElapsed is ElapsedAt plus the part of the running interval below a
// whole second, which a pause carries into the next resume.
func (s *Session) SplitElapsed(now time.Time) (int64, time.Duration) {
	if s == nil {
		return 0, 0
	}
	elapsed := s.DurationSeconds
	var rest time.Duration
	if s.Status == SessionActive && s.ActiveSince != nil {
		if running := now.Sub(*s.ActiveSince); running > 0 {
			elapsed += int64(running / time.Second)
			rest = running % time.Second
		}
	}
	return elapsed, rest
}

// Normalize fills defaults and clamps out-of-range fields.
func (s *Session) Normalize(now time.Time) {
	if s.Title == "" {
		s.Title = DefaultTitle(now)
	}
	if s.Difficulty == 0 {
		s.Difficulty = DefaultDifficulty
	}
	if s.Difficulty < MinDifficulty {
		s.Difficulty = MinDifficulty
	}
	if s.Difficulty > MaxDifficulty {
		s.Difficulty = MaxDifficulty
	}
	if s.Exercises == nil {
		s.Exercises = []ExerciseEntry{}
	}
	if s.DurationSeconds < 0 {
		s.DurationSeconds = 0
	}
}

// Validate checks the record invariants.
func (s *Session) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrInvalidSession)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidSession, s.Status)
	}
	if s.OwnerID == "" {
		return fmt.Errorf("%w: ownerId is required", ErrInvalidSession)
	}
	if s.Status.IsTerminal() != (s.EndTime != nil) {
		return fmt.Errorf("%w: endTime must be set exactly when the session is terminal", ErrInvalidSession)
	}
	if (s.Status == SessionActive) != (s.ActiveSince != nil) {
		return fmt.Errorf("%w: activeSince must be set exactly when the session is active", ErrInvalidSession)
	}
	if s.DurationSeconds < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidSession)
	}
	if s.Difficulty < MinDifficulty || s.Difficulty > MaxDifficulty {
		return fmt.Errorf("%w: difficulty %d out of range", ErrInvalidSession, s.Difficulty)
	}
	return nil
}

// Clone returns a deep copy so snapshots never share slices or pointers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.EndTime = cloneTime(s.EndTime)
	c.ActiveSince = cloneTime(s.ActiveSince)
	c.Exercises = CloneExercises(s.Exercises)
	return &c
}

// CloneExercises deep-copies an exercise list.
func CloneExercises(in []ExerciseEntry) []ExerciseEntry {
	if in == nil {
		return nil
	}
	out := make([]ExerciseEntry, len(in))
	for i, ex := range in {
		out[i] = ex
		if ex.Sets != nil {
			out[i].Sets = append([]SetLog(nil), ex.Sets...)
		}
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// SessionPatch is a partial update sent to the data source. Nil fields are untouched.
type SessionPatch struct {
	Status           *SessionStatus   `json:"status,omitempty"`
	DurationSeconds  *int64           `json:"durationSeconds,omitempty"`
	ActiveSince      *time.Time       `json:"activeSince,omitempty"`
	ClearActiveSince bool             `json:"clearActiveSince,omitempty"`
	EndTime          *time.Time       `json:"endTime,omitempty"`
	Title            *string          `json:"title,omitempty"`
	Notes            *string          `json:"notes,omitempty"`
	Difficulty       *int             `json:"difficulty,omitempty"`
	Exercises        *[]ExerciseEntry `json:"exercises,omitempty"`
}

// PatchFrom builds a full-state patch carrying every mutable field of s.
func PatchFrom(s *Session) SessionPatch {
	status := s.Status
	duration := s.DurationSeconds
	title := s.Title
	notes := s.Notes
	difficulty := s.Difficulty
	exercises := CloneExercises(s.Exercises)
	p := SessionPatch{
		Status:          &status,
		DurationSeconds: &duration,
		EndTime:         cloneTime(s.EndTime),
		Title:           &title,
		Notes:           &notes,
		Difficulty:      &difficulty,
		Exercises:       &exercises,
	}
	if s.ActiveSince != nil {
		p.ActiveSince = cloneTime(s.ActiveSince)
	} else {
		p.ClearActiveSince = true
	}
	return p
}

// Apply writes the non-nil patch fields onto s. It does not check transitions.
func (s *Session) Apply(p SessionPatch) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.DurationSeconds != nil {
		s.DurationSeconds = *p.DurationSeconds
	}
	if p.ClearActiveSince {
		s.ActiveSince = nil
	}
	if p.ActiveSince != nil {
		s.ActiveSince = cloneTime(p.ActiveSince)
	}
	if p.EndTime != nil {
		s.EndTime = cloneTime(p.EndTime)
	}
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	if p.Difficulty != nil {
		s.Difficulty = *p.Difficulty
	}
	if p.Exercises != nil {
		s.Exercises = CloneExercises(*p.Exercises)
	}
}
