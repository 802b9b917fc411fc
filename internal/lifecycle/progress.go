package lifecycle

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/recovery"
	"alcyxob/session-tracker/internal/service"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// AddExercise appends an exercise to the current session and returns its entry id.
func (c *Controller) AddExercise(name, exerciseID string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: exercise name is required", domain.ErrPrecondition)
	}
	id := uuid.NewString()
	err := c.editCurrent("add exercise", func(s *domain.Session) error {
		s.Exercises = append(s.Exercises, domain.ExerciseEntry{
			ID:         id,
			ExerciseID: exerciseID,
			Name:       name,
			Sets:       []domain.SetLog{},
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// CompleteExercise marks an exercise and all of its sets done.
func (c *Controller) CompleteExercise(entryID string) error {
	return c.editCurrent("complete exercise", func(s *domain.Session) error {
		ex := findExercise(s, entryID)
		if ex == nil {
			return fmt.Errorf("%w: no exercise %s", domain.ErrPrecondition, entryID)
		}
		ex.Completed = true
		for i := range ex.Sets {
			ex.Sets[i].Completed = true
		}
		return nil
	})
}

// AddSet logs a set on an exercise and returns the set id.
func (c *Controller) AddSet(entryID string, set domain.SetLog) (string, error) {
	if set.ID == "" {
		set.ID = uuid.NewString()
	}
	err := c.editCurrent("add set", func(s *domain.Session) error {
		ex := findExercise(s, entryID)
		if ex == nil {
			return fmt.Errorf("%w: no exercise %s", domain.ErrPrecondition, entryID)
		}
		ex.Sets = append(ex.Sets, set)
		if !set.Completed {
			ex.Completed = false
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return set.ID, nil
}

// CompleteSet marks one set done. Completing the last open set completes the exercise.
func (c *Controller) CompleteSet(entryID, setID string) error {
	return c.editCurrent("complete set", func(s *domain.Session) error {
		ex := findExercise(s, entryID)
		if ex == nil {
			return fmt.Errorf("%w: no exercise %s", domain.ErrPrecondition, entryID)
		}
		found := false
		allDone := true
		for i := range ex.Sets {
			if ex.Sets[i].ID == setID {
				ex.Sets[i].Completed = true
				found = true
			}
			allDone = allDone && ex.Sets[i].Completed
		}
		if !found {
			return fmt.Errorf("%w: no set %s", domain.ErrPrecondition, setID)
		}
		if allDone {
			ex.Completed = true
		}
		return nil
	})
}

// ExercisePatch changes the non-nil fields of a logged exercise.
type ExercisePatch struct {
	Name        *string
	RestSeconds *int
	Notes       *string
	Completed   *bool
}

// SetPatch changes the non-nil fields of a logged set.
type SetPatch struct {
	Reps      *int
	Weight    *float64
	Tempo     *string
	RPE       *float64
	Completed *bool
}

// UpdateExercise edits an exercise of the current session. Completing an
// exercise completes its sets, as CompleteExercise does.
func (c *Controller) UpdateExercise(entryID string, patch ExercisePatch) error {
	if patch.Name != nil && *patch.Name == "" {
		return fmt.Errorf("%w: exercise name is required", domain.ErrPrecondition)
	}
	if patch.RestSeconds != nil && *patch.RestSeconds < 0 {
		return fmt.Errorf("%w: rest must not be negative", domain.ErrPrecondition)
	}
	return c.editCurrent("update exercise", func(s *domain.Session) error {
		ex := findExercise(s, entryID)
		if ex == nil {
			return fmt.Errorf("%w: no exercise %s", domain.ErrPrecondition, entryID)
		}
		if patch.Name != nil {
			ex.Name = *patch.Name
		}
		if patch.RestSeconds != nil {
			ex.RestSeconds = *patch.RestSeconds
		}
		if patch.Notes != nil {
			ex.Notes = *patch.Notes
		}
		if patch.Completed != nil {
			ex.Completed = *patch.Completed
			if ex.Completed {
				for i := range ex.Sets {
					ex.Sets[i].Completed = true
				}
			}
		}
		return nil
	})
}

// UpdateSet edits one set. The exercise is complete exactly when all of its
// sets are.
func (c *Controller) UpdateSet(entryID, setID string, patch SetPatch) error {
	if (patch.Reps != nil && *patch.Reps < 0) || (patch.Weight != nil && *patch.Weight < 0) {
		return fmt.Errorf("%w: reps and weight must not be negative", domain.ErrPrecondition)
	}
	if patch.RPE != nil && (*patch.RPE < 0 || *patch.RPE > 10) {
		return fmt.Errorf("%w: rpe %.1f out of range", domain.ErrPrecondition, *patch.RPE)
	}
	return c.editCurrent("update set", func(s *domain.Session) error {
		ex := findExercise(s, entryID)
		if ex == nil {
			return fmt.Errorf("%w: no exercise %s", domain.ErrPrecondition, entryID)
		}
		var set *domain.SetLog
		for i := range ex.Sets {
			if ex.Sets[i].ID == setID {
				set = &ex.Sets[i]
			}
		}
		if set == nil {
			return fmt.Errorf("%w: no set %s", domain.ErrPrecondition, setID)
		}
		if patch.Reps != nil {
			set.Reps = *patch.Reps
		}
		if patch.Weight != nil {
			set.Weight = *patch.Weight
		}
		if patch.Tempo != nil {
			set.Tempo = *patch.Tempo
		}
		if patch.RPE != nil {
			set.RPE = *patch.RPE
		}
		if patch.Completed != nil {
			set.Completed = *patch.Completed
			allDone := true
			for i := range ex.Sets {
				allDone = allDone && ex.Sets[i].Completed
			}
			ex.Completed = allDone
		}
		return nil
	})
}

func findExercise(s *domain.Session, entryID string) *domain.ExerciseEntry {
	for i := range s.Exercises {
		if s.Exercises[i].ID == entryID {
			return &s.Exercises[i]
		}
	}
	return nil
}

// editCurrent applies a local-only edit to the open session. The edit is
// carried to the data source by the next update or SaveProgress.
func (c *Controller) editCurrent(op string, fn func(s *domain.Session) error) error {
	var err error
	c.store.update(func(st *State) bool {
		if st.Current == nil || !st.Current.Status.IsOpen() {
			err = fmt.Errorf("%w: %s needs a current session", domain.ErrPrecondition, op)
			return false
		}
		next := st.Current.Clone()
		if err = fn(next); err != nil {
			return false
		}
		st.Current = next
		return true
	})
	if errors.Is(err, domain.ErrPrecondition) {
		log.Printf("WARN: %s ignored: %v", op, err)
	}
	if err == nil {
		c.keepDraft(context.Background())
	}
	return err
}

// SaveProgress pushes the open session's exercise log and details. The
// running duration is derived server-side from activeSince. The local copy
// is kept either way.
func (c *Controller) SaveProgress(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.store.Snapshot().Current
	if cur == nil || IsTemporaryID(cur.ID) {
		return nil
	}
	exercises := domain.CloneExercises(cur.Exercises)
	patch := domain.SessionPatch{
		Title:      &cur.Title,
		Notes:      &cur.Notes,
		Difficulty: &cur.Difficulty,
		Exercises:  &exercises,
	}
	c.keepDraft(ctx)
	callCtx, cancel := c.writeCtx(ctx)
	defer cancel()
	if _, err := c.opts.Source.UpdateSession(callCtx, cur.ID, patch); err != nil {
		log.Printf("WARN: Autosave of session %s failed: %v", cur.ID, err)
		return err
	}
	return nil
}

// Restore loads the owner's open session from the data source and reseeds
// the timer. Sessions waiting in the outbox are marked unsynced. When the
// data source is unreachable the session kept on this device is restored.
func (c *Controller) Restore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	draft, draftErr := c.opts.Outbox.LoadDraft(ctx, c.opts.OwnerID)
	if draftErr != nil {
		log.Printf("WARN: Could not read the local copy of the open session: %v", draftErr)
	}

	readCtx, cancel := c.readCtx(ctx)
	defer cancel()
	cur, err := c.opts.Source.CurrentSession(readCtx)
	var carry time.Duration
	var notice string
	switch {
	case err != nil && draft == nil:
		return fmt.Errorf("restore current session: %w", err)
	case err != nil:
		log.Printf("WARN: Data source unavailable, restoring session %s from this device: %v", draft.Session.ID, err)
		cur = &draft.Session
		carry = draft.Carry
		notice = userMessage(err)
	case cur != nil && draft != nil && draft.Session.ID == cur.ID:
		// The exercise log may be newer here than on the server.
		cur = merge(&draft.Session, cur)
		if cur.Status == domain.SessionPaused {
			carry = draft.Carry
		}
	}
	entries, err := c.opts.Outbox.List(ctx)
	if err != nil {
		log.Printf("WARN: Could not read unsynced sessions: %v", err)
	}

	c.store.update(func(st *State) bool {
		st.Current = cur.Clone()
		st.carry = carry
		st.LastError = notice
		if cur != nil {
			st.History = upsertHistory(st.History, cur, c.opts.HistoryLimit)
		}
		for i := range entries {
			st.History = upsertHistory(st.History, &entries[i].Session, c.opts.HistoryLimit)
			st.Unsynced = addUnsynced(st.Unsynced, entries[i].Session.ID)
		}
		return true
	})
	c.syncTimer(cur)
	c.keepDraft(ctx)
	if cur != nil {
		log.Printf("INFO: Restored %s session %s at %ds", cur.Status, cur.ID, c.timer.Elapsed())
	}
	return nil
}

// Refresh reloads recent history and analytics. History keeps its previous
// value when the list fails; analytics fall back to a local derivation.
func (c *Controller) Refresh(ctx context.Context) error {
	var listErr error
	var sessions []domain.Session
	readCtx, cancel := c.readCtx(ctx)
	listErr = recovery.Retry(readCtx, recovery.DefaultRetryConfig(), func(ctx context.Context) error {
		var err error
		sessions, err = c.opts.Source.ListSessions(ctx, service.ListQuery{
			OwnerID: c.opts.OwnerID,
			Limit:   int64(c.opts.HistoryLimit),
		})
		return err
	})
	cancel()

	readCtx, cancel = c.readCtx(ctx)
	analytics, analyticsErr := c.opts.Source.Analytics(readCtx, c.opts.OwnerID)
	cancel()

	entries, _ := c.opts.Outbox.List(ctx)
	c.store.update(func(st *State) bool {
		if listErr == nil {
			history := append([]domain.Session(nil), sessions...)
			// Local versions of unsynced sessions win over the server's.
			for i := range entries {
				history = upsertHistory(history, &entries[i].Session, c.opts.HistoryLimit)
			}
			if st.Current != nil && !IsTemporaryID(st.Current.ID) {
				history = upsertHistory(history, st.Current, c.opts.HistoryLimit)
			}
			st.History = history
		}
		for i := range entries {
			st.Unsynced = addUnsynced(st.Unsynced, entries[i].Session.ID)
		}
		if analyticsErr == nil {
			c.adoptAnalytics(st, analytics)
		} else {
			c.deriveAnalytics(st)
		}
		return true
	})

	if listErr != nil {
		log.Printf("WARN: History refresh failed: %v", listErr)
		return listErr
	}
	if analyticsErr != nil {
		log.Printf("WARN: Analytics unavailable, using local figures: %v", analyticsErr)
	}
	return nil
}
