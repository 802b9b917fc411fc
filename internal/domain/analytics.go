package domain

import (
	"fmt"
	"sort"
	"time"
)

// Analytics is derived from a session history and never mutated directly.
type Analytics struct {
	OwnerID                string           `json:"ownerId"`
	TotalSessions          int              `json:"totalSessions"`
	CompletedSessions      int              `json:"completedSessions"`
	TotalDurationSeconds   int64            `json:"totalDurationSeconds"`
	AverageDurationSeconds int64            `json:"averageDurationSeconds"`
	CurrentStreak          int              `json:"currentStreak"`
	LongestStreak          int              `json:"longestStreak"`
	FavoriteExercises      []string         `json:"favoriteExercises"`
	WeeklyProgress         []WeeklyProgress `json:"weeklyProgress"`
	ComputedAt             time.Time        `json:"computedAt"`
}

// WeeklyProgress summarises completed work in one ISO week.
type WeeklyProgress struct {
	Week                 string `json:"week"` // "2026-W42"
	SessionsCompleted    int    `json:"sessionsCompleted"`
	TotalDurationSeconds int64  `json:"totalDurationSeconds"`
}

const (
	weeklyProgressWeeks = 4
	favoriteExercises   = 3
)

// DateRange names the admin table's time windows.
type DateRange string

const (
	RangeAll   DateRange = "all"
	RangeToday DateRange = "today"
	RangeWeek  DateRange = "week"
	RangeMonth DateRange = "month"
)

// Since returns the inclusive lower bound of the window relative to now.
// The zero time is returned for RangeAll.
func (r DateRange) Since(now time.Time) time.Time {
	today := midnight(now)
	switch r {
	case RangeToday:
		return today
	case RangeWeek:
		return today.AddDate(0, 0, -7)
	case RangeMonth:
		return today.AddDate(0, 0, -30)
	}
	return time.Time{}
}

// Contains reports whether t falls inside the window.
func (r DateRange) Contains(t, now time.Time) bool {
	since := r.Since(now)
	return since.IsZero() || !t.Before(since)
}

// Valid reports whether r is a known range.
func (r DateRange) Valid() bool {
	switch r {
	case RangeAll, RangeToday, RangeWeek, RangeMonth:
		return true
	}
	return false
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

func weekKey(t time.Time, loc *time.Location) string {
	y, w := t.In(loc).ISOWeek()
	return fmt.Sprintf("%d-W%02d", y, w)
}

// ComputeAnalytics derives an owner's analytics from their sessions as of now.
// Sessions of other owners are ignored when ownerID is set.
func ComputeAnalytics(ownerID string, sessions []Session, now time.Time) Analytics {
	loc := now.Location()
	a := Analytics{
		OwnerID:           ownerID,
		FavoriteExercises: []string{},
		ComputedAt:        now,
	}

	days := map[string]bool{}
	weeks := map[string]*WeeklyProgress{}
	for i := 0; i < weeklyProgressWeeks; i++ {
		key := weekKey(now.AddDate(0, 0, -7*i), loc)
		wp := &WeeklyProgress{Week: key}
		weeks[key] = wp
		a.WeeklyProgress = append(a.WeeklyProgress, *wp)
	}
	exerciseCounts := map[string]int{}

	for i := range sessions {
		s := &sessions[i]
		if ownerID != "" && s.OwnerID != ownerID {
			continue
		}
		a.TotalSessions++
		if s.Status != SessionCompleted {
			continue
		}
		a.CompletedSessions++
		a.TotalDurationSeconds += s.DurationSeconds
		days[dayKey(s.StartTime, loc)] = true
		if wp, ok := weeks[weekKey(s.StartTime, loc)]; ok {
			wp.SessionsCompleted++
			wp.TotalDurationSeconds += s.DurationSeconds
		}
		for _, ex := range s.Exercises {
			if ex.Name != "" {
				exerciseCounts[ex.Name]++
			}
		}
	}

	if a.CompletedSessions > 0 {
		a.AverageDurationSeconds = a.TotalDurationSeconds / int64(a.CompletedSessions)
	}
	for i := range a.WeeklyProgress {
		a.WeeklyProgress[i] = *weeks[a.WeeklyProgress[i].Week]
	}
	a.CurrentStreak, a.LongestStreak = streaks(days, now)
	a.FavoriteExercises = topNames(exerciseCounts, favoriteExercises)
	return a
}

// FoldAnalytics brings analytics computed elsewhere up to date with sessions
// that changed since. known maps every session the base had counted to its
// status at that time. Favorite exercises stay as computed.
func FoldAnalytics(base Analytics, known map[string]SessionStatus, sessions []Session, now time.Time) Analytics {
	loc := now.Location()
	a := base
	a.FavoriteExercises = append([]string{}, base.FavoriteExercises...)
	a.WeeklyProgress = append([]WeeklyProgress(nil), base.WeeklyProgress...)
	a.ComputedAt = now

	days := map[string]bool{}
	for i := range sessions {
		if known[sessions[i].ID] == SessionCompleted {
			days[dayKey(sessions[i].StartTime, loc)] = true
		}
	}
	today := dayKey(now, loc)
	for i := range sessions {
		s := &sessions[i]
		if a.OwnerID != "" && s.OwnerID != "" && s.OwnerID != a.OwnerID {
			continue
		}
		prev, counted := known[s.ID]
		if counted && (prev == s.Status || prev.IsTerminal()) {
			continue
		}
		if !counted {
			a.TotalSessions++
		}
		if s.Status != SessionCompleted {
			continue
		}
		a.CompletedSessions++
		a.TotalDurationSeconds += s.DurationSeconds
		week := weekKey(s.StartTime, loc)
		for j := range a.WeeklyProgress {
			if a.WeeklyProgress[j].Week == week {
				a.WeeklyProgress[j].SessionsCompleted++
				a.WeeklyProgress[j].TotalDurationSeconds += s.DurationSeconds
			}
		}
		day := dayKey(s.StartTime, loc)
		if day == today && !days[day] {
			a.CurrentStreak++
			if a.CurrentStreak > a.LongestStreak {
				a.LongestStreak = a.CurrentStreak
			}
		}
		days[day] = true
	}
	if a.CompletedSessions > 0 {
		a.AverageDurationSeconds = a.TotalDurationSeconds / int64(a.CompletedSessions)
	}
	return a
}

// streaks counts consecutive training days. The current streak may end today
// or yesterday; a gap of a full day resets it.
func streaks(days map[string]bool, now time.Time) (current, longest int) {
	if len(days) == 0 {
		return 0, 0
	}
	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	run := 0
	var prev time.Time
	for i, k := range keys {
		d, _ := time.ParseInLocation("2006-01-02", k, now.Location())
		if i > 0 && d.Equal(prev.AddDate(0, 0, 1)) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
		prev = d
	}

	day := midnight(now)
	if !days[day.Format("2006-01-02")] {
		day = day.AddDate(0, 0, -1)
	}
	for days[day.Format("2006-01-02")] {
		current++
		day = day.AddDate(0, 0, -1)
	}
	return current, longest
}

func topNames(counts map[string]int, n int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}
