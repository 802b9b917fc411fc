package domain

import (
	"sort"
	"time"
)

const leaderboardSize = 5

// SessionSummary is the compact form of a current session shown on dashboards.
type SessionSummary struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Status          SessionStatus `json:"status"`
	DurationSeconds int64         `json:"durationSeconds"`
	StartTime       time.Time     `json:"startTime"`
}

// Summarize builds a SessionSummary with the elapsed time as of now.
func Summarize(s *Session, now time.Time) SessionSummary {
	return SessionSummary{
		ID:              s.ID,
		Title:           s.Title,
		Status:          s.Status,
		DurationSeconds: s.ElapsedAt(now),
		StartTime:       s.StartTime,
	}
}

// LeaderboardEntry ranks trainers by delivered sessions.
type LeaderboardEntry struct {
	TrainerID string `json:"trainerId"`
	Name      string `json:"name"`
	Sessions  int    `json:"sessions"`
}

// AdminStats are the platform-wide counters of the oversight view.
type AdminStats struct {
	ActiveSessions         int                `json:"activeSessions"`
	PausedSessions         int                `json:"pausedSessions"`
	TotalSessions          int                `json:"totalSessions"`
	TodaySessions          int                `json:"todaySessions"`
	WeekSessions           int                `json:"weekSessions"`
	MonthSessions          int                `json:"monthSessions"`
	TotalUsers             int                `json:"totalUsers"`
	AverageDurationSeconds int64              `json:"averageDurationSeconds"`
	Leaderboard            []LeaderboardEntry `json:"leaderboard"`
	ComputedAt             time.Time          `json:"computedAt"`
}

// ClientSummary is one roster row of the trainer view.
type ClientSummary struct {
	ClientID               string          `json:"clientId"`
	Name                   string          `json:"name"`
	Current                *SessionSummary `json:"current,omitempty"`
	TotalSessions          int             `json:"totalSessions"`
	WeeklySessions         int             `json:"weeklySessions"`
	AverageDurationSeconds int64           `json:"averageDurationSeconds"`
	LastSessionAt          *time.Time      `json:"lastSessionAt,omitempty"`
}

// TrainerStats backs the trainer roster view.
type TrainerStats struct {
	TrainerID              string          `json:"trainerId"`
	TotalClients           int             `json:"totalClients"`
	ActiveClients          int             `json:"activeClients"`
	TodaySessions          int             `json:"todaySessions"`
	WeekSessions           int             `json:"weekSessions"`
	MonthSessions          int             `json:"monthSessions"`
	AverageDurationSeconds int64           `json:"averageDurationSeconds"`
	Clients                []ClientSummary `json:"clients"`
	ComputedAt             time.Time       `json:"computedAt"`
}

type durationAverager struct {
	total int64
	n     int64
}

func (d *durationAverager) add(s *Session) {
	if s.Status == SessionCompleted {
		d.total += s.DurationSeconds
		d.n++
	}
}

func (d *durationAverager) value() int64 {
	if d.n == 0 {
		return 0
	}
	return d.total / d.n
}

// ComputeAdminStats aggregates every session on the platform.
func ComputeAdminStats(sessions []Session, users []User, now time.Time) AdminStats {
	stats := AdminStats{
		TotalSessions: len(sessions),
		TotalUsers:    len(users),
		Leaderboard:   []LeaderboardEntry{},
		ComputedAt:    now,
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID.Hex()] = u.Name
	}

	var avg durationAverager
	perTrainer := map[string]int{}
	for i := range sessions {
		s := &sessions[i]
		switch s.Status {
		case SessionActive:
			stats.ActiveSessions++
		case SessionPaused:
			stats.PausedSessions++
		}
		if RangeToday.Contains(s.StartTime, now) {
			stats.TodaySessions++
		}
		if RangeWeek.Contains(s.StartTime, now) {
			stats.WeekSessions++
		}
		if RangeMonth.Contains(s.StartTime, now) {
			stats.MonthSessions++
		}
		avg.add(s)
		if s.TrainerID != "" {
			perTrainer[s.TrainerID]++
		}
	}
	stats.AverageDurationSeconds = avg.value()

	for id, n := range perTrainer {
		name := names[id]
		if name == "" {
			name = id
		}
		stats.Leaderboard = append(stats.Leaderboard, LeaderboardEntry{TrainerID: id, Name: name, Sessions: n})
	}
	sort.Slice(stats.Leaderboard, func(i, j int) bool {
		a, b := stats.Leaderboard[i], stats.Leaderboard[j]
		if a.Sessions != b.Sessions {
			return a.Sessions > b.Sessions
		}
		return a.TrainerID < b.TrainerID
	})
	if len(stats.Leaderboard) > leaderboardSize {
		stats.Leaderboard = stats.Leaderboard[:leaderboardSize]
	}
	return stats
}

// ComputeTrainerStats aggregates the sessions of a trainer's roster.
// Sessions owned by users outside clients are ignored.
func ComputeTrainerStats(trainerID string, clients []User, sessions []Session, now time.Time) TrainerStats {
	stats := TrainerStats{
		TrainerID:    trainerID,
		TotalClients: len(clients),
		Clients:      make([]ClientSummary, 0, len(clients)),
		ComputedAt:   now,
	}

	byOwner := map[string][]*Session{}
	for i := range sessions {
		s := &sessions[i]
		byOwner[s.OwnerID] = append(byOwner[s.OwnerID], s)
	}

	var overall durationAverager
	for _, c := range clients {
		id := c.ID.Hex()
		row := ClientSummary{ClientID: id, Name: c.Name}
		var avg durationAverager
		for _, s := range byOwner[id] {
			row.TotalSessions++
			if RangeWeek.Contains(s.StartTime, now) {
				row.WeeklySessions++
				stats.WeekSessions++
			}
			if RangeToday.Contains(s.StartTime, now) {
				stats.TodaySessions++
			}
			if RangeMonth.Contains(s.StartTime, now) {
				stats.MonthSessions++
			}
			avg.add(s)
			overall.add(s)
			if row.LastSessionAt == nil || s.StartTime.After(*row.LastSessionAt) {
				t := s.StartTime
				row.LastSessionAt = &t
			}
			if s.Status.IsOpen() && (row.Current == nil || s.StartTime.After(row.Current.StartTime)) {
				summary := Summarize(s, now)
				row.Current = &summary
			}
		}
		row.AverageDurationSeconds = avg.value()
		if row.Current != nil {
			stats.ActiveClients++
		}
		stats.Clients = append(stats.Clients, row)
	}
	stats.AverageDurationSeconds = overall.value()
	sort.SliceStable(stats.Clients, func(i, j int) bool {
		return stats.Clients[i].Name < stats.Clients[j].Name
	})
	return stats
}
