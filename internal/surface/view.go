// Package surface projects lifecycle state and data source reads into the
// four views a user can see: the client self-view, the trainer roster, the
// admin oversight table and the floating status widget.
package surface

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/lifecycle"
	"alcyxob/session-tracker/internal/recovery"
	"fmt"
	"time"
)

// sessionControls is the display order of the controls offered on an open session.
var sessionControls = []domain.Action{
	domain.ActionPause,
	domain.ActionResume,
	domain.ActionComplete,
	domain.ActionCancel,
}

// controlsFor returns the actions the lifecycle table allows from status.
func controlsFor(status domain.SessionStatus, allowed []domain.Action) []domain.Action {
	out := []domain.Action{}
	for _, a := range allowed {
		if _, err := domain.Next(status, a); err == nil {
			out = append(out, a)
		}
	}
	return out
}

// HistoryEntry is one row of the self-view history.
type HistoryEntry struct {
	domain.SessionSummary
	Unsynced bool
}

// SelfView is the client's own dashboard.
type SelfView struct {
	Current  *domain.Session
	Elapsed  int64
	Controls []domain.Action
	// Busy is set while a mutation awaits the data source.
	Busy    bool
	History []HistoryEntry
	// Analytics is shown only when there is no current session.
	Analytics       *domain.Analytics
	AnalyticsOrigin recovery.Origin
	CanStart        bool
	Notice          string
}

// ProjectSelfView derives the self-view from a store snapshot and the timer's
// elapsed value. limit bounds the history rows.
func ProjectSelfView(state lifecycle.State, elapsed int64, limit int) SelfView {
	v := SelfView{
		Busy:    len(state.Pending) > 0,
		Notice:  state.LastError,
		History: []HistoryEntry{},
	}
	if state.Current != nil {
		v.Current = state.Current.Clone()
		v.Elapsed = elapsed
		v.Controls = controlsFor(state.Current.Status, sessionControls)
	} else {
		v.CanStart = true
		if state.Analytics != nil {
			a := *state.Analytics
			v.Analytics = &a
			v.AnalyticsOrigin = state.AnalyticsOrigin
		}
	}
	for i := range state.History {
		s := &state.History[i]
		if v.Current != nil && s.ID == v.Current.ID {
			continue
		}
		if limit > 0 && len(v.History) >= limit {
			break
		}
		v.History = append(v.History, HistoryEntry{
			SessionSummary: domain.SessionSummary{
				ID:              s.ID,
				Title:           s.Title,
				Status:          s.Status,
				DurationSeconds: s.DurationSeconds,
				StartTime:       s.StartTime,
			},
			Unsynced: state.IsUnsynced(s.ID),
		})
	}
	return v
}

// RosterEntry is one client row of the trainer roster.
type RosterEntry struct {
	ClientID               string
	Name                   string
	Current                *domain.SessionSummary
	TotalSessions          int
	WeeklySessions         int
	AverageDurationSeconds int64
	LastSessionAt          *time.Time
}

// RosterView is the trainer's view over their clients.
type RosterView struct {
	TrainerID              string
	TotalClients           int
	ActiveClients          int
	TodaySessions          int
	WeekSessions           int
	MonthSessions          int
	AverageDurationSeconds int64
	Clients                []RosterEntry
	Empty                  bool
	// Loading is set until the first fetch lands.
	Loading                bool
	Origin                 recovery.Origin
}

// ProjectRoster maps trainer stats to the roster view. Each client shows at
// most one current session.
func ProjectRoster(stats domain.TrainerStats) RosterView {
	v := RosterView{
		TrainerID:              stats.TrainerID,
		TotalClients:           stats.TotalClients,
		ActiveClients:          stats.ActiveClients,
		TodaySessions:          stats.TodaySessions,
		WeekSessions:           stats.WeekSessions,
		MonthSessions:          stats.MonthSessions,
		AverageDurationSeconds: stats.AverageDurationSeconds,
		Clients:                make([]RosterEntry, 0, len(stats.Clients)),
	}
	for _, c := range stats.Clients {
		entry := RosterEntry{
			ClientID:               c.ClientID,
			Name:                   c.Name,
			TotalSessions:          c.TotalSessions,
			WeeklySessions:         c.WeeklySessions,
			AverageDurationSeconds: c.AverageDurationSeconds,
		}
		if c.Current != nil {
			cur := *c.Current
			entry.Current = &cur
		}
		if c.LastSessionAt != nil {
			at := *c.LastSessionAt
			entry.LastSessionAt = &at
		}
		v.Clients = append(v.Clients, entry)
	}
	v.Empty = len(v.Clients) == 0
	return v
}

// StatusFilter narrows the admin table by session status.
type StatusFilter string

const (
	StatusAll    StatusFilter = "all"
	StatusActive StatusFilter = "active"
	StatusPaused StatusFilter = "paused"
)

// RoleFilter narrows the admin table by the owner's role.
type RoleFilter string

const (
	RoleAll     RoleFilter = "all"
	RoleClient  RoleFilter = "client"
	RoleTrainer RoleFilter = "trainer"
)

// AdminFilter is the admin table's UI-local filter state. Empty fields mean "all".
type AdminFilter struct {
	Status StatusFilter
	Role   RoleFilter
	Range  domain.DateRange
}

// DefaultAdminFilter shows every session started today.
func DefaultAdminFilter() AdminFilter {
	return AdminFilter{Status: StatusAll, Role: RoleAll, Range: domain.RangeToday}
}

// Validate rejects unknown filter values.
func (f AdminFilter) Validate() error {
	switch f.Status {
	case "", StatusAll, StatusActive, StatusPaused:
	default:
		return fmt.Errorf("unknown status filter %q", f.Status)
	}
	switch f.Role {
	case "", RoleAll, RoleClient, RoleTrainer:
	default:
		return fmt.Errorf("unknown role filter %q", f.Role)
	}
	if f.Range != "" && !f.Range.Valid() {
		return fmt.Errorf("unknown date range %q", f.Range)
	}
	return nil
}

// Match applies the three predicates as an AND.
func (f AdminFilter) Match(s *domain.Session, now time.Time) bool {
	if f.Status != "" && f.Status != StatusAll && string(s.Status) != string(f.Status) {
		return false
	}
	if f.Role != "" && f.Role != RoleAll && string(s.OwnerRole) != string(f.Role) {
		return false
	}
	if f.Range != "" && !f.Range.Contains(s.StartTime, now) {
		return false
	}
	return true
}

// AdminRow is one row of the oversight table.
type AdminRow struct {
	ID        string
	Title     string
	OwnerID   string
	OwnerRole domain.Role
	TrainerID string
	Status    domain.SessionStatus
	Elapsed   int64
	StartTime time.Time
	// CanEnd is set for open sessions an admin may complete or cancel.
	CanEnd bool
}

// AdminView is the platform-wide oversight view.
type AdminView struct {
	Stats  domain.AdminStats
	Filter AdminFilter
	Rows   []AdminRow
	// Total counts the sessions before filtering.
	Total   int
	Empty   bool
	Loading bool
	Origin  recovery.Origin
}

// ProjectAdmin filters sessions and pairs them with the platform counters. An
// empty result is a valid view with Empty set.
func ProjectAdmin(stats domain.AdminStats, sessions []domain.Session, f AdminFilter, now time.Time) AdminView {
	v := AdminView{
		Stats:  stats,
		Filter: f,
		Rows:   []AdminRow{},
		Total:  len(sessions),
	}
	v.Stats.Leaderboard = append([]domain.LeaderboardEntry(nil), stats.Leaderboard...)
	for i := range sessions {
		s := &sessions[i]
		if !f.Match(s, now) {
			continue
		}
		v.Rows = append(v.Rows, AdminRow{
			ID:        s.ID,
			Title:     s.Title,
			OwnerID:   s.OwnerID,
			OwnerRole: s.OwnerRole,
			TrainerID: s.TrainerID,
			Status:    s.Status,
			Elapsed:   s.ElapsedAt(now),
			StartTime: s.StartTime,
			CanEnd:    s.Status.IsOpen(),
		})
	}
	v.Empty = len(v.Rows) == 0
	return v
}

// widgetControls excludes cancel, which lives on the self-view only.
var widgetControls = []domain.Action{
	domain.ActionPause,
	domain.ActionResume,
	domain.ActionComplete,
}

// WidgetView is the floating status widget.
type WidgetView struct {
	Expanded   bool
	HasSession bool
	Status     domain.SessionStatus
	Glyph      string
	Title      string
	// Elapsed and Controls are filled only when expanded.
	Elapsed  int64
	Controls []domain.Action
	CanStart bool
	Busy     bool
}

// Glyphs shown by the collapsed widget.
const (
	GlyphActive = "●"
	GlyphPaused = "❚❚"
)

// ProjectWidget derives the widget from the same snapshot as the self-view.
// expanded is the widget's only local state.
func ProjectWidget(state lifecycle.State, elapsed int64, expanded bool) WidgetView {
	v := WidgetView{Expanded: expanded, Busy: len(state.Pending) > 0}
	cur := state.Current
	if cur == nil {
		v.CanStart = true
		return v
	}
	v.HasSession = true
	v.Status = cur.Status
	v.Title = cur.Title
	switch cur.Status {
	case domain.SessionActive:
		v.Glyph = GlyphActive
	case domain.SessionPaused:
		v.Glyph = GlyphPaused
	}
	if expanded {
		v.Elapsed = elapsed
		v.Controls = controlsFor(cur.Status, widgetControls)
	}
	return v
}

// FormatElapsed renders seconds as H:MM:SS, or M:SS under an hour.
func FormatElapsed(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
