package main

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/recovery"
	"alcyxob/session-tracker/internal/surface"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pausedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	fallbackBox  = panelStyle.BorderForeground(lipgloss.Color("203"))
	syntheticTag = warnStyle.Render("[sample data]")
)

func statusStyle(s domain.SessionStatus) lipgloss.Style {
	switch s {
	case domain.SessionActive:
		return activeStyle
	case domain.SessionPaused:
		return pausedStyle
	case domain.SessionCancelled:
		return warnStyle
	}
	return dimStyle
}

func originTag(o recovery.Origin) string {
	switch o {
	case recovery.OriginSynthetic:
		return " " + syntheticTag
	case recovery.OriginLocal:
		return " " + dimStyle.Render("[computed locally]")
	}
	return ""
}

func actionList(actions []domain.Action) string {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return strings.Join(names, " | ")
}

// drawFrames writes every frame as one panel. A failed surface shows its
// fallback and never hides the others.
func drawFrames(w io.Writer, frames []surface.Frame) {
	panels := make([]string, 0, len(frames))
	for _, f := range frames {
		panels = append(panels, renderFrame(f))
	}
	fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, panels...))
}

func renderFrame(f surface.Frame) string {
	if f.Failed() {
		return renderFallback(f.Surface, f.Fallback)
	}
	var body string
	switch v := f.View.(type) {
	case surface.SelfView:
		body = renderSelf(v)
	case surface.WidgetView:
		body = renderWidget(v)
	case surface.RosterView:
		body = renderRoster(v)
	case surface.AdminView:
		body = renderAdmin(v)
	default:
		body = dimStyle.Render("nothing to show")
	}
	return panelStyle.Render(titleStyle.Render(f.Surface) + "\n" + body)
}

func renderFallback(name string, fb *recovery.Fallback) string {
	var b strings.Builder
	b.WriteString(warnStyle.Render(name+": "+fb.Message) + "\n")
	if fb.IncidentID != "" {
		fmt.Fprintf(&b, "incident %s\n", fb.IncidentID)
	}
	switch {
	case fb.Terminal:
		b.WriteString(dimStyle.Render("retries exhausted, reload to try again"))
	case fb.CanRetry:
		b.WriteString(dimStyle.Render(fmt.Sprintf("%d retries left", fb.RetriesLeft)))
	}
	return fallbackBox.Render(b.String())
}

func renderSelf(v surface.SelfView) string {
	var b strings.Builder
	if v.Current != nil {
		st := statusStyle(v.Current.Status)
		fmt.Fprintf(&b, "%s  %s  %s\n",
			titleStyle.Render(v.Current.Title),
			st.Render(string(v.Current.Status)),
			surface.FormatElapsed(v.Elapsed))
		for _, ex := range v.Current.Exercises {
			mark := " "
			if ex.Completed {
				mark = "x"
			}
			fmt.Fprintf(&b, "  [%s] %s (%d sets)\n", mark, ex.Name, len(ex.Sets))
		}
		if len(v.Controls) > 0 {
			fmt.Fprintf(&b, "%s %s\n", dimStyle.Render("actions:"), actionList(v.Controls))
		}
	} else {
		b.WriteString(dimStyle.Render("no session in progress, run `sessionctl start`") + "\n")
		if a := v.Analytics; a != nil {
			fmt.Fprintf(&b, "%d sessions, %d completed, avg %s, streak %d%s\n",
				a.TotalSessions, a.CompletedSessions,
				surface.FormatElapsed(a.AverageDurationSeconds),
				a.CurrentStreak, originTag(v.AnalyticsOrigin))
		}
	}
	if v.Busy {
		b.WriteString(dimStyle.Render("saving...") + "\n")
	}
	if v.Notice != "" {
		b.WriteString(warnStyle.Render(v.Notice) + "\n")
	}
	if len(v.History) > 0 {
		b.WriteString(titleStyle.Render("recent") + "\n")
	}
	for _, h := range v.History {
		line := fmt.Sprintf("  %s  %-24s %-10s %s",
			h.StartTime.Local().Format("Jan 02 15:04"), h.Title,
			statusStyle(h.Status).Render(string(h.Status)),
			surface.FormatElapsed(h.DurationSeconds))
		if h.Unsynced {
			line += " " + pausedStyle.Render("(not synced)")
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderWidget(v surface.WidgetView) string {
	if !v.HasSession {
		return dimStyle.Render("idle")
	}
	line := statusStyle(v.Status).Render(v.Glyph) + " " + v.Title
	if v.Expanded {
		line += "  " + surface.FormatElapsed(v.Elapsed)
		if len(v.Controls) > 0 {
			line += "\n" + dimStyle.Render("actions: ") + actionList(v.Controls)
		}
	}
	return line
}

func renderRoster(v surface.RosterView) string {
	if v.Loading {
		return dimStyle.Render("loading clients...")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d clients, %d training now, %d today, %d this week%s\n",
		v.TotalClients, v.ActiveClients, v.TodaySessions, v.WeekSessions, originTag(v.Origin))
	if v.Empty {
		b.WriteString(dimStyle.Render("no clients yet"))
		return b.String()
	}
	for _, c := range v.Clients {
		now := dimStyle.Render("-")
		if c.Current != nil {
			now = statusStyle(c.Current.Status).Render(string(c.Current.Status)) +
				" " + c.Current.Title + " " + surface.FormatElapsed(c.Current.DurationSeconds)
		}
		fmt.Fprintf(&b, "  %-16s %3d total %2d/wk avg %-8s %s\n",
			c.Name, c.TotalSessions, c.WeeklySessions,
			surface.FormatElapsed(c.AverageDurationSeconds), now)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderAdmin(v surface.AdminView) string {
	if v.Loading {
		return dimStyle.Render("loading sessions...")
	}
	var b strings.Builder
	s := v.Stats
	fmt.Fprintf(&b, "%d active, %d paused, %d total, %d users%s\n",
		s.ActiveSessions, s.PausedSessions, s.TotalSessions, s.TotalUsers, originTag(v.Origin))
	fmt.Fprintf(&b, "%s status=%s role=%s range=%s (%d of %d)\n",
		dimStyle.Render("filter:"), v.Filter.Status, v.Filter.Role, v.Filter.Range, len(v.Rows), v.Total)
	if v.Empty {
		b.WriteString(dimStyle.Render("no sessions match the filter") + "\n")
	}
	for _, r := range v.Rows {
		fmt.Fprintf(&b, "  %-24s %-20s %-7s %s %s\n",
			r.ID, r.Title, r.OwnerRole,
			statusStyle(r.Status).Render(string(r.Status)),
			surface.FormatElapsed(r.Elapsed))
	}
	if len(s.Leaderboard) > 0 {
		b.WriteString(titleStyle.Render("top trainers") + "\n")
		for i, e := range s.Leaderboard {
			fmt.Fprintf(&b, "  %d. %s (%d)\n", i+1, e.Name, e.Sessions)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
