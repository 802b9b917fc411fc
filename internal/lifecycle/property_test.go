package lifecycle

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/outbox"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func outboxEntry(s domain.Session) outbox.Entry {
	return outbox.Entry{Session: s, Attempts: 1, QueuedAt: t0}
}

func TestControllerFollowsLifecycleTable(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	actions := []domain.Action{domain.ActionStart, domain.ActionPause, domain.ActionResume, domain.ActionComplete, domain.ActionCancel}

	properties.Property("controller status matches the lifecycle table", prop.ForAll(
		func(seq []int) bool {
			h := newHarness(t)
			ctx := context.Background()

			var model domain.SessionStatus // "" while no session is current
			var elapsed int64
			for _, i := range seq {
				action := actions[i]
				before := h.ctrl.Snapshot()

				var err error
				switch action {
				case domain.ActionStart:
					_, err = h.ctrl.Start(ctx, StartInput{})
				case domain.ActionPause:
					_, err = h.ctrl.Pause(ctx)
				case domain.ActionResume:
					_, err = h.ctrl.Resume(ctx)
				case domain.ActionComplete:
					_, err = h.ctrl.Complete(ctx, "")
				case domain.ActionCancel:
					_, err = h.ctrl.Cancel(ctx)
				}

				next, want := domain.Next(model, action)
				if want != nil {
					if !errors.Is(err, domain.ErrPrecondition) && !errors.Is(err, domain.ErrConflict) {
						return false
					}
					after := h.ctrl.Snapshot()
					if statusOf(after.Current) != statusOf(before.Current) {
						return false
					}
				} else {
					if err != nil {
						return false
					}
					if next.IsTerminal() {
						last := h.ctrl.Snapshot().History[0]
						if last.Status != next || last.DurationSeconds != elapsed {
							return false
						}
						next, elapsed = "", 0
					}
					model = next
				}
				if statusOf(h.ctrl.Snapshot().Current) != model {
					return false
				}
				if h.ctrl.Timer().Elapsed() != elapsed && model != "" {
					return false
				}

				h.clock.Advance(3 * time.Second)
				if model == domain.SessionActive {
					elapsed += 3
				}
			}
			return true
		},
		gen.SliceOfN(12, gen.IntRange(0, len(actions)-1)),
	))

	properties.TestingRun(t)
}

func statusOf(s *domain.Session) domain.SessionStatus {
	if s == nil {
		return ""
	}
	return s.Status
}
