package lifecycle

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/recovery"
	"context"
	"errors"
	"fmt"
	"log"
)

// RetryUnsynced redelivers due outbox entries. Transient failures are
// rescheduled with backoff; any other failure drops the entry because the
// data source will never accept it.
func (c *Controller) RetryUnsynced(ctx context.Context) (int, error) {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()

	entries, err := c.opts.Outbox.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unsynced sessions: %w", err)
	}
	now := c.clock.Now().UTC()
	synced := 0
	var errs []error
	for _, e := range entries {
		if e.NextAttempt.After(now) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		callCtx, cancel := c.writeCtx(ctx)
		remote, err := c.opts.Source.UpdateSession(callCtx, e.Session.ID, domain.PatchFrom(&e.Session))
		cancel()

		switch {
		case err == nil:
			synced++
			c.forget(ctx, e.Session.ID)
			c.store.update(func(st *State) bool {
				st.History = upsertHistory(st.History, merge(&e.Session, remote), c.opts.HistoryLimit)
				st.Unsynced = removeUnsynced(st.Unsynced, e.Session.ID)
				if len(st.Unsynced) == 0 && st.LastError == ErrUnsynced.Error() {
					st.LastError = ""
				}
				c.deriveAnalytics(st)
				return true
			})
			log.Printf("INFO: Unsynced session %s delivered after %d attempts", e.Session.ID, e.Attempts+1)

		case recovery.IsTransient(err):
			e.Attempts++
			e.LastError = err.Error()
			e.NextAttempt = now.Add(recovery.Backoff(c.opts.Retry, e.Attempts))
			if putErr := c.opts.Outbox.Put(ctx, e); putErr != nil {
				log.Printf("ERROR: Could not reschedule unsynced session %s: %v", e.Session.ID, putErr)
			}
			errs = append(errs, err)

		default:
			log.Printf("WARN: Dropping unsynced session %s, rejected by the data source: %v", e.Session.ID, err)
			c.forget(ctx, e.Session.ID)
			c.store.update(func(st *State) bool {
				st.Unsynced = removeUnsynced(st.Unsynced, e.Session.ID)
				return true
			})
		}
	}
	if synced > 0 {
		c.reloadAnalytics(ctx)
	}
	return synced, errors.Join(errs...)
}

func (c *Controller) forget(ctx context.Context, id string) {
	if err := c.opts.Outbox.Delete(ctx, id); err != nil {
		log.Printf("ERROR: Could not remove session %s from the outbox: %v", id, err)
	}
}

// Run autosaves the open session and drains the outbox every AutosaveEvery
// until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.opts.AutosaveEvery)
	defer ticker.Stop()

	c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			c.tick(ctx)
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	if cur := c.store.Snapshot().Current; cur != nil && cur.Status == domain.SessionActive {
		_ = c.SaveProgress(ctx)
	}
	if n, err := c.RetryUnsynced(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("WARN: %d unsynced sessions delivered, some still pending: %v", n, err)
	}
}
