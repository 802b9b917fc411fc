package main

import (
	"alcyxob/session-tracker/internal/clock"
	"alcyxob/session-tracker/internal/config"
	"alcyxob/session-tracker/internal/datasource"
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/lifecycle"
	"alcyxob/session-tracker/internal/outbox"
	"alcyxob/session-tracker/internal/recovery"
	"alcyxob/session-tracker/internal/service"
	"alcyxob/session-tracker/internal/surface"
	"context"
	"errors"
	"fmt"
	"log"
)

var errNoIdentity = errors.New("no identity configured: run `sessionctl login` and export CLIENT_TOKEN, CLIENT_OWNER_ID and CLIENT_ROLE, or pass --offline")

// app is one sessionctl process: a data source, the controller for the
// configured owner and the surfaces built on top of it.
type app struct {
	cfg       config.ClientConfig
	clock     clock.Clock
	source    datasource.Source
	outbox    outbox.Store
	ctrl      *lifecycle.Controller
	sink      recovery.Sink
	generator *recovery.Generator

	ownerID   string
	role      domain.Role
	trainerID string
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	c := cfg.Client
	a := &app{
		cfg:       c,
		clock:     clock.Real{},
		generator: recovery.NewGenerator(c.SyntheticSeed),
		ownerID:   c.OwnerID,
		role:      domain.Role(c.Role),
		trainerID: c.TrainerID,
	}
	if roleFlag != "" {
		a.role = domain.Role(roleFlag)
	}
	if !a.role.Valid() {
		return nil, fmt.Errorf("unknown role %q", a.role)
	}

	if offline {
		if err := a.useOffline(ctx); err != nil {
			return nil, err
		}
	} else {
		if c.Token == "" || a.ownerID == "" {
			return nil, errNoIdentity
		}
		a.source = datasource.NewHTTP(c.BaseURL,
			datasource.WithTimeout(c.Timeout),
			datasource.WithBearerToken(c.Token),
		)
	}

	if c.OutboxPath != "" {
		store, err := outbox.OpenSQLite(c.OutboxPath)
		if err != nil {
			return nil, fmt.Errorf("open outbox: %w", err)
		}
		a.outbox = store
	} else {
		a.outbox = outbox.NewMemory()
	}

	a.sink = recovery.MultiSink{
		recovery.LogSink{},
		recovery.RemoteSink{Reporter: a.source},
	}
	a.ctrl = lifecycle.NewController(lifecycle.Options{
		OwnerID:       a.ownerID,
		OwnerRole:     a.role,
		TrainerID:     a.trainerID,
		Source:        a.source,
		Outbox:        a.outbox,
		Clock:         a.clock,
		HistoryLimit:  c.HistoryLimit,
		AutosaveEvery: c.AutosaveEvery,
		Timeout:       c.Timeout,
	})
	return a, nil
}

// useOffline serves every read and write from an in-process backend seeded
// with the synthetic dataset. The owner is picked from the dataset by role.
func (a *app) useOffline(ctx context.Context) error {
	backend := datasource.NewOffline(a.clock)
	ds := a.generator.Dataset(a.clock.Now())
	if err := backend.Seed(ctx, ds); err != nil {
		return err
	}
	switch a.role {
	case domain.RoleTrainer:
		a.ownerID = ds.Users[0].ID.Hex()
		a.trainerID = a.ownerID
	case domain.RoleClient:
		client := ds.Users[1]
		a.ownerID = client.ID.Hex()
		if client.TrainerID != nil {
			a.trainerID = client.TrainerID.Hex()
		}
	default:
		a.ownerID = "offline-admin"
	}
	a.source = backend.As(service.Actor{UserID: a.ownerID, Role: a.role})
	log.Printf("INFO: Offline mode as %s %s", a.role, a.ownerID)
	return nil
}

func (a *app) surfaceOptions() surface.Options {
	fetch := recovery.DefaultRetryConfig()
	fetch.MaxAttempts = a.cfg.FetchAttempts
	return surface.Options{
		Sink:         a.sink,
		MaxRetries:   a.cfg.MaxRenderRetries,
		HistoryLimit: a.cfg.HistoryLimit,
		PollInterval: a.cfg.PollInterval,
		Clock:        a.clock,
		Navigator:    surface.LogNavigator{},
		Synthetic:    a.generator,
		FetchRetry:   fetch,
	}
}

// shell builds the surfaces the role can see.
func (a *app) shell() *surface.Shell {
	opts := a.surfaceOptions()
	switch a.role {
	case domain.RoleTrainer:
		return surface.NewShell(
			surface.NewTrainerSurface(a.source, a.ownerID, opts),
			surface.NewSelfSurface(a.ctrl, opts),
			surface.NewWidgetSurface(a.ctrl, opts),
		)
	case domain.RoleAdmin:
		return surface.NewShell(surface.NewAdminSurface(a.source, opts))
	}
	return surface.NewShell(
		surface.NewSelfSurface(a.ctrl, opts),
		surface.NewWidgetSurface(a.ctrl, opts),
	)
}

// restore loads the open session and history before a command acts on them.
func (a *app) restore(ctx context.Context) error {
	if err := a.ctrl.Restore(ctx); err != nil {
		return err
	}
	if err := a.ctrl.Refresh(ctx); err != nil {
		log.Printf("WARN: Could not refresh history: %v", err)
	}
	return nil
}

func (a *app) Close() {
	a.ctrl.Close()
	if err := a.outbox.Close(); err != nil {
		log.Printf("ERROR: Failed to close outbox: %v", err)
	}
}
