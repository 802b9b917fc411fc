package main

import (
	"alcyxob/session-tracker/internal/config"
	"alcyxob/session-tracker/internal/datasource"
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/lifecycle"
	"alcyxob/session-tracker/internal/surface"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and print the environment for later commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if email == "" || password == "" {
			return errors.New("--email and --password are required")
		}
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		client := datasource.NewHTTP(cfg.Client.BaseURL, datasource.WithTimeout(cfg.Client.Timeout))
		res, err := client.Login(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "export CLIENT_TOKEN=%s\n", res.Token)
		fmt.Fprintf(out, "export CLIENT_OWNER_ID=%s\n", res.UserID)
		fmt.Fprintf(out, "export CLIENT_ROLE=%s\n", res.Role)
		if res.TrainerID != "" {
			fmt.Fprintf(out, "export CLIENT_TRAINER_ID=%s\n", res.TrainerID)
		}
		return nil
	},
}

// withApp builds the app, restores the owner's session and hands it to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.restore(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	return fn(ctx, a)
}

// report prints the outcome of a lifecycle action. A terminal action kept
// on this device is a warning, not a failure.
func report(cmd *cobra.Command, a *app, s *domain.Session, err error) error {
	if errors.Is(err, lifecycle.ErrUnsynced) {
		log.Printf("WARN: %v", err)
		err = nil
	}
	if err != nil {
		return err
	}
	if s != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", s.Status, s.Title, s.ID)
	}
	drawSelf(cmd, a)
	return nil
}

func drawSelf(cmd *cobra.Command, a *app) {
	opts := a.surfaceOptions()
	self := surface.NewSelfSurface(a.ctrl, opts)
	drawFrames(cmd.OutOrStdout(), []surface.Frame{self.Render(cmd.Context())})
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new session",
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		difficulty, _ := cmd.Flags().GetInt("difficulty")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			s, err := a.ctrl.Start(ctx, lifecycle.StartInput{Title: title, Difficulty: difficulty})
			return report(cmd, a, s, err)
		})
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the active session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			s, err := a.ctrl.Pause(ctx)
			return report(cmd, a, s, err)
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the paused session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			s, err := a.ctrl.Resume(ctx)
			return report(cmd, a, s, err)
		})
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "Finish the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		notes, _ := cmd.Flags().GetString("notes")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			s, err := a.ctrl.Complete(ctx, notes)
			return report(cmd, a, s, err)
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Abandon the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			s, err := a.ctrl.Cancel(ctx)
			return report(cmd, a, s, err)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session and recent history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			drawSelf(cmd, a)
			return nil
		})
	},
}

var logExerciseCmd = &cobra.Command{
	Use:   "log-exercise <name>",
	Short: "Add an exercise to the current session and save progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reps, _ := cmd.Flags().GetInt("reps")
		weight, _ := cmd.Flags().GetFloat64("weight")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			entryID, err := a.ctrl.AddExercise(args[0], "")
			if err != nil {
				return err
			}
			if reps > 0 {
				setID, err := a.ctrl.AddSet(entryID, domain.SetLog{Reps: reps, Weight: weight})
				if err != nil {
					return err
				}
				if err := a.ctrl.CompleteSet(entryID, setID); err != nil {
					return err
				}
			}
			if err := a.ctrl.SaveProgress(ctx); err != nil {
				return fmt.Errorf("save progress: %w", err)
			}
			drawSelf(cmd, a)
			return nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Deliver sessions that were finished while the server was unreachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			n, err := a.ctrl.RetryUnsynced(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d session(s)\n", n)
			return err
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the views for your role on screen until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.role != domain.RoleAdmin {
			if err := a.restore(ctx); err != nil {
				return fmt.Errorf("restore session: %w", err)
			}
			go func() {
				if err := a.ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("ERROR: Autosave loop stopped: %v", err)
				}
			}()
		}

		shell := a.shell()
		if err := shell.Mount(ctx); err != nil {
			log.Printf("WARN: Some views failed to mount: %v", err)
		}
		defer shell.Unmount()

		out := cmd.OutOrStdout()
		err = shell.Run(ctx, func(frames []surface.Frame) {
			fmt.Fprint(out, "\033[H\033[2J")
			drawFrames(out, frames)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Show your clients and their current sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.role != domain.RoleTrainer {
			return fmt.Errorf("roster is for trainers, you are signed in as %s", a.role)
		}
		roster := surface.NewTrainerSurface(a.source, a.ownerID, a.surfaceOptions())
		return drawOnce(ctx, cmd, roster)
	},
}

// drawOnce mounts a polled surface, waits for its first load and draws it.
func drawOnce(ctx context.Context, cmd *cobra.Command, sf surface.Surface) error {
	if err := sf.Mount(ctx); err != nil {
		return err
	}
	defer sf.Unmount()
	select {
	case <-sf.Changed():
	case <-ctx.Done():
		return ctx.Err()
	}
	drawFrames(cmd.OutOrStdout(), []surface.Frame{sf.Render(ctx)})
	return nil
}

func adminSurface(cmd *cobra.Command, a *app) (*surface.AdminSurface, error) {
	if a.role != domain.RoleAdmin {
		return nil, fmt.Errorf("admin views need the admin role, you are signed in as %s", a.role)
	}
	admin := surface.NewAdminSurface(a.source, a.surfaceOptions())
	status, _ := cmd.Flags().GetString("status")
	role, _ := cmd.Flags().GetString("role-filter")
	dateRange, _ := cmd.Flags().GetString("range")
	f := surface.AdminFilter{
		Status: surface.StatusFilter(status),
		Role:   surface.RoleFilter(role),
		Range:  domain.DateRange(dateRange),
	}
	if err := admin.SetFilter(f); err != nil {
		return nil, err
	}
	return admin, nil
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Show platform-wide session oversight",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		admin, err := adminSurface(cmd, a)
		if err != nil {
			return err
		}
		return drawOnce(ctx, cmd, admin)
	},
}

var adminEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "Complete or cancel any open session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outcome, _ := cmd.Flags().GetString("outcome")
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		admin, err := adminSurface(cmd, a)
		if err != nil {
			return err
		}
		if err := admin.Mount(ctx); err != nil {
			return err
		}
		defer admin.Unmount()
		s, err := admin.EndSession(ctx, args[0], domain.Action(outcome))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", s.Status, s.Title, s.ID)
		return nil
	},
}

func init() {
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password")

	startCmd.Flags().String("title", "", "session title")
	startCmd.Flags().Int("difficulty", 0, "difficulty from 1 to 5")
	completeCmd.Flags().String("notes", "", "notes to keep with the session")
	logExerciseCmd.Flags().Int("reps", 0, "log one completed set with this many reps")
	logExerciseCmd.Flags().Float64("weight", 0, "weight of the logged set")

	for _, c := range []*cobra.Command{adminCmd, adminEndCmd} {
		def := surface.DefaultAdminFilter()
		c.Flags().String("status", string(def.Status), "all, active or paused")
		c.Flags().String("role-filter", string(def.Role), "all, client or trainer")
		c.Flags().String("range", string(def.Range), "all, today, week or month")
	}
	adminEndCmd.Flags().String("outcome", string(domain.ActionComplete), "complete or cancel")
	adminCmd.AddCommand(adminEndCmd)

	rootCmd.AddCommand(loginCmd, startCmd, pauseCmd, resumeCmd, completeCmd, cancelCmd,
		statusCmd, logExerciseCmd, syncCmd, watchCmd, rosterCmd, adminCmd)
}
