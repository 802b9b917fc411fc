package recovery

import (
	"alcyxob/session-tracker/internal/domain"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	syntheticTrainers  = []string{"Sarah Johnson", "Mike Chen"}
	syntheticClients   = []string{"Lisa Park", "Tom Reed", "Ana Silva", "Omar Haddad"}
	syntheticTitles    = []string{"Upper Body Strength", "Leg Day", "HIIT Intervals", "Mobility Flow", "Full Body Circuit"}
	syntheticExercises = []string{"Squat", "Bench Press", "Deadlift", "Pull-up", "Plank", "Lunge", "Row"}
)

// Dataset is a synthetic set of users and sessions. Trainers and clients are
// linked both ways, so it can back every surface.
type Dataset struct {
	Users    []domain.User
	Sessions []domain.Session
}

// Generator produces placeholder data shown when live data is unavailable.
// The same seed and time always yield the same dataset.
type Generator struct {
	seed int64
}

func NewGenerator(seed int64) *Generator {
	return &Generator{seed: seed}
}

// Dataset builds two trainers with two clients each and two weeks of history.
// The first client of each trainer has an active session, the second a paused one.
func (g *Generator) Dataset(now time.Time) Dataset {
	rng := rand.New(rand.NewSource(g.seed))
	now = now.UTC()

	var ds Dataset
	seq := 0
	for ti, trainerName := range syntheticTrainers {
		trainer := domain.User{
			ID:        objectID(rng),
			Name:      trainerName,
			Email:     fmt.Sprintf("trainer%d@example.com", ti+1),
			Role:      domain.RoleTrainer,
			CreatedAt: now.AddDate(0, -6, 0),
			UpdatedAt: now.AddDate(0, -6, 0),
		}
		clients := syntheticClients[ti*2 : ti*2+2]
		trainerIdx := len(ds.Users)
		ds.Users = append(ds.Users, trainer)

		seq = g.history(rng, &ds, trainer.ID.Hex(), domain.RoleTrainer, "", now, seq)
		for ci, clientName := range clients {
			tid := trainer.ID
			client := domain.User{
				ID:        objectID(rng),
				Name:      clientName,
				Email:     fmt.Sprintf("client%d@example.com", ti*2+ci+1),
				Role:      domain.RoleClient,
				TrainerID: &tid,
				CreatedAt: now.AddDate(0, -3, 0),
				UpdatedAt: now.AddDate(0, -3, 0),
			}
			ds.Users[trainerIdx].ClientIDs = append(ds.Users[trainerIdx].ClientIDs, client.ID)
			ds.Users = append(ds.Users, client)

			seq = g.history(rng, &ds, client.ID.Hex(), domain.RoleClient, trainer.ID.Hex(), now, seq)
			open := domain.SessionActive
			if ci == 1 {
				open = domain.SessionPaused
			}
			ds.Sessions = append(ds.Sessions, openSession(rng, seq, client.ID.Hex(), trainer.ID.Hex(), open, now))
			seq++
		}
	}
	return ds
}

func (g *Generator) history(rng *rand.Rand, ds *Dataset, ownerID string, role domain.Role, trainerID string, now time.Time, seq int) int {
	if trainerID == "" {
		trainerID = ownerID
	}
	for day := 0; day < 14; day++ {
		if rng.Intn(3) == 0 {
			continue
		}
		start := now.AddDate(0, 0, -day).Add(-time.Duration(2+rng.Intn(6)) * time.Hour)
		duration := int64(900 + rng.Intn(3600))
		end := start.Add(time.Duration(duration) * time.Second)
		if end.After(now) {
			continue
		}
		status := domain.SessionCompleted
		if rng.Intn(8) == 0 {
			status = domain.SessionCancelled
		}
		ds.Sessions = append(ds.Sessions, domain.Session{
			ID:              fmt.Sprintf("synthetic-%d", seq),
			Title:           syntheticTitles[rng.Intn(len(syntheticTitles))],
			Status:          status,
			StartTime:       start,
			EndTime:         &end,
			DurationSeconds: duration,
			Exercises:       exercises(rng, true),
			Difficulty:      domain.MinDifficulty + rng.Intn(domain.MaxDifficulty),
			OwnerID:         ownerID,
			OwnerRole:       role,
			TrainerID:       trainerID,
			CreatedAt:       start,
			UpdatedAt:       end,
		})
		seq++
	}
	return seq
}

func openSession(rng *rand.Rand, seq int, ownerID, trainerID string, status domain.SessionStatus, now time.Time) domain.Session {
	start := now.Add(-time.Duration(10+rng.Intn(40)) * time.Minute)
	s := domain.Session{
		ID:              fmt.Sprintf("synthetic-%d", seq),
		Title:           syntheticTitles[rng.Intn(len(syntheticTitles))],
		Status:          status,
		StartTime:       start,
		DurationSeconds: int64(now.Sub(start)/time.Second) / 2,
		Exercises:       exercises(rng, false),
		Difficulty:      domain.DefaultDifficulty,
		OwnerID:         ownerID,
		OwnerRole:       domain.RoleClient,
		TrainerID:       trainerID,
		CreatedAt:       start,
		UpdatedAt:       now,
	}
	if status == domain.SessionActive {
		since := now.Add(-time.Duration(s.DurationSeconds) * time.Second)
		s.ActiveSince = &since
		s.DurationSeconds = 0
	}
	return s
}

func exercises(rng *rand.Rand, done bool) []domain.ExerciseEntry {
	n := 2 + rng.Intn(3)
	out := make([]domain.ExerciseEntry, 0, n)
	for i := 0; i < n; i++ {
		sets := make([]domain.SetLog, 3)
		for j := range sets {
			sets[j] = domain.SetLog{ID: fmt.Sprintf("set-%d", j+1), Reps: 6 + rng.Intn(7), Weight: float64(20 + 5*rng.Intn(16)), Completed: done}
		}
		out = append(out, domain.ExerciseEntry{
			ID:        fmt.Sprintf("ex-%d", i+1),
			Name:      syntheticExercises[rng.Intn(len(syntheticExercises))],
			Sets:      sets,
			Completed: done,
		})
	}
	return out
}

func objectID(rng *rand.Rand) primitive.ObjectID {
	var id primitive.ObjectID
	for i := range id {
		id[i] = byte(rng.Intn(256))
	}
	return id
}

// Sessions returns the synthetic session list, newest first.
func (g *Generator) Sessions(now time.Time) []domain.Session {
	ds := g.Dataset(now)
	sortNewestFirst(ds.Sessions)
	return ds.Sessions
}

// AdminStats derives the oversight counters from the synthetic dataset.
func (g *Generator) AdminStats(now time.Time) domain.AdminStats {
	ds := g.Dataset(now)
	return domain.ComputeAdminStats(ds.Sessions, ds.Users, now)
}

// TrainerStats derives a roster for trainerID from the first synthetic trainer.
func (g *Generator) TrainerStats(trainerID string, now time.Time) domain.TrainerStats {
	ds := g.Dataset(now)
	trainer := ds.Users[0]
	var clients []domain.User
	for _, u := range ds.Users {
		if u.TrainerID != nil && *u.TrainerID == trainer.ID {
			clients = append(clients, u)
		}
	}
	return domain.ComputeTrainerStats(trainerID, clients, ds.Sessions, now)
}

// Analytics derives analytics for ownerID from the first synthetic client's history.
func (g *Generator) Analytics(ownerID string, now time.Time) domain.Analytics {
	ds := g.Dataset(now)
	source := ds.Users[1].ID.Hex()
	var history []domain.Session
	for _, s := range ds.Sessions {
		if s.OwnerID == source {
			s.OwnerID = ownerID
			history = append(history, s)
		}
	}
	return domain.ComputeAnalytics(ownerID, history, now)
}

func sortNewestFirst(sessions []domain.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
}
