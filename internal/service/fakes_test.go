package service

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/repository/memory"
	"context"
	"sync"
	"time"
)

func addUser(repo *memory.UserRepository, name string, role domain.Role) *domain.User {
	u := &domain.User{Name: name, Email: name + "@example.com", Role: role}
	if _, err := repo.Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

// countingCache is an in-memory AnalyticsCache that records its traffic.
type countingCache struct {
	mu          sync.Mutex
	entries     map[string]domain.Analytics
	hits        int
	invalidated []string
}

func newCountingCache() *countingCache {
	return &countingCache{entries: map[string]domain.Analytics{}}
}

func (c *countingCache) Get(_ context.Context, ownerID string) (*domain.Analytics, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.entries[ownerID]
	if !ok {
		return nil, false, nil
	}
	c.hits++
	return &a, true, nil
}

func (c *countingCache) Set(_ context.Context, a *domain.Analytics) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[a.OwnerID] = *a
	return nil
}

func (c *countingCache) Invalidate(_ context.Context, ownerIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ownerIDs {
		delete(c.entries, id)
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

type fakeArchive struct {
	mu      sync.Mutex
	put     map[string]string
	failPut error
}

func (a *fakeArchive) PutIncident(_ context.Context, inc *domain.Incident) (string, error) {
	if a.failPut != nil {
		return "", a.failPut
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.put == nil {
		a.put = map[string]string{}
	}
	key := "incidents/" + inc.ID + ".json"
	a.put[inc.ID] = key
	return key, nil
}

func (a *fakeArchive) GeneratePresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://archive.example.com/" + key + "?sig=x", nil
}
