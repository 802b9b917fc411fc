package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchLive(t *testing.T) {
	res := Fetch(context.Background(), "sessions", fastRetry(2),
		func(context.Context) ([]string, error) { return []string{"a"}, nil },
		func() []string { return []string{"synthetic"} })
	require.Equal(t, OriginLive, res.Origin)
	require.False(t, res.Synthetic())
	require.Nil(t, res.Err)
	require.Equal(t, []string{"a"}, res.Value)
}

func TestFetchFallsBackAfterRetries(t *testing.T) {
	calls := 0
	res := Fetch(context.Background(), "admin stats", fastRetry(2),
		func(context.Context) (int, error) {
			calls++
			return 0, MarkTransient(errors.New("connection reset"))
		},
		func() int { return 42 })
	require.Equal(t, 2, calls)
	require.True(t, res.Synthetic())
	require.Equal(t, 42, res.Value)
	require.NotNil(t, res.Err)
	require.Equal(t, "admin stats", res.Err.Label)
	require.ErrorIs(t, res.Err, ErrTransient)
}

func TestFetchPermanentFailureIsNotRetried(t *testing.T) {
	calls := 0
	res := Fetch(context.Background(), "roster", fastRetry(3),
		func(context.Context) (int, error) {
			calls++
			return 0, errors.New("unexpected payload")
		},
		func() int { return 7 })
	require.Equal(t, 1, calls)
	require.True(t, res.Synthetic())
	require.Equal(t, 7, res.Value)
}
