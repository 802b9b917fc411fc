package recovery

import (
	"alcyxob/session-tracker/internal/domain"
	"context"
	"fmt"
	"log"
)

// Origin tells live data from the synthetic fallback.
type Origin string

const (
	OriginLive      Origin = "live"
	OriginSynthetic Origin = "synthetic"
	// OriginLocal marks values derived on the client from data it already holds.
	OriginLocal Origin = "local"
)

// DataFetchError records why a collection fetch fell back to synthetic data.
type DataFetchError struct {
	Label string
	Class domain.ErrorClass
	Err   error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("fetch %s failed (%s): %v", e.Label, e.Class, e.Err)
}

func (e *DataFetchError) Unwrap() error { return e.Err }

// Result is the outcome of Fetch. Err is set exactly when Origin is synthetic.
type Result[T any] struct {
	Value  T
	Origin Origin
	Err    *DataFetchError
}

// Synthetic reports whether the value came from the fallback generator.
func (r Result[T]) Synthetic() bool { return r.Origin == OriginSynthetic }

// Fetch loads a collection with bounded retries. Any failure degrades to the
// synthetic value so an initial render is never blocked.
func Fetch[T any](ctx context.Context, label string, cfg RetryConfig, live func(ctx context.Context) (T, error), synthetic func() T) Result[T] {
	var value T
	err := Retry(ctx, cfg, func(ctx context.Context) error {
		v, err := live(ctx)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err == nil {
		return Result[T]{Value: value, Origin: OriginLive}
	}

	fetchErr := &DataFetchError{Label: label, Class: Classify(err), Err: err}
	log.Printf("WARN: %v; showing synthetic data", fetchErr)
	return Result[T]{Value: synthetic(), Origin: OriginSynthetic, Err: fetchErr}
}
