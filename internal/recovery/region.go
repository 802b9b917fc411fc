package recovery

import (
	"alcyxob/session-tracker/internal/domain"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries is the retry budget of a Region.
const DefaultMaxRetries = 3

const (
	transientMessageText = "We couldn't reach the server. Check your connection and retry."
	otherMessageText     = "Something went wrong while showing this section."
	terminalMessageFmt   = "This section keeps failing. Contact support with incident id %s."
)

// RenderError is a failure contained by a Region.
type RenderError struct {
	Surface    string
	IncidentID string
	Err        error
	Stack      string
	Panicked   bool
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s failed (incident %s): %v", e.Surface, e.IncidentID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Fallback replaces a surface's output after a contained failure.
type Fallback struct {
	IncidentID string
	Message    string
	Class      domain.ErrorClass
	// CanRetry is false once the retry budget is spent.
	CanRetry    bool
	Terminal    bool
	RetriesLeft int
	Err         *RenderError
}

// RegionOptions configure a Region. Zero values fall back to defaults.
type RegionOptions struct {
	Sink       Sink
	MaxRetries int
	// Context is attached to every incident of the region.
	Context map[string]string
	Now     func() time.Time
}

// Region supervises one surface's render function. Panics and errors never
// escape it; they become incidents and a Fallback.
type Region[T any] struct {
	surface    string
	render     func(ctx context.Context) (T, error)
	sink       Sink
	maxRetries int
	tags       map[string]string
	now        func() time.Time

	mu       sync.Mutex
	failures int // consecutive failed retries
	fallback *Fallback
}

// NewRegion wraps render for the named surface.
func NewRegion[T any](surface string, render func(ctx context.Context) (T, error), opts RegionOptions) *Region[T] {
	if opts.Sink == nil {
		opts.Sink = LogSink{}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Region[T]{
		surface:    surface,
		render:     render,
		sink:       opts.Sink,
		maxRetries: opts.MaxRetries,
		tags:       opts.Context,
		now:        opts.Now,
	}
}

// Render returns the surface output. While the region holds a fallback it is
// returned without re-rendering; call Retry to try again.
func (r *Region[T]) Render(ctx context.Context) (T, *Fallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fallback != nil {
		var zero T
		return zero, r.fallback
	}
	return r.attempt(ctx)
}

// Retry re-renders after a failure. Success resets the budget; after
// MaxRetries consecutive failed retries the fallback turns terminal and
// Retry stops rendering.
func (r *Region[T]) Retry(ctx context.Context) (T, *Fallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fallback != nil && r.fallback.Terminal {
		var zero T
		return zero, r.fallback
	}
	if r.fallback != nil {
		r.failures++
	}
	r.fallback = nil
	return r.attempt(ctx)
}

// Reset clears the failure state and budget, as if the region were remounted.
func (r *Region[T]) Reset() {
	r.mu.Lock()
	r.failures = 0
	r.fallback = nil
	r.mu.Unlock()
}

// Failed reports whether the region currently shows a fallback.
func (r *Region[T]) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fallback != nil
}

func (r *Region[T]) attempt(ctx context.Context) (T, *Fallback) {
	value, renderErr := r.safeRender(ctx)
	if renderErr == nil {
		r.failures = 0
		return value, nil
	}

	class := Classify(renderErr.Err)
	incident := domain.Incident{
		ID:         renderErr.IncidentID,
		Surface:    r.surface,
		Message:    renderErr.Err.Error(),
		Stack:      renderErr.Stack,
		Class:      class,
		Context:    r.incidentContext(),
		OccurredAt: r.now().UTC(),
	}
	reportIncident(ctx, r.sink, incident)

	fb := &Fallback{
		IncidentID:  incident.ID,
		Class:       class,
		Err:         renderErr,
		RetriesLeft: r.maxRetries - r.failures,
	}
	if r.failures >= r.maxRetries {
		fb.Terminal = true
		fb.RetriesLeft = 0
		fb.Message = fmt.Sprintf(terminalMessageFmt, incident.ID)
	} else {
		fb.CanRetry = true
		fb.Message = otherMessageText
		if class == domain.ClassTransient {
			fb.Message = transientMessageText
		}
	}
	r.fallback = fb
	var zero T
	return zero, fb
}

func (r *Region[T]) safeRender(ctx context.Context) (value T, renderErr *RenderError) {
	defer func() {
		if p := recover(); p != nil {
			err, ok := p.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", p)
			}
			var zero T
			value = zero
			renderErr = &RenderError{
				Surface:    r.surface,
				IncidentID: uuid.NewString(),
				Err:        err,
				Stack:      string(debug.Stack()),
				Panicked:   true,
			}
		}
	}()
	value, err := r.render(ctx)
	if err != nil {
		var existing *RenderError
		if errors.As(err, &existing) && existing.IncidentID != "" {
			return value, existing
		}
		return value, &RenderError{Surface: r.surface, IncidentID: uuid.NewString(), Err: err}
	}
	return value, nil
}

func (r *Region[T]) incidentContext() map[string]string {
	ctx := make(map[string]string, len(r.tags)+1)
	for k, v := range r.tags {
		ctx[k] = v
	}
	ctx["retries"] = fmt.Sprint(r.failures)
	return ctx
}
