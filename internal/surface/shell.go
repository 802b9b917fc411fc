package surface

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// Shell mounts a set of surfaces and renders them side by side. A surface
// that fails is replaced by its fallback; its siblings render normally.
type Shell struct {
	surfaces []Surface

	mu      sync.Mutex
	mounted []Surface
}

func NewShell(surfaces ...Surface) *Shell {
	return &Shell{surfaces: surfaces}
}

// Surfaces returns the surfaces in display order.
func (s *Shell) Surfaces() []Surface {
	return append([]Surface(nil), s.surfaces...)
}

// Lookup finds a surface by name.
func (s *Shell) Lookup(name string) (Surface, bool) {
	for _, sf := range s.surfaces {
		if sf.Name() == name {
			return sf, true
		}
	}
	return nil, false
}

// Mount mounts every surface. A surface that fails to mount is skipped and
// its error is part of the joined result.
func (s *Shell) Mount(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, sf := range s.surfaces {
		if err := mountSafely(ctx, sf); err != nil {
			log.Printf("WARN: Surface %s failed to mount: %v", sf.Name(), err)
			errs = append(errs, fmt.Errorf("mount %s: %w", sf.Name(), err))
			continue
		}
		s.mounted = append(s.mounted, sf)
	}
	return errors.Join(errs...)
}

func mountSafely(ctx context.Context, sf Surface) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sf.Mount(ctx)
}

// Unmount releases every mounted surface's subscriptions and pollers.
func (s *Shell) Unmount() {
	s.mu.Lock()
	mounted := s.mounted
	s.mounted = nil
	s.mu.Unlock()
	for _, sf := range mounted {
		sf.Unmount()
	}
}

// RenderAll renders every surface in display order.
func (s *Shell) RenderAll(ctx context.Context) []Frame {
	frames := make([]Frame, 0, len(s.surfaces))
	for _, sf := range s.surfaces {
		frames = append(frames, sf.Render(ctx))
	}
	return frames
}

// Run calls draw with a fresh set of frames whenever any surface signals a
// change, until ctx is done.
func (s *Shell) Run(ctx context.Context, draw func([]Frame)) error {
	changed := make(chan struct{}, 1)
	var wg sync.WaitGroup
	for _, sf := range s.surfaces {
		wg.Add(1)
		go func(ch <-chan struct{}) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ch:
					select {
					case changed <- struct{}{}:
					default:
					}
				}
			}
		}(sf.Changed())
	}
	defer wg.Wait()

	draw(s.RenderAll(ctx))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
			draw(s.RenderAll(ctx))
		}
	}
}
