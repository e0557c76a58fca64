package market

import (
	"context"
	"time"
)

// Renderer is a stateful client for the dynamically rendered source. It is
// costly to create and owned exclusively by the acquisition loop.
type Renderer interface {
	// HTML returns the current fully rendered page markup.
	HTML(ctx context.Context) (string, error)
	// Reanchor resets the view state (scroll position) before the next
	// HTML call, avoiding a full page reload between polls.
	Reanchor(ctx context.Context) error
	// Close releases the underlying browser resources.
	Close(ctx context.Context) error
}

// RendererFactory constructs a fresh, warmed-up Renderer. The acquisition
// loop calls it after every teardown.
type RendererFactory func(ctx context.Context) (Renderer, error)

// Extractor turns raw markup into an ordered sequence of records. It performs
// no IO and never fails: malformed markup yields an empty slice.
type Extractor interface {
	Extract(markup string) []Record
}

// Store is the shared last-known-good snapshot cell.
type Store interface {
	Replace(records []Record, capturedAt time.Time)
	Read() Snapshot
	Empty() bool
}

// DurableWriter mirrors a snapshot to stable storage.
type DurableWriter interface {
	Write(snap Snapshot) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper waits for a duration while observing cancellation. Implementations
// must return promptly (sub-second) once ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}
