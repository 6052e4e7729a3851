package snapshot

import (
	"context"
	"time"
)

// Window is one observed candidate window. A zero LastActive means the
// window was not focused when the snapshot was taken. Observations are
// produced fresh every cycle; no identity persists between cycles.
type Window struct {
	Display    int       `json:"display"`
	Title      string    `json:"title"`
	ID         uint32    `json:"id"`
	LastActive time.Time `json:"last_active"`
}

// Provider produces the current list of candidate windows on demand.
type Provider interface {
	Enumerate(ctx context.Context) ([]Window, error)
}
