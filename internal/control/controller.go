// Package control reconciles scene decisions against the remote endpoint,
// issuing a switch request only when the resolved scene actually differs
// from what the endpoint is showing.
package control

import (
	"context"
	"fmt"

	"github.com/scenewatch/scenewatch/internal/engine"
	"github.com/scenewatch/scenewatch/internal/logger"
)

// Endpoint is the remote scene endpoint. Implementations hold one
// authenticated session for the process lifetime; a transport failure is a
// switch failure, not a process-fatal error.
type Endpoint interface {
	CurrentScene(ctx context.Context) (string, error)
	SetCurrentScene(ctx context.Context, scene string) error
}

// Controller owns the process's view of the remote endpoint: the last
// decision fingerprint and the cached current scene. It is driven by a
// single scheduler cycle at a time and needs no locking.
type Controller struct {
	endpoint Endpoint

	lastFingerprint engine.Fingerprint
	fingerprinted   bool
	currentScene    string
	sceneKnown      bool
}

// New creates a controller for the given endpoint.
func New(endpoint Endpoint) *Controller {
	return &Controller{endpoint: endpoint}
}

// Seed initializes the cached current scene by querying the endpoint. Run
// once at startup so an already-correct scene never triggers a spurious
// first switch.
func (c *Controller) Seed(ctx context.Context) error {
	scene, err := c.endpoint.CurrentScene(ctx)
	if err != nil {
		return fmt.Errorf("failed to query current scene: %w", err)
	}
	c.currentScene = scene
	c.sceneKnown = true
	logger.WithComponent("control").Info().
		Str("scene", scene).
		Msg("Seeded current scene from endpoint")
	return nil
}

// CurrentScene returns the cached remote scene. ok is false before Seed or
// the first confirmed switch.
func (c *Controller) CurrentScene() (scene string, ok bool) {
	return c.currentScene, c.sceneKnown
}

// Reconcile applies one decision. The fingerprint advances on every
// finalized cycle — including no-match cycles and matches that already equal
// the remote scene — but never past a failed switch, so the next cycle
// retries the same transition instead of silently accepting a scene the
// endpoint never adopted. changed reports whether the effective state moved
// since the previous cycle.
func (c *Controller) Reconcile(ctx context.Context, d engine.Decision) (changed bool, err error) {
	fp := engine.FingerprintOf(d)
	if c.fingerprinted && fp == c.lastFingerprint {
		return false, nil
	}

	log := logger.WithComponent("control")

	if !d.Matched {
		// No matching window: leave the presentation alone, but remember
		// the miss so repeated unmatched cycles stay quiet.
		c.advance(fp)
		log.Debug().Msg("No matching window, keeping current scene")
		return true, nil
	}

	if c.sceneKnown && d.Scene == c.currentScene {
		c.advance(fp)
		log.Debug().
			Str("scene", d.Scene).
			Int("display", d.Display).
			Msg("Resolved scene already active")
		return true, nil
	}

	if err := c.endpoint.SetCurrentScene(ctx, d.Scene); err != nil {
		return false, fmt.Errorf("failed to switch scene to %q: %w", d.Scene, err)
	}

	previous := c.currentScene
	c.currentScene = d.Scene
	c.sceneKnown = true
	c.advance(fp)
	log.Info().
		Str("from", previous).
		Str("to", d.Scene).
		Int("display", d.Display).
		Msg("Switched scene")
	return true, nil
}

func (c *Controller) advance(fp engine.Fingerprint) {
	c.lastFingerprint = fp
	c.fingerprinted = true
}
