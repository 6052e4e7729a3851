// Package scheduler drives the poll cycle: snapshot, decide, reconcile,
// sleep. The inter-cycle delay adapts to how stable the resolved state is.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/scenewatch/scenewatch/internal/control"
	"github.com/scenewatch/scenewatch/internal/engine"
	"github.com/scenewatch/scenewatch/internal/logger"
	"github.com/scenewatch/scenewatch/internal/rules"
	"github.com/scenewatch/scenewatch/internal/snapshot"
)

// Status is the outcome of one completed cycle, published to subscribers.
type Status struct {
	Decision     engine.Decision `json:"decision"`
	CurrentScene string          `json:"current_scene,omitempty"`
	Changed      bool            `json:"changed"`
	At           time.Time       `json:"at"`
}

// Scheduler runs an unbounded sequence of cycles until its context is
// cancelled. One cycle runs to completion before the next begins; the
// controller state it drives never sees concurrent access.
type Scheduler struct {
	provider   snapshot.Provider
	ruleSet    rules.Set
	controller *control.Controller
	base       time.Duration
	maxBackoff int

	mu         sync.RWMutex
	lastStatus *Status
	listeners  []chan Status

	// sleep is replaceable in tests to observe the delay sequence.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a scheduler. base is the delay after a changed cycle;
// unchanged cycles double the delay up to base*maxBackoff.
func New(provider snapshot.Provider, set rules.Set, controller *control.Controller, base time.Duration, maxBackoff int) *Scheduler {
	if maxBackoff < 1 {
		maxBackoff = 1
	}
	return &Scheduler{
		provider:   provider,
		ruleSet:    set,
		controller: controller,
		base:       base,
		maxBackoff: maxBackoff,
		sleep:      sleepCtx,
	}
}

// Run loops until ctx is cancelled. The sleep and any in-flight remote call
// are both interrupted by cancellation; no further calls are issued after
// that. The returned error is always the context's.
func (s *Scheduler) Run(ctx context.Context) error {
	log := logger.WithComponent("scheduler")
	maxDelay := s.base * time.Duration(s.maxBackoff)
	delay := s.base

	log.Info().
		Dur("interval", s.base).
		Int("max_backoff", s.maxBackoff).
		Int("rules", s.ruleSet.Len()).
		Msg("Starting poll loop")

	for {
		windows, err := s.provider.Enumerate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A partial snapshot is still usable; decide with what we got.
			log.Warn().Err(err).Int("windows", len(windows)).
				Msg("Snapshot incomplete, continuing with gathered windows")
		}

		decision := engine.Decide(windows, s.ruleSet)
		changed, err := s.controller.Reconcile(ctx, decision)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Fingerprint did not advance; retry the transition promptly.
			log.Error().Err(err).Msg("Scene switch failed, retrying next cycle")
			delay = s.base
		case changed:
			delay = s.base
		default:
			delay = min(delay*2, maxDelay)
		}

		s.publish(decision, changed)

		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// LastStatus returns the most recently completed cycle outcome.
func (s *Scheduler) LastStatus() (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastStatus == nil {
		return Status{}, false
	}
	return *s.lastStatus, true
}

// Subscribe returns a channel receiving every cycle outcome. Slow consumers
// miss updates rather than stalling the loop.
func (s *Scheduler) Subscribe() chan Status {
	ch := make(chan Status, 10)
	s.mu.Lock()
	s.listeners = append(s.listeners, ch)
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (s *Scheduler) Unsubscribe(ch chan Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, listener := range s.listeners {
		if listener == ch {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func (s *Scheduler) publish(decision engine.Decision, changed bool) {
	status := Status{
		Decision: decision,
		Changed:  changed,
		At:       time.Now(),
	}
	if scene, ok := s.controller.CurrentScene(); ok {
		status.CurrentScene = scene
	}

	s.mu.Lock()
	s.lastStatus = &status
	s.mu.Unlock()

	// Send while holding the read lock: Unsubscribe closes channels under
	// the write lock, so a close can never interleave with a send.
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, listener := range s.listeners {
		select {
		case listener <- status:
		default:
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
