package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scenewatch/scenewatch/internal/config"
	"github.com/scenewatch/scenewatch/internal/control"
	"github.com/scenewatch/scenewatch/internal/engine"
	"github.com/scenewatch/scenewatch/internal/rules"
	"github.com/scenewatch/scenewatch/internal/snapshot"
)

type scriptedProvider struct {
	snapshots [][]snapshot.Window
	err       error
	calls     int
}

func (p *scriptedProvider) Enumerate(ctx context.Context) ([]snapshot.Window, error) {
	i := p.calls
	p.calls++
	if len(p.snapshots) == 0 {
		return nil, p.err
	}
	if i >= len(p.snapshots) {
		i = len(p.snapshots) - 1
	}
	return p.snapshots[i], p.err
}

type fakeEndpoint struct {
	scene    string
	setCalls []string
	failNext int
}

func (f *fakeEndpoint) CurrentScene(ctx context.Context) (string, error) {
	return f.scene, nil
}

func (f *fakeEndpoint) SetCurrentScene(ctx context.Context, scene string) error {
	f.setCalls = append(f.setCalls, scene)
	if f.failNext > 0 {
		f.failNext--
		return errors.New("connection dropped")
	}
	f.scene = scene
	return nil
}

func testRules(t *testing.T) rules.Set {
	t.Helper()
	set, err := rules.Compile([]config.RuleConfig{
		{Display: 0, Pattern: "Fleet", Scene: "Logi-Only"},
		{Display: 0, Pattern: "Mail", Scene: "Comms"},
	})
	require.NoError(t, err)
	return set
}

func seededController(t *testing.T, endpoint *fakeEndpoint) *control.Controller {
	t.Helper()
	c := control.New(endpoint)
	require.NoError(t, c.Seed(context.Background()))
	return c
}

// runCycles runs the scheduler with a stubbed sleep, cancelling after the
// given number of completed cycles, and returns the observed delay sequence.
func runCycles(t *testing.T, s *Scheduler, cycles int) []time.Duration {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delays []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		if len(delays) >= cycles {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	return delays
}

func TestDelayDoublesWhileStableAndIsCapped(t *testing.T) {
	endpoint := &fakeEndpoint{scene: "Default"}
	provider := &scriptedProvider{snapshots: [][]snapshot.Window{
		{{Display: 0, Title: "Fleet Management"}},
	}}
	s := New(provider, testRules(t), seededController(t, endpoint), time.Second, 4)

	delays := runCycles(t, s, 5)

	// Cycle 1 switches (change), then the identical state backs off, capped
	// at 4x the base interval.
	require.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		4 * time.Second,
		4 * time.Second,
	}, delays)
	require.Equal(t, []string{"Logi-Only"}, endpoint.setCalls)
}

func TestDelayResetsOnChange(t *testing.T) {
	endpoint := &fakeEndpoint{scene: "Default"}
	provider := &scriptedProvider{snapshots: [][]snapshot.Window{
		{{Display: 0, Title: "Fleet Management"}},
		{{Display: 0, Title: "Fleet Management"}},
		{{Display: 0, Title: "Fleet Management"}},
		{{Display: 0, Title: "Mail - Inbox"}},
	}}
	s := New(provider, testRules(t), seededController(t, endpoint), time.Second, 8)

	delays := runCycles(t, s, 4)

	require.Equal(t, []time.Duration{
		1 * time.Second, // switched to Logi-Only
		2 * time.Second, // stable
		4 * time.Second, // stable
		1 * time.Second, // switched to Comms
	}, delays)
	require.Equal(t, []string{"Logi-Only", "Comms"}, endpoint.setCalls)
}

func TestSwitchFailureKeepsBaseIntervalAndRetries(t *testing.T) {
	endpoint := &fakeEndpoint{scene: "Default", failNext: 1}
	provider := &scriptedProvider{snapshots: [][]snapshot.Window{
		{{Display: 0, Title: "Fleet Management"}},
	}}
	s := New(provider, testRules(t), seededController(t, endpoint), time.Second, 4)

	delays := runCycles(t, s, 3)

	// Failed switch keeps the base delay so the retry is prompt; the retry
	// succeeds; the now-stable state backs off.
	require.Equal(t, []time.Duration{
		1 * time.Second,
		1 * time.Second,
		2 * time.Second,
	}, delays)
	require.Equal(t, []string{"Logi-Only", "Logi-Only"}, endpoint.setCalls)
}

func TestSnapshotErrorSkipsCycleWithoutCalls(t *testing.T) {
	endpoint := &fakeEndpoint{scene: "Default"}
	provider := &scriptedProvider{err: errors.New("enumeration failed")}
	s := New(provider, testRules(t), seededController(t, endpoint), time.Second, 4)

	delays := runCycles(t, s, 3)

	// An empty snapshot resolves to no-match: the first cycle registers the
	// transition, then the loop backs off. No remote call is ever issued.
	require.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
	}, delays)
	require.Empty(t, endpoint.setCalls)
}

func TestCancellationInterruptsSleep(t *testing.T) {
	endpoint := &fakeEndpoint{scene: "Default"}
	provider := &scriptedProvider{snapshots: [][]snapshot.Window{
		{{Display: 0, Title: "Fleet Management"}},
	}}
	// Long base interval: only cancellation can end the run promptly.
	s := New(provider, testRules(t), seededController(t, endpoint), time.Hour, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}

func TestPublishWithConcurrentUnsubscribe(t *testing.T) {
	endpoint := &fakeEndpoint{scene: "Default"}
	s := New(&scriptedProvider{}, testRules(t), seededController(t, endpoint), time.Second, 4)

	// Clients come and go on every status API disconnect; publishing must
	// never race a send against a channel being closed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			ch := s.Subscribe()
			s.Unsubscribe(ch)
		}
	}()

	decision := engine.Decision{Matched: true, Display: 0, Scene: "Logi-Only"}
	for {
		select {
		case <-done:
			return
		default:
			s.publish(decision, true)
		}
	}
}

func TestStatusPublishing(t *testing.T) {
	endpoint := &fakeEndpoint{scene: "Default"}
	provider := &scriptedProvider{snapshots: [][]snapshot.Window{
		{{Display: 0, Title: "Fleet Management"}},
	}}
	s := New(provider, testRules(t), seededController(t, endpoint), time.Second, 4)

	_, ok := s.LastStatus()
	require.False(t, ok)

	updates := s.Subscribe()
	runCycles(t, s, 2)

	status, ok := s.LastStatus()
	require.True(t, ok)
	require.True(t, status.Decision.Matched)
	require.Equal(t, "Logi-Only", status.Decision.Scene)
	require.Equal(t, "Logi-Only", status.CurrentScene)
	require.False(t, status.Changed) // second cycle was stable

	first := <-updates
	require.True(t, first.Changed)
	require.Equal(t, "Logi-Only", first.CurrentScene)
	s.Unsubscribe(updates)
}
