// Package engine resolves a window snapshot against the rule set into a
// single scene decision, and summarizes decisions into fingerprints for
// change detection across polling cycles.
package engine

import (
	"github.com/scenewatch/scenewatch/internal/rules"
	"github.com/scenewatch/scenewatch/internal/snapshot"
)

// Decision is the outcome of one evaluation cycle: the scene that should be
// active and the display it was resolved from. Matched false means no
// observation satisfied any rule, which commands nothing — the current
// remote scene is left alone.
type Decision struct {
	Matched bool   `json:"matched"`
	Display int    `json:"display"`
	Scene   string `json:"scene"`
}

// NoMatch is the decision for a cycle in which no window matched any rule.
var NoMatch = Decision{}

// Decide resolves the observations against the rule set and returns the
// single best decision. Among matching windows the most recently focused one
// wins; a never-focused window (zero LastActive) loses to any focused one.
// Timestamp ties, including the all-unfocused case, resolve to the first
// matching window in snapshot order, so identical input always yields an
// identical decision.
func Decide(windows []snapshot.Window, set rules.Set) Decision {
	best := -1
	bestScene := ""
	for i, w := range windows {
		scene, ok := set.Match(w.Display, w.Title)
		if !ok {
			continue
		}
		if best < 0 || w.LastActive.After(windows[best].LastActive) {
			best = i
			bestScene = scene
		}
	}
	if best < 0 {
		return NoMatch
	}
	return Decision{
		Matched: true,
		Display: windows[best].Display,
		Scene:   bestScene,
	}
}
