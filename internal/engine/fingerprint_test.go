package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintNoMatchSentinel(t *testing.T) {
	a := FingerprintOf(NoMatch)
	b := FingerprintOf(Decision{})
	require.Equal(t, a, b)

	// The sentinel is distinct from every match fingerprint, even one whose
	// fields happen to be zero values.
	match := FingerprintOf(Decision{Matched: true, Display: 0, Scene: ""})
	require.NotEqual(t, a, match)
}

func TestFingerprintEqualForSameDisplayAndScene(t *testing.T) {
	a := FingerprintOf(Decision{Matched: true, Display: 0, Scene: "Logi-Only"})
	b := FingerprintOf(Decision{Matched: true, Display: 0, Scene: "Logi-Only"})
	require.Equal(t, a, b)
}

func TestFingerprintDiffersByScene(t *testing.T) {
	a := FingerprintOf(Decision{Matched: true, Display: 0, Scene: "Logi-Only"})
	b := FingerprintOf(Decision{Matched: true, Display: 0, Scene: "Default"})
	require.NotEqual(t, a, b)
}

func TestFingerprintDiffersByDisplay(t *testing.T) {
	// Same scene resolved from a different display is a real change.
	a := FingerprintOf(Decision{Matched: true, Display: 0, Scene: "Default"})
	b := FingerprintOf(Decision{Matched: true, Display: 1, Scene: "Default"})
	require.NotEqual(t, a, b)
}
