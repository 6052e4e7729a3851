package engine

// Fingerprint is an equality-comparable summary of a decision, used solely
// to suppress redundant work across polling cycles. It deliberately excludes
// the window title: live titles change every cycle for the same logical
// scene and would defeat the debounce. It is exactly as sensitive as the
// controller's side effect — it differs between two cycles if and only if
// the eventual action (switch or not, and to what) would differ.
type Fingerprint struct {
	matched bool
	display int
	scene   string
}

// FingerprintOf derives the fingerprint for a decision. Every no-match
// decision maps to the same sentinel value, distinct from any match.
func FingerprintOf(d Decision) Fingerprint {
	if !d.Matched {
		return Fingerprint{}
	}
	return Fingerprint{
		matched: true,
		display: d.Display,
		scene:   d.Scene,
	}
}
