// Package testutil provides shared test infrastructure for the rate controller.
// It holds outcome-sequence builders and float assertions used by the ratectl
// test packages.
package testutil

import (
	"fmt"
	"math"
	"testing"
)

// Outcomes parses a pattern such as "SSFFS" into outcome flags
// (S = success, F = failure). Any other character panics.
func Outcomes(pattern string) []bool {
	out := make([]bool, 0, len(pattern))
	for i, ch := range pattern {
		switch ch {
		case 'S', 's':
			out = append(out, true)
		case 'F', 'f':
			out = append(out, false)
		default:
			panic(fmt.Sprintf("outcome pattern %q: unexpected %q at %d", pattern, ch, i))
		}
	}
	return out
}

// Repeat returns n copies of success.
func Repeat(success bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = success
	}
	return out
}

// Concat joins outcome sequences.
func Concat(seqs ...[]bool) []bool {
	var out []bool
	for _, s := range seqs {
		out = append(out, s...)
	}
	return out
}

// AssertFloatsNear fails the test when got and want differ in length or any
// element differs by more than tol.
func AssertFloatsNear(t *testing.T, want, got []float64, tol float64) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("length mismatch: want %d values %v, got %d values %v", len(want), want, len(got), got)
	}
	for i := range want {
		if math.Abs(want[i]-got[i]) > tol {
			t.Errorf("index %d: want %.6f, got %.6f (tol %g)", i, want[i], got[i], tol)
		}
	}
}
