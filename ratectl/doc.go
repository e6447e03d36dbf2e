// Package ratectl provides a hybrid link-rate adaptation controller for a
// wireless transmitter.
//
// # Reading Guide
//
// Start with these files to understand the controller:
//   - station.go: per-destination adaptation state and its rate-index invariant
//   - cara.go / aarf.go: the two rate laws (pure reducers over StationState)
//   - regime.go: success-ratio history and the jump test that triggers re-selection
//   - controller.go: HybridController, which owns the stations, runs the active
//     law and drives the A/B probe (probe.go)
//
// # Event Flow
//
// The MAC layer reports each completed transmission with ReportOutcome. The
// controller feeds the regime window, applies the governing law to the
// destination's state, advances any running probe and finally folds the window,
// starting a new probe when the success ratio jumps. Before each transmission the
// MAC layer calls SelectDataParameters (rate + handshake decision) and, when a
// handshake is used, SelectHandshakeParameters.
//
// Sub-packages:
//   - ratectl/trace/: decision records (rate changes, probes, folds) for offline analysis
//   - ratectl/metrics/: prometheus collectors fed by the controller
//
// All exported methods of HybridController are serialized by a single mutex, so a
// controller may be shared between goroutines. Distinct controllers share nothing.
package ratectl
