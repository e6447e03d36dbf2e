// Package experiment drives a ratectl.HybridController against a synthetic
// wireless link so the rate laws can be compared end to end.
//
// # Reading Guide
//
//   - scenario.go: stations, SNR/contention phases and the built-in presets
//   - channel.go: the per-attempt loss model (SNR margin, collisions, handshake protection)
//   - runner.go: the transmission loop and the Result it produces
//   - rng.go: per-subsystem deterministic randomness
//
// A run with the same seed, scenario and controller configuration produces an
// identical Result.
package experiment
