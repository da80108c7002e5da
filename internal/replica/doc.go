// Package replica implements the per-worker feature color state.
//
// Every worker process constructs exactly one FeatureColorMap at start and
// passes it to its HTTP handlers; there is no package-level state. The map is
// mutated only by ApplyUpdate, driven by update commands the master pushes to
// the worker. Replicas of different workers are independent and may disagree
// until the same command reaches all of them.
//
// Lookups for ids that were never updated, including ids outside the
// configured id space, return the default color.
package replica
