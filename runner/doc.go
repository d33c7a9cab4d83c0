// Package runner executes the tests of a manifest one at a time.
//
// The main components are:
//   - SkipEvaluator: start-from cursor, skip-module list and platform tags
//   - Supervisor: the per-test deadline timer
//   - Ledger: classification, tallies and report lines
//   - engine: runs a single test, either in an embedded interpreter
//     (scriptEngine) or as a child process of an external runtime
//     (processEngine)
//   - Runner: iterates sets and tests in manifest order and finalizes the run
//
// Every test is classified exactly once. Whichever path gets there first
// (completion, a thrown error, the exit sequence or the deadline) disarms the
// deadline timer and marks the test finished; later attempts are ignored.
package runner
