// Package exitcodes defines the standard exit codes used by op-harness.
package exitcodes

// Exit code constants used by op-harness
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when no test failed and no test timed out
// * TestFailure (1): Used when one or more tests failed or timed out
// * RuntimeErr (2): Used for runtime errors such as a missing or malformed manifest
const (
	Success     = 0 // All tests pass (skips allowed)
	TestFailure = 1 // Test failures or timeouts
	RuntimeErr  = 2 // Runtime errors
)
