package runner

import "time"

const (
	// exit code of a script whose uncaughtException handler threw, as in Node
	uncaughtHandlerExitCode = 7
	// exit code of a script that died of an unhandled error
	uncaughtExitCode = 1

	defaultOutputTailBytes = 5 * 1024 * 1024 // 5MB of test output kept per test
	outputSnippetBytes     = 4 * 1024        // attached to failed results

	// how long a killed test process may keep its output open
	processWaitDelay = time.Second

	skipReasonStartFrom = "before start-from test"
)
