package app

import (
	"os"
	"sync"
)

const testModeEnv = "TODO_API_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether binaries should skip connecting to stores and
// listening, as set by the testing package.
func InTestMode() bool {
	return testMode()
}
