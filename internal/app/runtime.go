package app

import (
	"os"
	"sync"
)

// TestModeEnv set to "1" makes the entry points exit before dialing PostgreSQL or Redis.
const TestModeEnv = "SUPPLY_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(TestModeEnv) == "1"
})

// InTestMode reports whether the process runs under tests. The flag is read once.
func InTestMode() bool {
	return testMode()
}
