package app

import (
	"os"
	"testing"
)

const testModeEnv = "DUKAPOS_TEST_MODE"

// InTestMode reports whether binaries should skip connecting to Postgres,
// Redis and the job queue. It is true inside go test binaries and when
// DUKAPOS_TEST_MODE=1 is exported, which smoke checks in CI rely on.
func InTestMode() bool {
	return testing.Testing() || os.Getenv(testModeEnv) == "1"
}
