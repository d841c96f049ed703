// Package guard switches the process into test mode so entry points and workers skip
// runtime side effects. Import it for its side effect from tests that touch app wiring.
package guard

import (
	"os"

	"github.com/odyssey-erp/odyssey-supply/internal/app"
)

func init() {
	if os.Getenv(app.TestModeEnv) == "" {
		_ = os.Setenv(app.TestModeEnv, "1")
	}
}
