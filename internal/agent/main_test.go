// File: internal/agent/main_test.go
package agent

import (
	"os"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap/zapcore"

	"github.com/Vrooli/agent-s2/internal/config"
	"github.com/Vrooli/agent-s2/internal/observability"
)

// TestMain initializes the global logger before running the agent tests and
// checks that no goroutine outlives them.
func TestMain(m *testing.M) {
	appConfig := config.NewDefaultConfig()
	logConfig := appConfig.Logger()

	logConfig.Level = "debug"
	logConfig.ServiceName = "test-suite"
	logConfig.Format = "console"

	observability.Initialize(logConfig, zapcore.Lock(os.Stdout))

	goleak.VerifyTestMain(m,
		goleak.Cleanup(func(int) {
			observability.Sync()
			observability.ResetForTest()
		}),
	)
}
