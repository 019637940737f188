package testlog

import (
	"testing"

	"github.com/danmuck/wireframe/internal/logging"
	"github.com/rs/zerolog/log"
)

// Start configures the test logging profile and emits a marker line
// naming the running test, so interleaved package output stays
// attributable when tests run with -v.
func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Debug().Str("test", t.Name()).Msg("start")
}
