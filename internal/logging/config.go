package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "WIREFRAME_LOG_LEVEL"
	EnvLogTimestamp = "WIREFRAME_LOG_TIMESTAMP"
	EnvLogNoColor   = "WIREFRAME_LOG_NOCOLOR"
	EnvLogBypass    = "WIREFRAME_LOG_BYPASS"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure sets the global zerolog logger once per process according
// to profile, then applies env overrides. Unlike the teacher's original
// smplog-backed layer, this configures zerolog directly: smplog is a
// same-author local stub module with no retrievable source in this
// pack (see DESIGN.md), so it cannot be adapted — zerolog is already
// the teacher's own dependency in internal/observability.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		level, timestamp := defaultConfig(profile)
		level, timestamp, noColor, bypass := applyEnvOverrides(level, timestamp)

		if bypass {
			log.Logger = zerolog.Nop()
			return
		}

		writer := zerolog.ConsoleWriter{Out: os.Stdout, NoColor: noColor}
		if timestamp {
			writer.TimeFormat = time.RFC3339
		}
		logger := zerolog.New(writer).Level(level)
		if timestamp {
			logger = logger.With().Timestamp().Logger()
		}
		log.Logger = logger
	})
}

func defaultConfig(profile Profile) (zerolog.Level, bool) {
	switch profile {
	case ProfileTest:
		return zerolog.DebugLevel, false
	default:
		return zerolog.InfoLevel, true
	}
}

func applyEnvOverrides(level zerolog.Level, timestamp bool) (zerolog.Level, bool, bool, bool) {
	noColor := false
	bypass := false
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		noColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogBypass)); ok {
		bypass = v
	}
	return level, timestamp, noColor, bypass
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
