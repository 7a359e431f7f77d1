package observability

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/loginprobe/internal/config"
)

// syncBuffer satisfies zapcore.WriteSyncer over an in-memory buffer.
type syncBuffer struct {
	strings.Builder
}

func (b *syncBuffer) Sync() error { return nil }

func testLoggerConfig() config.LoggerConfig {
	return config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "loginprobe-test",
		Colors: config.ColorConfig{
			Debug: "cyan", Info: "green", Warn: "yellow", Error: "red", Fatal: "red",
		},
	}
}

func TestInitialize_WritesToConsole(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf syncBuffer
	Initialize(testLoggerConfig(), &buf)

	logger := GetLogger()
	require.NotNil(t, logger)
	logger.Info("calibration started", zap.String("target", "https://example.test/login"))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Contains(t, out, "calibration started")
	assert.Contains(t, out, "loginprobe-test.")
	assert.Contains(t, out, "INFO")
}

func TestInitialize_OnlyOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var first, second syncBuffer
	Initialize(testLoggerConfig(), &first)
	Initialize(testLoggerConfig(), &second)

	GetLogger().Warn("only the first writer wins")
	require.NoError(t, GetLogger().Sync())

	assert.Contains(t, first.String(), "only the first writer wins")
	assert.Empty(t, second.String())
}

func TestInitialize_JSONFormat(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	cfg := testLoggerConfig()
	cfg.Format = "json"

	var buf syncBuffer
	Initialize(cfg, &buf)

	GetLogger().Info("structured entry")
	require.NoError(t, GetLogger().Sync())

	out := buf.String()
	assert.Contains(t, out, `"msg":"structured entry"`)
	assert.Contains(t, out, `"level":"INFO"`)
}

func TestInitialize_InvalidLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	cfg := testLoggerConfig()
	cfg.Level = "chatty"

	var buf syncBuffer
	Initialize(cfg, &buf)

	GetLogger().Debug("suppressed")
	GetLogger().Info("visible")
	require.NoError(t, GetLogger().Sync())

	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "visible")
}

func TestGetLogger_FallbackBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	assert.NotPanics(t, func() { logger.Debug("fallback logger is usable") })
}

func TestSync_NoLoggerIsANoop(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	assert.NotPanics(t, Sync)
}
