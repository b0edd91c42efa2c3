package zerolog

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raykavin/backsweep/pkg/logger"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "info", JSON: true, Output: &buf})
	require.NoError(t, err)

	log.WithFields(map[string]any{"generation": 2}).Infof("best fitness %.2f", 1.5)
	assert.Contains(t, buf.String(), `"generation":2`)
	assert.Contains(t, buf.String(), "best fitness 1.50")

	buf.Reset()
	log.Debug("hidden")
	assert.Empty(t, buf.String())

	log.SetLevel(logger.DebugLevel)
	assert.Equal(t, logger.DebugLevel, log.GetLevel())
	log.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestConsoleFormatting(t *testing.T) {
	assert.Contains(t, formatLevel("info"), "[INF]")
	assert.Contains(t, formatCaller("/src/pkg/optimizer/genetic.go:42"), "genetic.go")
	assert.Equal(t, ">", formatMessage(""))

	_, err := New(Options{Level: "verbose"})
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	level, err := logger.ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, logger.WarnLevel, level)
	assert.Equal(t, "warn", level.String())
}
