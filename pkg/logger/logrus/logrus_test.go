package logrus

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raykavin/backsweep/pkg/logger"
)

func TestLogrusAdapter(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("info", true, &buf)
	require.NoError(t, err)

	log.WithField("run", "abc").WithError(errors.New("boom")).Warnf("evaluated %d sets", 3)
	assert.Contains(t, buf.String(), `"run":"abc"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
	assert.Contains(t, buf.String(), "evaluated 3 sets")

	buf.Reset()
	log.Debug("hidden")
	assert.Empty(t, buf.String())

	log.SetLevel(logger.DebugLevel)
	assert.Equal(t, logger.DebugLevel, log.GetLevel())
	log.Debug("visible")
	assert.Contains(t, buf.String(), "visible")

	_, err = New("loud", false, &buf)
	require.Error(t, err)
}
