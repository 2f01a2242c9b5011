package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "kw.log")

	logger, err := New("info", logFile)
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	logger.WithField("component", "test").Info("hello")
	logger.Debug("hidden")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "component=test")
	assert.NotContains(t, string(data), "hidden")
}

func TestNewBadLevel(t *testing.T) {
	_, err := New("loud", "")
	assert.Error(t, err)
}

func TestComponent(t *testing.T) {
	assert.NotPanics(t, func() {
		Component(nil, "store").Info("dropped")
	})

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	Component(logrus.NewEntry(logger), "index").Warn("slow query")
	assert.Contains(t, buf.String(), "component=index")
}
