package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger(t *testing.T) {
	prevOut, prevLevel, prevFmt := logrus.StandardLogger().Out, logrus.GetLevel(), logrus.StandardLogger().Formatter
	t.Cleanup(func() {
		logrus.SetOutput(prevOut)
		logrus.SetLevel(prevLevel)
		logrus.SetFormatter(prevFmt)
	})

	logfile := filepath.Join(t.TempDir(), "run.log")
	InitLogger(logfile, "warn")
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())

	logrus.Info("hidden")
	logrus.Warn("visible")
	data, err := os.ReadFile(logfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "visible")
	assert.NotContains(t, string(data), "hidden")

	InitLogger(logfile, "nonsense")
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}
