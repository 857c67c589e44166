package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/ini.v1"
)

func TestToLogrusLevel(t *testing.T) {
	assert.Equal(t, logrus.TraceLevel, toLogrusLevel(-1))
	assert.Equal(t, logrus.TraceLevel, toLogrusLevel(0))
	assert.Equal(t, logrus.InfoLevel, toLogrusLevel(2))
	assert.Equal(t, logrus.ErrorLevel, toLogrusLevel(4))
	assert.Equal(t, logrus.PanicLevel, toLogrusLevel(6))
	assert.Equal(t, logrus.PanicLevel, toLogrusLevel(9))
}

func TestLevelWriterLevels(t *testing.T) {
	h := &levelWriter{min: logrus.WarnLevel}
	assert.Equal(t, []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}, h.Levels())

	h.min = logrus.TraceLevel
	assert.Equal(t, logrus.AllLevels, h.Levels())
}

func TestNewLoggerFiltersFileLevel(t *testing.T) {
	var file bytes.Buffer
	log := newLogger("test", logrus.DebugLevel, logrus.PanicLevel, logrus.WarnLevel, &file)

	log.Info("not written")
	log.Warn("written")

	assert.NotContains(t, file.String(), "not written")
	assert.Contains(t, file.String(), "written")
	assert.Contains(t, file.String(), "name=test")
}

func TestInitLoggingCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	cfg, err := ini.Load([]byte("[logging]\nlog_dir = " + dir + "\nconsole_min_level = 6\nphone = 1\n"))
	require.NoError(t, err)

	require.NoError(t, initLogging(cfg))
	defer closeLogging()

	assert.Equal(t, dir, logDir)
	assert.Equal(t, logrus.DebugLevel, phoneLog.Logger.GetLevel())
	assert.Equal(t, logrus.InfoLevel, coreLog.Logger.GetLevel())

	coreLog.Info("hello")
	b, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)
	assert.Contains(t, string(b), "hello")
}
