package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileName   = "sipphone.log"
	pjsipFileName = "pjsip.log"
)

var (
	coreLog  *logrus.Entry
	pjsipLog *logrus.Entry
	phoneLog *logrus.Entry
	logFile  *lumberjack.Logger
	logDir   string
)

// initLogging configures one logger per subsystem, all writing to the console
// and to a shared rotating file.
func initLogging(cfg *ini.File) error {
	sec := cfg.Section("logging")

	consoleMin := toLogrusLevel(sec.Key("console_min_level").MustInt(0))
	fileMin := toLogrusLevel(sec.Key("file_min_level").MustInt(0))

	logDir = sec.Key("log_dir").MustString("logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}

	logFile = &lumberjack.Logger{
		Filename:   filepath.Join(logDir, logFileName),
		MaxSize:    sec.Key("max_size").MustInt(100), // megabytes
		MaxBackups: sec.Key("max_backups").MustInt(1),
	}

	coreLog = newLogger("core", toLogrusLevel(sec.Key("core").MustInt(2)), consoleMin, fileMin, logFile)
	pjsipLog = newLogger("pjsip", toLogrusLevel(sec.Key("pjsip").MustInt(2)), consoleMin, fileMin, logFile)
	phoneLog = newLogger("phone", toLogrusLevel(sec.Key("phone").MustInt(2)), consoleMin, fileMin, logFile)
	return nil
}

// closeLogging flushes and closes log files.
func closeLogging() {
	if logFile != nil {
		_ = logFile.Close()
	}
}

// levelWriter copies entries at min severity or worse to w, formatted with
// its own formatter so the console and the file can differ.
type levelWriter struct {
	w         io.Writer
	min       logrus.Level
	formatter logrus.Formatter
}

func (h *levelWriter) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.w.Write(b)
	return err
}

// Levels relies on logrus.AllLevels being ordered from Panic to Trace.
func (h *levelWriter) Levels() []logrus.Level {
	return logrus.AllLevels[:h.min+1]
}

func newLogger(name string, level, consoleMin, fileMin logrus.Level, file io.Writer) *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(io.Discard)
	logger.AddHook(&levelWriter{
		w:         os.Stdout,
		min:       consoleMin,
		formatter: &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"},
	})
	logger.AddHook(&levelWriter{
		w:         file,
		min:       fileMin,
		formatter: &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000", DisableColors: true},
	})
	return logger.WithField("name", name)
}

// iniLevels maps the settings.ini scale: 0 is trace, 6 turns a logger off.
var iniLevels = [...]logrus.Level{
	logrus.TraceLevel,
	logrus.DebugLevel,
	logrus.InfoLevel,
	logrus.WarnLevel,
	logrus.ErrorLevel,
	logrus.FatalLevel,
	logrus.PanicLevel,
}

func toLogrusLevel(v int) logrus.Level {
	return iniLevels[max(0, min(v, len(iniLevels)-1))]
}
