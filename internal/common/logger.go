package common

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

const (
	logFileName    = "vera.log"
	logFileMaxSize = 50 * 1024 * 1024
)

// InitLogger builds the arbor logger described by [logging].
// File output goes to logging.dir, or logs/ next to the executable when unset.
func InitLogger(config *Config) arbor.ILogger {
	logger := arbor.NewLogger()
	format := timeFormat(config)

	if slices.Contains(config.Logging.Output, "file") {
		dir, err := logDir(config)
		if err == nil {
			err = os.MkdirAll(dir, 0755)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: file logging disabled: %v\n", err)
		} else {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   filepath.Join(dir, logFileName),
				TimeFormat: format,
				MaxSize:    logFileMaxSize,
				MaxBackups: 5,
				OutputType: models.OutputFormatLogfmt,
			})
		}
	}

	if slices.Contains(config.Logging.Output, "stdout") || slices.Contains(config.Logging.Output, "console") {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			TimeFormat: format,
			OutputType: models.OutputFormatLogfmt,
		})
	}

	return logger.WithLevelFromString(config.Logging.Level)
}

func logDir(config *Config) (string, error) {
	if config.Logging.Dir != "" {
		return config.Logging.Dir, nil
	}
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(execPath), "logs"), nil
}

func timeFormat(config *Config) string {
	if config.Logging.TimeFormat != "" {
		return config.Logging.TimeFormat
	}
	return "15:04:05"
}

// GetLogFilePath returns the file the logger writes to, or "" for console only
func GetLogFilePath(logger arbor.ILogger) string {
	if logger == nil {
		return ""
	}
	return logger.GetLogFilePath()
}
