package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

// InitLogger builds the arbor logger from the logging configuration.
// Outputs listed in [logging].output stack: "stdout" (or "console") adds a
// console writer, "file" adds a rotating file writer next to the binary.
func InitLogger(config *Config) arbor.ILogger {
	logger := arbor.NewLogger()

	logsDir, err := defaultLogsDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot resolve logs directory: %v\n", err)
		return logger.WithConsoleWriter(consoleWriterConfig()).WithLevelFromString(config.Logging.Level)
	}

	wantFile := false
	wantConsole := false
	for _, output := range config.Logging.Output {
		switch output {
		case "file":
			wantFile = true
		case "stdout", "console":
			wantConsole = true
		}
	}

	if wantFile {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "warning: cannot create logs directory: %v\n", err)
		} else {
			logger = logger.WithFileWriter(fileWriterConfig(config, filepath.Join(logsDir, "percipio.log")))
		}
	}
	if wantConsole {
		logger = logger.WithConsoleWriter(consoleWriterConfig())
	}

	return logger.WithLevelFromString(config.Logging.Level)
}

// GetLogFilePath reports where the logger is writing its file output, or ""
// for console-only configurations.
func GetLogFilePath(logger arbor.ILogger) string {
	if logger == nil {
		return ""
	}
	return logger.GetLogFilePath()
}

// defaultLogsDir is logs/ beside the executable, matching where crash
// reports and the rotated log files are expected by operators.
func defaultLogsDir() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(execPath), "logs"), nil
}

func consoleWriterConfig() models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:       models.LogWriterTypeConsole,
		TimeFormat: "15:04:05",
		TextOutput: true,
	}
}

func fileWriterConfig(config *Config, path string) models.WriterConfiguration {
	maxSize := config.Logging.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	maxBackups := config.Logging.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}
	return models.WriterConfiguration{
		Type:       models.LogWriterTypeFile,
		FileName:   path,
		TimeFormat: "15:04:05",
		MaxSize:    int64(maxSize) * 1024 * 1024,
		MaxBackups: maxBackups,
		TextOutput: true,
	}
}
