package log

import (
	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/schc/internal/config"
)

// AddFileAppender appends a size-rotated log file, closed by Close.
func (m *MultiWriter) AddFileAppender(fc config.FileOutputConfig) *MultiWriter {
	writer := &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.MaxSizeMB,  // megabytes
		MaxBackups: fc.MaxBackups, // number of backups
		MaxAge:     fc.MaxAgeDays, // days
		Compress:   fc.Compress,
	}
	return m.addOwned(writer)
}
