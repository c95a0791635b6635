package conf

import "github.com/leafnet/leafnet-go/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// The logger is fetched from the global logger each time because the central
// logger is usually installed after the settings have been loaded.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
