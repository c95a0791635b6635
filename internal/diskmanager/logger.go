package diskmanager

import (
	"sync"

	"github.com/leafnet/leafnet-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the diskmanager package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("diskmanager")
	})
	return serviceLogger
}
