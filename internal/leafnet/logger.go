// Package leafnet loads the tomato leaf disease model, turns images into
// model input tensors and classifies them.
package leafnet

import (
	"sync"

	"github.com/leafnet/leafnet-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the leafnet package logger scoped to the leafnet module.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("leafnet")
	})
	return serviceLogger
}
