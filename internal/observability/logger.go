package observability

import (
	"fmt"

	"github.com/leafnet/leafnet-go/internal/logger"
)

// promErrorLogger routes promhttp errors into the telemetry module log
type promErrorLogger struct{}

func (promErrorLogger) Println(v ...any) {
	logger.Global().Module("telemetry").Error("metrics handler error", logger.String("message", fmt.Sprint(v...)))
}
