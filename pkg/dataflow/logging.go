package dataflow

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// zerologGlobal exposes the process-wide logger platform/logger.Setup
// configures, so internal components (notify.Hub) log through the same
// sink as everything else rather than opening their own.
func zerologGlobal() zerolog.Logger {
	return log.Logger
}
