package dsphost

import (
	"fmt"

	"go.uber.org/zap"
)

// ErrorHandler receives failures the host recovers from rather than
// returning, e.g. a background rebuild failing or a status client breaking.
type ErrorHandler interface {
	HandleError(error)
}

// LogErrorHandler reports errors through the host's logger.
type LogErrorHandler struct {
	logger *zap.Logger
}

// NewLogErrorHandler creates a handler writing to logger.
func NewLogErrorHandler(logger *zap.Logger) *LogErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogErrorHandler{logger: logger}
}

// HandleError implements ErrorHandler.
func (h *LogErrorHandler) HandleError(err error) {
	h.logger.Error("host error", zap.Error(err))
}

// PanicErrorHandler panics on any error, useful in tests and development.
type PanicErrorHandler struct{}

// HandleError implements ErrorHandler by panicking.
func (h *PanicErrorHandler) HandleError(err error) {
	panic(fmt.Sprintf("host error: %v", err))
}
