package internal

import (
	"log"
	"os"
)

// NewLogger returns a component-prefixed logger.
func NewLogger(component string) *log.Logger {
	prefix := "pkghub"
	if component != "" {
		prefix = prefix + "/" + component
	}
	return log.New(os.Stdout, prefix+" ", log.LstdFlags|log.Lmicroseconds)
}

// WithRequestID derives a request-scoped logger from a base logger.
func WithRequestID(base *log.Logger, requestID string) *log.Logger {
	if base == nil {
		base = log.Default()
	}
	if requestID == "" {
		return base
	}
	return log.New(base.Writer(), base.Prefix()+"["+requestID+"] ", base.Flags())
}
