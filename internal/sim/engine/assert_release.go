//go:build !chronogrid_debug

package engine

import "log"

func assertf(logger *log.Logger, format string, args ...any) {
	logger.Printf("assert: "+format, args...)
}
