//go:build chronogrid_debug

package engine

import (
	"fmt"
	"log"
)

func assertf(logger *log.Logger, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.Printf("assert: %s", msg)
	panic("assert: " + msg)
}
